package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecurrence(t *testing.T) {
	tests := []struct {
		in   string
		want Recurrence
	}{
		{"daily 04:00", Daily(4, 0)},
		{"Daily 9:30", Daily(9, 30)},
		{"weekly mon 04:00", Weekly(time.Monday, 4, 0)},
		{"weekly Sunday 23:59", Weekly(time.Sunday, 23, 59)},
		{"every 5h", Every(5)},
		{"interval 2", Every(2)},
		{"once 2030-06-01 08:15", Once("2030-06-01", 8, 15)},
		{"at 2030-06-01 08:15", Once("2030-06-01", 8, 15)},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRecurrence(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRecurrence_Invalid(t *testing.T) {
	tests := []string{
		"",
		"daily",
		"daily 24:00",
		"daily 12:60",
		"daily noon",
		"weekly funday 04:00",
		"weekly mon",
		"every 0h",
		"every xh",
		"once 2030-13-01 08:00",
		"once tomorrow 08:00",
		"monthly 1 04:00",
		"in",
		"in 0m",
		"in 5d",
		"in 10000h",
		"in 5 m",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := ParseRecurrence(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRecurrence), "error %v should wrap ErrInvalidRecurrence", err)
		})
	}
}

func TestParseRecurrenceAt_Delay(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 40, 0, 0, time.Local)
	tests := []struct {
		in   string
		now  time.Time
		want Recurrence
	}{
		{"in 5m", now, Once("2026-03-02", 23, 45)},
		{"in 90min", now, Once("2026-03-03", 1, 10)},
		{"In 2h", now, Once("2026-03-03", 1, 40)},
		{"in 1m", now.Add(30 * time.Second), Once("2026-03-02", 23, 42)},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRecurrenceAt(tc.in, tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, KindOnce, got.Kind)
		})
	}
}

func TestEngine_AddDelayedJob(t *testing.T) {
	e, _, clock := newTestEngine(t, &fakeDispatcher{})
	rec, err := ParseRecurrenceAt("in 10m", clock.Now())
	require.NoError(t, err)

	id, err := e.AddJob(JobSpec{Prompt: "soon", Recurrence: rec})
	require.NoError(t, err)
	job, _ := e.Job(id)
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, base.Add(10*time.Minute), *job.NextRunAt)

	assert.Empty(t, e.Tick(base.Add(9*time.Minute)))
	assert.Equal(t, []int{id}, e.Tick(base.Add(10*time.Minute)))
	e.Wait()
	job, _ = e.Job(id)
	assert.Equal(t, StatusCompleted, job.Status)
}

func TestRecurrence_StringRoundTrip(t *testing.T) {
	for _, r := range []Recurrence{
		Daily(4, 0),
		Weekly(time.Friday, 17, 45),
		Every(12),
		Once("2031-02-03", 6, 7),
	} {
		got, err := ParseRecurrence(r.String())
		require.NoError(t, err, r.String())
		assert.Equal(t, r, got)
	}
}

func TestNextRunTime_Daily(t *testing.T) {
	job := Job{Recurrence: Daily(4, 0)}

	now := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	got, ok := NextRunTime(job, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC), got)

	now = time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	got, ok = NextRunTime(job, now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC), got)

	now = time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)
	got, _ = NextRunTime(job, now)
	assert.Equal(t, time.Date(2024, 1, 2, 4, 0, 0, 0, time.UTC), got, "an equal instant is not in the future")
}

func TestNextRunTime_DailyMonthRollover(t *testing.T) {
	job := Job{Recurrence: Daily(4, 0)}
	now := time.Date(2024, 2, 29, 5, 0, 0, 0, time.UTC)
	got, _ := NextRunTime(job, now)
	assert.Equal(t, time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC), got)
}

func TestNextRunTime_Weekly(t *testing.T) {
	// 2024-01-01 is a Monday.
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		r    Recurrence
		want time.Time
	}{
		{"later today", Weekly(time.Monday, 11, 0), time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)},
		{"earlier today", Weekly(time.Monday, 9, 0), time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)},
		{"exactly now", Weekly(time.Monday, 10, 0), time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"later this week", Weekly(time.Wednesday, 9, 0), time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)},
		{"sunday", Weekly(time.Sunday, 0, 0), time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextRunTime(Job{Recurrence: tc.r}, now)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.After(now))
			assert.LessOrEqual(t, got.Sub(now), 7*24*time.Hour)
		})
	}
}

func TestNextRunTime_Interval(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 17, 3, 0, time.UTC)
	got, ok := NextRunTime(Job{Recurrence: Every(5)}, now)
	require.True(t, ok)
	assert.Equal(t, now.Add(5*time.Hour), got)
}

func TestNextRunTime_Once(t *testing.T) {
	job := Job{Recurrence: Once("2024-01-01", 4, 0), Status: StatusPending}
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.Local)

	got, ok := NextRunTime(job, now)
	require.True(t, ok, "a pending one-time job keeps its instant even when past")
	assert.Equal(t, time.Date(2024, 1, 1, 4, 0, 0, 0, time.Local), got)

	job.Status = StatusCompleted
	_, ok = NextRunTime(job, now)
	assert.False(t, ok)
}
