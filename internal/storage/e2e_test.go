package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

func TestFullLifecycle_SchedulerRestart(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.StorageConfig{
		DataDir:       filepath.Join(tmpDir, "data"),
		DBPath:        filepath.Join(tmpDir, "history.db"),
		RetentionDays: 30,
	}

	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }
	d := scheduler.DispatchFunc(func(_ context.Context, prompt, _ string) (string, error) {
		return "echo: " + prompt, nil
	})

	// Phase 1: add jobs, fire one, shut down.
	stores, _, err := Open(cfg)
	require.NoError(t, err)

	engine := scheduler.NewEngine(stores.Jobs, stores.Runs, d,
		scheduler.WithClock(clock),
		scheduler.WithSink(alerts.PersistSink{P: stores.Alerts}),
	)
	require.NoError(t, engine.Load())

	id, err := engine.AddJob(scheduler.JobSpec{Prompt: "stand-up", Recurrence: scheduler.Daily(9, 30)})
	require.NoError(t, err)
	_, err = engine.AddJob(scheduler.JobSpec{Prompt: "later", Recurrence: scheduler.Every(4), Runs: 2})
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	fired := engine.Tick(now)
	assert.Equal(t, []int{id}, fired)
	engine.Stop()

	require.NoError(t, stores.Close())

	// Phase 2: reopen and verify jobs and history survived.
	stores, _, err = Open(cfg)
	require.NoError(t, err)
	defer func() { _ = stores.Close() }()

	engine = scheduler.NewEngine(stores.Jobs, stores.Runs, d, scheduler.WithClock(clock))
	require.NoError(t, engine.Load())

	jobs := engine.ListJobs()
	require.Len(t, jobs, 2)
	job, ok := engine.Job(id)
	require.True(t, ok)
	assert.Equal(t, 1, job.RunCount)
	require.NotNil(t, job.NextRunAt)
	assert.Equal(t, time.Date(2026, 6, 2, 9, 30, 0, 0, time.Local), *job.NextRunAt)

	hist, err := engine.History(id, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Success)
	assert.Equal(t, "echo: stand-up", hist[0].ResponseSummary)

	fileHist, err := stores.Files.Runs(id, 0)
	require.NoError(t, err)
	assert.Len(t, fileHist, 1)

	fromDB := stores.SQL.QueryAlertHistory(7, alerts.RuleScheduledRun)
	assert.Len(t, fromDB, 1)
}
