package monitor

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/classifier"
	"github.com/nixlim/cc-sentinel/internal/dedup"
	"github.com/nixlim/cc-sentinel/internal/events"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

type warningSlice struct {
	mu sync.Mutex
	ws []limits.Warning
}

func (s *warningSlice) AppendWarning(w limits.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws = append(s.ws, w)
	return nil
}

type fixture struct {
	m        *Monitor
	rec      *alerts.Recorder
	tracker  *limits.Tracker
	ledger   *tokens.Ledger
	warnings *warningSlice
}

func newFixture(t *testing.T, limitSeconds int) *fixture {
	t.Helper()
	rec := alerts.NewRecorder(100)
	wl := &warningSlice{}
	tr := limits.NewTracker(limitSeconds, nil, rec, wl)
	led := tokens.NewLedger(0, 0, rec, nil)
	m := New(classifier.New(), dedup.NewSuppressor(0, 0, 0), tr, led, rec, WithLimitSeconds(limitSeconds))
	return &fixture{m: m, rec: rec, tracker: tr, ledger: led, warnings: wl}
}

func TestProcess_FirstSnapshotIsBaseline(t *testing.T) {
	f := newFixture(t, 0)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

	if evs := f.m.Process(Snapshot{Source: "w", Text: "Do you want me to continue?", At: at}); len(evs) != 0 {
		t.Fatalf("first snapshot reported %d events", len(evs))
	}
	state, ok := f.tracker.State("w")
	if !ok || !state.StartTime.Equal(at) {
		t.Errorf("source should be tracked from its first snapshot, got %+v, %v", state, ok)
	}
}

func TestProcess_ConfirmationSuppressedWhenRepeated(t *testing.T) {
	f := newFixture(t, 0)
	text := "> run the migration"
	f.m.Process(Snapshot{Source: "w", Text: text})

	text += "\nDo you want me to continue?"
	evs := f.m.Process(Snapshot{Source: "w", Text: text})
	if len(evs) != 1 || evs[0].Kind != events.KindConfirmation {
		t.Fatalf("expected one confirmation, got %+v", evs)
	}

	text += "\nDo you want me to continue?"
	if evs := f.m.Process(Snapshot{Source: "w", Text: text}); len(evs) != 0 {
		t.Errorf("repeated confirmation should be suppressed, got %+v", evs)
	}

	got := f.rec.ByRule(alerts.RuleConfirmation)
	if len(got) != 1 {
		t.Fatalf("got %d confirmation alerts, want 1", len(got))
	}
	if got[0].Severity != alerts.SeverityWarning || got[0].Source != "w" {
		t.Errorf("alert = %+v", got[0])
	}
	if n := len(f.m.Recent(10)); n != 1 {
		t.Errorf("Recent holds %d events, want 1", n)
	}
}

func TestProcess_ResetTimeAlert(t *testing.T) {
	f := newFixture(t, 0)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

	f.m.Process(Snapshot{Source: "w", Text: "", At: at})
	f.m.Process(Snapshot{Source: "w", Text: "Your limit will reset at 14:30.", At: at})

	got := f.rec.ByRule(alerts.RuleLimitReset)
	if len(got) != 1 {
		t.Fatalf("got %d reset alerts, want 1", len(got))
	}
	if !strings.Contains(got[0].Message, "resets at 14:30") {
		t.Errorf("message = %q", got[0].Message)
	}
}

func TestProcess_ExplicitTokensRecorded(t *testing.T) {
	f := newFixture(t, 0)
	f.m.Process(Snapshot{Source: "w", Text: "> "})
	f.m.Process(Snapshot{Source: "w", Text: "> \nTotal tokens: 4,500"})

	totals, ok := f.ledger.SourceTotals("w")
	if !ok {
		t.Fatal("expected ledger totals for w")
	}
	if totals.TotalExplicit != 4500 {
		t.Errorf("TotalExplicit = %d, want 4500", totals.TotalExplicit)
	}
	if totals.TotalEstimated == 0 || totals.MessageCount != 1 {
		t.Errorf("totals = %+v", totals)
	}
	if len(f.rec.ByRule(alerts.RuleTokenUsage)) != 1 {
		t.Error("expected a token usage alert")
	}
}

func TestProcess_LimitApproachingLogsWarning(t *testing.T) {
	f := newFixture(t, 0)
	f.m.Process(Snapshot{Source: "w", Text: "> "})
	f.m.Process(Snapshot{Source: "w", Text: "> \nYou are approaching your 5-hour limit."})

	if len(f.rec.ByRule(alerts.RuleLimitApproaching)) != 1 {
		t.Error("expected a limit approaching alert")
	}
	if len(f.warnings.ws) != 1 || f.warnings.ws[0].Type != limits.WarningExternal {
		t.Errorf("warnings = %+v", f.warnings.ws)
	}
}

func TestProcess_SessionStartKeepsLimitWindow(t *testing.T) {
	f := newFixture(t, 3600)
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)

	f.m.Process(Snapshot{Source: "w", Text: "Welcome to Claude\nline a", At: t0})
	if n := len(f.tracker.CheckAll(t0.Add(50 * time.Minute))); n != 1 {
		t.Fatalf("notices at +50m = %d, want 1", n)
	}

	// The pane scrolls with the banner still visible.
	f.m.Process(Snapshot{Source: "w", Text: "Welcome to Claude\nline b", At: t0.Add(55 * time.Minute)})
	if len(f.rec.ByRule(alerts.RuleSessionStart)) == 0 {
		t.Error("expected a session start alert")
	}

	state, ok := f.tracker.State("w")
	if !ok || !state.StartTime.Equal(t0) {
		t.Fatalf("start = %v, want %v", state.StartTime, t0)
	}
	if !state.WarningsSent[0.8] {
		t.Errorf("warnings sent = %v, want 0.8 kept", state.WarningsSent)
	}

	notices := f.tracker.CheckAll(t0.Add(61 * time.Minute))
	if len(notices) != 1 || !notices[0].Exceeded {
		t.Errorf("notices at +61m = %+v, want one exceeded", notices)
	}
}

type sliceSource []Snapshot

func (s sliceSource) Snapshots(ctx context.Context) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		for _, snap := range s {
			if ctx.Err() != nil || !yield(snap) {
				return
			}
		}
	}
}

func TestRun_ConsumesSource(t *testing.T) {
	f := newFixture(t, 0)
	src := sliceSource{
		{Source: "a", Text: "$ "},
		{Source: "a", Text: "$ \nError: build failed"},
		{Source: "b", Text: "idle"},
	}

	if err := f.m.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.rec.ByRule(alerts.RuleError)) == 0 {
		t.Error("expected an error alert")
	}
	if got := f.tracker.Sources(); len(got) != 2 {
		t.Errorf("tracked sources = %v", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.m.Run(ctx, sliceSource{{Source: "a", Text: "x"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunChecks_RaisesLimitNotices(t *testing.T) {
	f := newFixture(t, 60)
	f.tracker.StartTracking("w", time.Now().Add(-time.Hour), 60)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := f.m.RunChecks(ctx, 10*time.Millisecond, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunChecks = %v", err)
	}
	if n := len(f.rec.ByRule(alerts.RuleSessionLimitExceeded)); n != 1 {
		t.Errorf("got %d exceeded alerts, want exactly 1", n)
	}
}

func TestCheckTokens_ProjectionAlert(t *testing.T) {
	rec := alerts.NewRecorder(10)
	led := tokens.NewLedger(1000, 2000, rec, nil)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	m := New(classifier.New(), dedup.NewSuppressor(0, 0, 0), limits.NewTracker(0, nil, nil, nil), led, rec,
		WithClock(func() time.Time { return now }))

	m.checkTokens()
	led.RecordUsage("w", strings.Repeat("word ", 100), nil, now)
	now = now.Add(time.Minute)
	m.checkTokens()

	got := rec.ByRule(alerts.RuleDailyTokens)
	if len(got) != 1 {
		t.Fatalf("got %d daily token alerts, want 1", len(got))
	}
	if got[0].Severity != alerts.SeverityInfo || !strings.Contains(got[0].Message, "projected") {
		t.Errorf("alert = %+v", got[0])
	}
}
