package storage

import (
	"context"
	"testing"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

func TestMaintenance_PrunesOldRows(t *testing.T) {
	store := newTestStore(t)
	defer func() { _ = store.Close() }()

	now := time.Now()
	old := now.AddDate(0, 0, -40)
	recent := now.AddDate(0, 0, -2)

	for _, at := range []time.Time{old, recent} {
		_ = store.AppendRun(scheduler.RunRecord{JobID: 1, Prompt: "p", FiredAt: at})
		store.PersistAlert(alerts.Alert{Rule: alerts.RuleScheduledRun, Severity: alerts.SeverityInfo, FiredAt: at})
		_ = store.AppendWarning(limits.Warning{Type: limits.WarningThreshold, Source: "main", At: at})
	}
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := store.runMaintenanceCycle(30, now); err != nil {
		t.Fatalf("runMaintenanceCycle: %v", err)
	}

	for _, table := range []string{"run_records", "alert_history", "limit_warnings"} {
		if n := countRows(t, store, table); n != 1 {
			t.Errorf("%s: want 1 row after pruning, got %d", table, n)
		}
	}
}

func TestMaintenance_ZeroRetentionKeepsEverything(t *testing.T) {
	store := newTestStore(t)
	defer func() { _ = store.Close() }()

	_ = store.AppendRun(scheduler.RunRecord{JobID: 1, Prompt: "p", FiredAt: time.Now().AddDate(-1, 0, 0)})
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := store.runMaintenanceCycle(0, time.Now()); err != nil {
		t.Fatalf("runMaintenanceCycle: %v", err)
	}
	if n := countRows(t, store, "run_records"); n != 1 {
		t.Errorf("zero retention should keep rows, got %d", n)
	}
}

func TestMaintenance_NoData(t *testing.T) {
	store := newTestStore(t)
	defer func() { _ = store.Close() }()

	if err := store.runMaintenanceCycle(30, time.Now()); err != nil {
		t.Errorf("maintenance on empty DB failed: %v", err)
	}
}
