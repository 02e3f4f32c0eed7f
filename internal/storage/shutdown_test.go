package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

func TestSQLiteStore_Close_FlushesWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath, 30)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	for i := range 10 {
		_ = store.AppendRun(scheduler.RunRecord{JobID: i + 1, Prompt: "p", FiredAt: time.Now()})
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM run_records").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 10 {
		t.Errorf("not all writes flushed: want 10, got %d", count)
	}
}

func TestSQLiteStore_Close_EmptyChannel(t *testing.T) {
	store := newTestStore(t)

	start := time.Now()
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("empty channel close too slow: %v (want <2s)", elapsed)
	}
}

func TestSQLiteStore_Close_Twice(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestSQLiteStore_WritesAfterClose(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("write after Close panicked: %v", r)
		}
	}()

	err := store.AppendRun(scheduler.RunRecord{JobID: 1, Prompt: "late", FiredAt: time.Now()})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("AppendRun after Close: want ErrClosed, got %v", err)
	}
	store.PersistAlert(alerts.Alert{Rule: alerts.RuleScheduledRun, Severity: alerts.SeverityInfo, FiredAt: time.Now()})
	if err := store.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close: want ErrClosed, got %v", err)
	}
}
