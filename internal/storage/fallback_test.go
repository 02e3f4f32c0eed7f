package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

func TestFallback_SQLiteSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.StorageConfig{
		DataDir:       filepath.Join(tmpDir, "data"),
		DBPath:        filepath.Join(tmpDir, "history.db"),
		RetentionDays: 7,
	}

	stores, persistent, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = stores.Close() }()

	if !persistent {
		t.Error("expected persistent=true for a writable data dir")
	}
	if stores.SQL == nil {
		t.Fatal("expected a history database")
	}
	if stores.Alerts == nil {
		t.Error("expected an alert persister when SQLite is available")
	}
	if _, ok := stores.Runs.(teeRuns); !ok {
		t.Errorf("expected runs mirrored to SQLite, got %T", stores.Runs)
	}
}

func TestFallback_UnwritableDBPath(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.StorageConfig{
		DataDir: filepath.Join(tmpDir, "data"),
		DBPath:  filepath.Join(blocker, "nested", "history.db"),
	}

	stores, persistent, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open should not return error on fallback: %v", err)
	}
	defer func() { _ = stores.Close() }()

	if !persistent {
		t.Error("files are still persistent without SQLite")
	}
	if stores.SQL != nil {
		t.Error("expected no history database for an unusable path")
	}
	if _, ok := stores.Runs.(*FileStore); !ok {
		t.Errorf("expected *FileStore run log, got %T", stores.Runs)
	}
}

func TestFallback_UnwritableDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	stores, persistent, err := Open(config.StorageConfig{DataDir: filepath.Join(blocker, "data")})
	if err != nil {
		t.Fatalf("Open should not return error on fallback: %v", err)
	}
	defer func() { _ = stores.Close() }()

	if persistent {
		t.Error("expected persistent=false when the data dir cannot be created")
	}
	if _, ok := stores.Jobs.(*scheduler.MemoryStore); !ok {
		t.Errorf("expected in-memory job store, got %T", stores.Jobs)
	}
	if stores.Ledger != nil || stores.Warnings != nil {
		t.Error("ledger and warning log should be disabled in memory mode")
	}
}

func TestStores_TeeWritesBothBackends(t *testing.T) {
	tmpDir := t.TempDir()
	stores, _, err := Open(config.StorageConfig{
		DataDir: filepath.Join(tmpDir, "data"),
		DBPath:  filepath.Join(tmpDir, "history.db"),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = stores.Close() }()

	rec := scheduler.RunRecord{JobID: 4, Prompt: "p", FiredAt: time.Now(), Success: true}
	if err := stores.Runs.AppendRun(rec); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	fromFiles, err := stores.Files.Runs(4, 0)
	if err != nil {
		t.Fatalf("file Runs: %v", err)
	}
	fromDB, err := stores.SQL.Runs(4, 0)
	if err != nil {
		t.Fatalf("SQL Runs: %v", err)
	}
	if len(fromFiles) != 1 || len(fromDB) != 1 {
		t.Errorf("want the record in both backends, files=%d db=%d", len(fromFiles), len(fromDB))
	}
}
