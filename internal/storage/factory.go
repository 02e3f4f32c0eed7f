package storage

import (
	"errors"
	"log"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

// Stores bundles the persistence backends used by one run of the program.
// SQL is nil unless a history database is configured and could be opened.
type Stores struct {
	Files *FileStore
	SQL   *SQLiteStore

	Jobs     scheduler.JobStore
	Runs     scheduler.RunLog
	Warnings limits.WarningLog
	Ledger   tokens.LedgerStore
	// Alerts is nil when there is no history database.
	Alerts alerts.AlertPersister

	retentionDays int
}

// Open builds the stores described by cfg. The JSON files under data_dir
// are always written. When db_path is set, run records and limit warnings
// are also mirrored into SQLite along with the alert history; if SQLite is
// unavailable Open logs a warning and continues without it. The returned
// bool reports whether state survives a restart.
func Open(cfg config.StorageConfig) (*Stores, bool, error) {
	s := &Stores{retentionDays: cfg.RetentionDays}

	files, err := NewFileStore(config.ExpandTilde(cfg.DataDir))
	if err != nil {
		log.Printf("WARNING: data directory unavailable (%v), falling back to in-memory state", err)
		mem := scheduler.NewMemoryStore()
		s.Jobs, s.Runs = mem, mem
		return s, false, nil
	}
	s.Files = files
	s.Jobs, s.Runs, s.Warnings, s.Ledger = files, files, files, files

	if cfg.DBPath == "" {
		return s, true, nil
	}

	db, err := NewSQLiteStore(config.ExpandTilde(cfg.DBPath), cfg.RetentionDays)
	if err != nil {
		log.Printf("WARNING: SQLite history unavailable (%v), continuing with files only", err)
		return s, true, nil
	}
	s.SQL = db
	s.Runs = teeRuns{files: files, db: db}
	s.Warnings = teeWarnings{files: files, db: db}
	s.Alerts = db
	return s, true, nil
}

// Prune applies the retention policy to the dated files. The history
// database prunes itself.
func (s *Stores) Prune(now time.Time) {
	if s.Files == nil {
		return
	}
	n, err := s.Files.Prune(s.retentionDays, now)
	if err != nil {
		log.Printf("ERROR: pruning data files: %v", err)
		return
	}
	if n > 0 {
		log.Printf("pruned %d data files older than %d days", n, s.retentionDays)
	}
}

func (s *Stores) Close() error {
	if s.SQL == nil {
		return nil
	}
	return s.SQL.Close()
}

// teeRuns writes run records to the daily files and the database and reads
// them back from the database.
type teeRuns struct {
	files *FileStore
	db    *SQLiteStore
}

func (t teeRuns) AppendRun(rec scheduler.RunRecord) error {
	fileErr := t.files.AppendRun(rec)
	if err := t.db.AppendRun(rec); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("WARNING: run record not mirrored to SQLite: %v", err)
	}
	return fileErr
}

func (t teeRuns) Runs(jobID, limit int) ([]scheduler.RunRecord, error) {
	recs, err := t.db.Runs(jobID, limit)
	if err == nil {
		return recs, nil
	}
	log.Printf("WARNING: reading run history from SQLite: %v", err)
	return t.files.Runs(jobID, limit)
}

type teeWarnings struct {
	files *FileStore
	db    *SQLiteStore
}

func (t teeWarnings) AppendWarning(w limits.Warning) error {
	fileErr := t.files.AppendWarning(w)
	if err := t.db.AppendWarning(w); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("WARNING: limit warning not mirrored to SQLite: %v", err)
	}
	return fileErr
}
