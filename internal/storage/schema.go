package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// migrations[i] upgrades a database at version i to version i+1.
var migrations = []func(tx *sql.Tx) error{
	createV1,
}

var currentSchemaVersion = len(migrations)

// OpenDB opens the history database at dbPath in WAL mode and upgrades its
// schema. A database written by a newer cc-sentinel is refused.
func OpenDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := upgrade(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// schemaVersion returns 0 for a database without a schema_version row.
func schemaVersion(db *sql.DB) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'").Scan(&n)
	if err != nil || n == 0 {
		return 0, err
	}
	var v int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func upgrade(db *sql.DB, dbPath string) error {
	v, err := schemaVersion(db)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if v > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this cc-sentinel supports (max: %d); upgrade cc-sentinel or delete %s to start fresh",
			v, currentSchemaVersion, dbPath)
	}
	for ; v < currentSchemaVersion; v++ {
		if err := inTx(db, migrations[v]); err != nil {
			return fmt.Errorf("migrating schema v%d to v%d: %w", v, v+1, err)
		}
	}
	return nil
}

func inTx(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var v1Statements = []struct {
	name string
	sql  string
}{
	{"schema_version table", `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)`},
	{"schema version row", "INSERT INTO schema_version (version) VALUES (1)"},
	{"run_records table", `
		CREATE TABLE IF NOT EXISTS run_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			fired_at TEXT NOT NULL,
			success INTEGER NOT NULL,
			response_summary TEXT,
			manual INTEGER NOT NULL DEFAULT 0
		)`},
	{"alert_history table", `
		CREATE TABLE IF NOT EXISTS alert_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			source TEXT,
			fired_at TEXT NOT NULL
		)`},
	{"limit_warnings table", `
		CREATE TABLE IF NOT EXISTS limit_warnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			source TEXT NOT NULL,
			threshold REAL,
			message TEXT,
			elapsed_seconds INTEGER,
			remaining_seconds INTEGER,
			at TEXT NOT NULL
		)`},
	{"idx_runs_job", "CREATE INDEX IF NOT EXISTS idx_runs_job ON run_records(job_id)"},
	{"idx_runs_fired", "CREATE INDEX IF NOT EXISTS idx_runs_fired ON run_records(fired_at)"},
	{"idx_alerts_fired", "CREATE INDEX IF NOT EXISTS idx_alerts_fired ON alert_history(fired_at)"},
	{"idx_warnings_at", "CREATE INDEX IF NOT EXISTS idx_warnings_at ON limit_warnings(at)"},
}

func createV1(tx *sql.Tx) error {
	for _, st := range v1Statements {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("creating %s: %w", st.name, err)
		}
	}
	return nil
}
