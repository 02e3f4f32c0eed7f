package storage

import (
	"database/sql"
	"math"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

// Timestamps are stored as fixed-width UTC RFC 3339 text so that string
// comparison orders them.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

// sanitizeFloat replaces NaN and Inf with 0.0.
func sanitizeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteStore) writeRun(tx *sql.Tx, rec *scheduler.RunRecord) error {
	_, err := tx.Exec(`
		INSERT INTO run_records (job_id, prompt, fired_at, success, response_summary, manual)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.JobID, rec.Prompt, sqlTime(rec.FiredAt), boolInt(rec.Success), rec.ResponseSummary, boolInt(rec.Manual))
	return err
}

func (s *SQLiteStore) writeAlertHistory(tx *sql.Tx, a *alerts.Alert) error {
	_, err := tx.Exec(`
		INSERT INTO alert_history (rule, severity, message, source, fired_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.Rule, a.Severity, a.Message, a.Source, sqlTime(a.FiredAt))
	return err
}

func (s *SQLiteStore) writeWarning(tx *sql.Tx, w *limits.Warning) error {
	_, err := tx.Exec(`
		INSERT INTO limit_warnings (type, source, threshold, message, elapsed_seconds, remaining_seconds, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.Type, w.Source, sanitizeFloat(w.Threshold), w.Message, w.ElapsedSeconds, w.RemainingSeconds, sqlTime(w.At))
	return err
}
