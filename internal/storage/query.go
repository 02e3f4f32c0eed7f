package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

const (
	maxAlertRows   = 200
	flushQueryWait = 2 * time.Second
)

// flushBeforeRead makes queued writes visible to the query that follows.
func (s *SQLiteStore) flushBeforeRead() {
	if s.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushQueryWait)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		log.Printf("WARNING: flushing before query: %v", err)
	}
}

func parseSQLTime(v string) time.Time {
	t, err := time.Parse(sqlTimeLayout, v)
	if err != nil {
		log.Printf("WARNING: unparseable timestamp %q: %v", v, err)
		return time.Time{}
	}
	return t.Local()
}

// Runs returns run records ordered by fired_at. jobID 0 selects every job
// and limit > 0 keeps the most recent records.
func (s *SQLiteStore) Runs(jobID, limit int) ([]scheduler.RunRecord, error) {
	s.flushBeforeRead()

	query := `SELECT job_id, prompt, fired_at, success, response_summary, manual FROM run_records`
	var args []any
	if jobID != 0 {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY fired_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying run records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []scheduler.RunRecord
	for rows.Next() {
		var (
			rec             scheduler.RunRecord
			firedAt         string
			success, manual int
			summary         sql.NullString
		)
		if err := rows.Scan(&rec.JobID, &rec.Prompt, &firedAt, &success, &summary, &manual); err != nil {
			log.Printf("ERROR: scanning run record row: %v", err)
			continue
		}
		rec.FiredAt = parseSQLTime(firedAt)
		rec.Success = success != 0
		rec.Manual = manual != 0
		rec.ResponseSummary = summary.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run records: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// QueryAlertHistory returns alerts fired within the last days, newest
// first, optionally filtered by rule. At most 200 rows are returned.
func (s *SQLiteStore) QueryAlertHistory(days int, rule string) []alerts.Alert {
	s.flushBeforeRead()

	cutoff := sqlTime(time.Now().AddDate(0, 0, -days))
	query := `SELECT rule, severity, message, source, fired_at FROM alert_history WHERE fired_at >= ?`
	args := []any{cutoff}
	if rule != "" {
		query += ` AND rule = ?`
		args = append(args, rule)
	}
	query += ` ORDER BY fired_at DESC LIMIT ?`
	args = append(args, maxAlertRows)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("ERROR: querying alert history: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []alerts.Alert
	for rows.Next() {
		var (
			a               alerts.Alert
			message, source sql.NullString
			firedAt         string
		)
		if err := rows.Scan(&a.Rule, &a.Severity, &message, &source, &firedAt); err != nil {
			log.Printf("ERROR: scanning alert history row: %v", err)
			continue
		}
		a.Message = message.String
		a.Source = source.String
		a.FiredAt = parseSQLTime(firedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: iterating alert history rows: %v", err)
	}
	return out
}

// QueryDistinctAlertRules returns the rules present in the alert history.
func (s *SQLiteStore) QueryDistinctAlertRules() []string {
	s.flushBeforeRead()

	rows, err := s.db.Query(`SELECT DISTINCT rule FROM alert_history ORDER BY rule`)
	if err != nil {
		log.Printf("ERROR: querying alert rules: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var rule string
		if err := rows.Scan(&rule); err != nil {
			log.Printf("ERROR: scanning alert rule: %v", err)
			continue
		}
		out = append(out, rule)
	}
	return out
}

// QueryWarnings returns limit warnings recorded at or after since, oldest
// first.
func (s *SQLiteStore) QueryWarnings(since time.Time) []limits.Warning {
	s.flushBeforeRead()

	rows, err := s.db.Query(`
		SELECT type, source, threshold, message, elapsed_seconds, remaining_seconds, at
		FROM limit_warnings WHERE at >= ? ORDER BY at, id
	`, sqlTime(since))
	if err != nil {
		log.Printf("ERROR: querying limit warnings: %v", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []limits.Warning
	for rows.Next() {
		var (
			w                  limits.Warning
			threshold          sql.NullFloat64
			message            sql.NullString
			elapsed, remaining sql.NullInt64
			at                 string
		)
		if err := rows.Scan(&w.Type, &w.Source, &threshold, &message, &elapsed, &remaining, &at); err != nil {
			log.Printf("ERROR: scanning limit warning row: %v", err)
			continue
		}
		w.Threshold = threshold.Float64
		w.Message = message.String
		w.ElapsedSeconds = elapsed.Int64
		w.RemainingSeconds = remaining.Int64
		w.At = parseSQLTime(at)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: iterating limit warning rows: %v", err)
	}
	return out
}
