package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

const (
	maintenanceInterval = time.Hour
	vacuumInterval      = 7 * 24 * time.Hour
)

// retained lists each history table with its timestamp column.
var retained = []struct{ table, column string }{
	{"run_records", "fired_at"},
	{"alert_history", "fired_at"},
	{"limit_warnings", "at"},
}

func (s *SQLiteStore) startMaintenance(ctx context.Context, retentionDays int) {
	go func() {
		defer close(s.maintenanceDone)

		nextVacuum := time.Now().Add(vacuumInterval)
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := s.runMaintenanceCycle(retentionDays, now); err != nil {
					log.Printf("ERROR: history maintenance: %v", err)
				}
				if now.Before(nextVacuum) {
					continue
				}
				if _, err := s.db.Exec("VACUUM"); err != nil {
					log.Printf("ERROR: VACUUM failed: %v", err)
					continue
				}
				nextVacuum = now.Add(vacuumInterval)
			}
		}
	}()
}

// runMaintenanceCycle drops history rows older than retentionDays. Zero or
// less keeps everything.
func (s *SQLiteStore) runMaintenanceCycle(retentionDays int, now time.Time) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := sqlTime(now.AddDate(0, 0, -retentionDays))
	for _, r := range retained {
		res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s < ?", r.table, r.column), cutoff)
		if err != nil {
			return fmt.Errorf("pruning %s: %w", r.table, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Printf("pruned %d rows from %s", n, r.table)
		}
	}
	return nil
}
