package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

const (
	writeChannelSize = 1000
	batchSize        = 50
	flushInterval    = 100 * time.Millisecond
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store closed")

const (
	opRun     = "run"
	opAlert   = "alert"
	opWarning = "warning"
	opBarrier = "barrier"
)

type writeOp struct {
	opType  string
	run     *scheduler.RunRecord
	alert   *alerts.Alert
	warning *limits.Warning
	done    chan struct{}
}

// SQLiteStore is the queryable history of run records, alerts and limit
// warnings. Writes are queued and committed in batches by one writer
// goroutine; reads go straight to the database after a flush.
type SQLiteStore struct {
	db              *sql.DB
	writeChan       chan writeOp
	droppedWrites   atomic.Int64
	doneChan        chan struct{}
	closed          atomic.Bool
	cancelMaint     context.CancelFunc
	maintenanceDone chan struct{}
}

func NewSQLiteStore(dbPath string, retentionDays int) (*SQLiteStore, error) {
	return newSQLiteStoreWithChannelSize(dbPath, writeChannelSize, retentionDays)
}

func newSQLiteStoreWithChannelSize(dbPath string, chanSize int, retentionDays int) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store := &SQLiteStore{
		db:              db,
		writeChan:       make(chan writeOp, chanSize),
		doneChan:        make(chan struct{}),
		cancelMaint:     cancel,
		maintenanceDone: make(chan struct{}),
	}

	go store.writerLoop()
	store.startMaintenance(ctx, retentionDays)

	return store, nil
}

// AppendRun queues a run record.
func (s *SQLiteStore) AppendRun(rec scheduler.RunRecord) error {
	return s.sendWrite(writeOp{opType: opRun, run: &rec})
}

// AppendWarning queues a limit warning.
func (s *SQLiteStore) AppendWarning(w limits.Warning) error {
	return s.sendWrite(writeOp{opType: opWarning, warning: &w})
}

// PersistAlert implements the alerts.AlertPersister interface.
func (s *SQLiteStore) PersistAlert(a alerts.Alert) {
	if err := s.sendWrite(writeOp{opType: opAlert, alert: &a}); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("WARNING: alert not persisted: %v", err)
	}
}

// Flush blocks until every write queued before the call is committed, or
// ctx is done.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.sendWriteBlocking(ctx, writeOp{opType: opBarrier, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) sendWrite(op writeOp) (err error) {
	if s.closed.Load() {
		return ErrClosed
	}
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case s.writeChan <- op:
		return nil
	default:
		s.droppedWrites.Add(1)
		log.Printf("WARNING: SQLite write channel full, dropped write (type=%s)", op.opType)
		return fmt.Errorf("write channel full, dropped %s", op.opType)
	}
}

func (s *SQLiteStore) sendWriteBlocking(ctx context.Context, op writeOp) (err error) {
	if s.closed.Load() {
		return ErrClosed
	}
	defer func() {
		if recover() != nil {
			err = ErrClosed
		}
	}()
	select {
	case s.writeChan <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteStore) DroppedWrites() int64 {
	return s.droppedWrites.Load()
}

func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.cancelMaint()
	select {
	case <-s.maintenanceDone:
	case <-time.After(30 * time.Second):
		log.Printf("WARNING: maintenance goroutine did not stop within 30s")
	}

	close(s.writeChan)

	select {
	case <-s.doneChan:
	case <-time.After(10 * time.Second):
		log.Printf("ERROR: failed to drain writes within 10s, data may be lost")
	}

	return s.db.Close()
}

func (s *SQLiteStore) writerLoop() {
	defer close(s.doneChan)

	batch := make([]writeOp, 0, batchSize)
	flushTimer := time.NewTimer(flushInterval)
	defer flushTimer.Stop()

	for {
		select {
		case op, ok := <-s.writeChan:
			if !ok {
				if len(batch) > 0 {
					s.flushBatch(batch)
				}
				return
			}

			batch = append(batch, op)

			if len(batch) >= batchSize || op.opType == opBarrier {
				s.flushBatch(batch)
				batch = batch[:0]
				flushTimer.Reset(flushInterval)
			}

		case <-flushTimer.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
			flushTimer.Reset(flushInterval)
		}
	}
}

func (s *SQLiteStore) flushBatch(batch []writeOp) {
	defer func() {
		for _, op := range batch {
			if op.done != nil {
				close(op.done)
			}
		}
	}()

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("ERROR: failed to begin transaction: %v", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range batch {
		if err := s.executeOp(tx, op); err != nil {
			log.Printf("ERROR: failed to execute write op (type=%s): %v", op.opType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: failed to commit transaction: %v", err)
	}
}

func (s *SQLiteStore) executeOp(tx *sql.Tx, op writeOp) error {
	switch op.opType {
	case opRun:
		return s.writeRun(tx, op.run)
	case opAlert:
		return s.writeAlertHistory(tx, op.alert)
	case opWarning:
		return s.writeWarning(tx, op.warning)
	case opBarrier:
		return nil
	default:
		return fmt.Errorf("unknown op type: %s", op.opType)
	}
}
