// Package scheduler keeps a persistent set of prompt jobs, computes their
// next run slots and dispatches due jobs on worker goroutines.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrJobCompleted      = errors.New("job already completed")
	ErrJobExhausted      = errors.New("job has no remaining runs")
	ErrEngineStopped     = errors.New("scheduler stopped")
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Priority orders jobs that fall due in the same tick. The zero value is
// normal.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority accepts low, normal or high in any case. An empty string
// is normal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q (want low, normal or high)", s)
	}
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

func (p Priority) String() string {
	if p == "" {
		return string(PriorityNormal)
	}
	return string(p)
}

// Job is one scheduled prompt. A quiet job raises no alert when a run
// succeeds; failures are always reported.
type Job struct {
	ID            int        `json:"id"`
	Prompt        string     `json:"prompt"`
	Target        string     `json:"target,omitempty"`
	Recurrence    Recurrence `json:"recurrence"`
	Enabled       bool       `json:"enabled"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	RunCount      int        `json:"run_count"`
	RemainingRuns *int       `json:"remaining_runs,omitempty"`
	Priority      Priority   `json:"priority,omitempty"`
	Quiet         bool       `json:"quiet,omitempty"`
}

func (j Job) clone() Job {
	if j.LastRunAt != nil {
		t := *j.LastRunAt
		j.LastRunAt = &t
	}
	if j.NextRunAt != nil {
		t := *j.NextRunAt
		j.NextRunAt = &t
	}
	if j.RemainingRuns != nil {
		n := *j.RemainingRuns
		j.RemainingRuns = &n
	}
	return j
}

// Spec returns the definition of j with no run limit.
func (j Job) Spec() JobSpec {
	return JobSpec{
		Prompt:     j.Prompt,
		Target:     j.Target,
		Recurrence: j.Recurrence,
		Priority:   j.Priority,
		Quiet:      j.Quiet,
	}
}

func (j Job) exhausted() bool {
	return j.RemainingRuns != nil && *j.RemainingRuns <= 0
}

// JobSpec is the operator input for creating or editing a job. Runs of 0
// means unlimited.
type JobSpec struct {
	Prompt     string
	Target     string
	Recurrence Recurrence
	Runs       int
	Priority   Priority
	Quiet      bool
}

// RunRecord is the immutable outcome of one dispatch.
type RunRecord struct {
	JobID           int       `json:"job_id"`
	Prompt          string    `json:"prompt"`
	FiredAt         time.Time `json:"fired_at"`
	Success         bool      `json:"success"`
	ResponseSummary string    `json:"response_summary"`
	Manual          bool      `json:"manual,omitempty"`
}

// JobSet is the persisted form of the job collection.
type JobSet struct {
	NextID int   `json:"next_id"`
	Jobs   []Job `json:"jobs"`
}

// JobStore persists the job collection as a whole.
type JobStore interface {
	LoadJobs() (JobSet, error)
	SaveJobs(set JobSet) error
}

// SharedJobStore is a JobStore that other processes write too. LockJobs
// blocks until the caller holds the store exclusively. JobsChanged reports
// whether the persisted set changed since this store last loaded or saved
// it.
type SharedJobStore interface {
	JobStore
	LockJobs() (unlock func(), err error)
	JobsChanged() (bool, error)
}

// RunLog is the append-only run history. Runs returns records ordered by
// FiredAt; jobID 0 selects every job and limit <= 0 means no limit, in
// which case the most recent records are kept.
type RunLog interface {
	AppendRun(rec RunRecord) error
	Runs(jobID, limit int) ([]RunRecord, error)
}

// Dispatcher sends a prompt to the observed application and returns its
// reply. It must honor ctx.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt, target string) (string, error)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, prompt, target string) (string, error)

func (f DispatchFunc) Dispatch(ctx context.Context, prompt, target string) (string, error) {
	return f(ctx, prompt, target)
}
