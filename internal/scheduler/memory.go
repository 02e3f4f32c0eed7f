package scheduler

import (
	"sort"
	"sync"
)

// MemoryStore is a JobStore and RunLog that keeps everything in memory.
// It backs tests and runs where persistence is unavailable.
type MemoryStore struct {
	mu   sync.Mutex
	set  JobSet
	runs []RunRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{set: JobSet{NextID: 1}}
}

func (m *MemoryStore) LoadJobs() (JobSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSet(m.set), nil
}

func (m *MemoryStore) SaveJobs(set JobSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = cloneSet(set)
	return nil
}

func (m *MemoryStore) AppendRun(rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *MemoryStore) Runs(jobID, limit int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FilterRuns(m.runs, jobID, limit), nil
}

// FilterRuns selects the records of jobID (0 for all), orders them by
// FiredAt and keeps the last limit entries when limit > 0.
func FilterRuns(runs []RunRecord, jobID, limit int) []RunRecord {
	out := make([]RunRecord, 0, len(runs))
	for _, r := range runs {
		if jobID == 0 || r.JobID == jobID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FiredAt.Before(out[j].FiredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func cloneSet(s JobSet) JobSet {
	out := JobSet{NextID: s.NextID, Jobs: make([]Job, len(s.Jobs))}
	for i, j := range s.Jobs {
		out.Jobs[i] = j.clone()
	}
	return out
}
