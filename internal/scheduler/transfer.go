package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"
)

const exportVersion = 1

type exportDoc struct {
	Version    int         `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Jobs       []exportJob `json:"jobs"`
}

type exportJob struct {
	Prompt        string     `json:"prompt"`
	Target        string     `json:"target,omitempty"`
	Recurrence    Recurrence `json:"recurrence"`
	Enabled       bool       `json:"enabled"`
	RemainingRuns *int       `json:"remaining_runs,omitempty"`
	Priority      Priority   `json:"priority,omitempty"`
	Quiet         bool       `json:"quiet,omitempty"`
}

// Export writes the definitions of all jobs that are not completed as JSON.
// Run state is not exported.
func (e *Engine) Export(w io.Writer) error {
	doc := exportDoc{Version: exportVersion, ExportedAt: e.now(), Jobs: []exportJob{}}
	for _, j := range e.ListJobs() {
		if j.Status == StatusCompleted {
			continue
		}
		doc.Jobs = append(doc.Jobs, exportJob{
			Prompt:        j.Prompt,
			Target:        j.Target,
			Recurrence:    j.Recurrence,
			Enabled:       j.Enabled,
			RemainingRuns: j.RemainingRuns,
			Priority:      j.Priority,
			Quiet:         j.Quiet,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding jobs: %w", err)
	}
	return nil
}

// Import adds the jobs of an Export document under fresh ids and returns
// how many were added. Entries that no longer validate, such as one-time
// jobs in the past, are skipped with a warning.
func (e *Engine) Import(r io.Reader) (int, error) {
	var doc exportDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decoding jobs: %w", err)
	}
	if doc.Version != exportVersion {
		return 0, fmt.Errorf("unsupported export version %d", doc.Version)
	}

	n := 0
	for i, ej := range doc.Jobs {
		spec := JobSpec{Prompt: ej.Prompt, Target: ej.Target, Recurrence: ej.Recurrence, Priority: ej.Priority, Quiet: ej.Quiet}
		if ej.RemainingRuns != nil {
			if *ej.RemainingRuns <= 0 {
				log.Printf("WARNING: skipping imported job %d: no remaining runs", i+1)
				continue
			}
			spec.Runs = *ej.RemainingRuns
		}
		id, err := e.AddJob(spec)
		if err != nil {
			log.Printf("WARNING: skipping imported job %d: %v", i+1, err)
			continue
		}
		if !ej.Enabled {
			if _, err := e.ToggleJob(id); err != nil {
				log.Printf("WARNING: pausing imported job %d: %v", id, err)
			}
		}
		n++
	}
	return n, nil
}
