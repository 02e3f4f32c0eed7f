// Package dedup suppresses near-duplicate confirmation events raised for the
// same source within a recency window.
package dedup

import (
	"sync"
	"time"

	"github.com/nixlim/cc-sentinel/internal/events"
)

const (
	DefaultWindow      = 300 * time.Second
	DefaultThreshold   = 0.8
	DefaultHistorySize = 50
)

// Suppressor keeps a bounded history of reported confirmations.
type Suppressor struct {
	mu        sync.Mutex
	history   *events.Ring[events.Event]
	window    time.Duration
	threshold float64
}

// NewSuppressor creates a Suppressor. Non-positive arguments fall back to the
// package defaults.
func NewSuppressor(window time.Duration, threshold float64, historySize int) *Suppressor {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if historySize < 1 {
		historySize = DefaultHistorySize
	}
	return &Suppressor{
		history:   events.NewRing[events.Event](historySize),
		window:    window,
		threshold: threshold,
	}
}

// IsDuplicate reports whether candidate repeats a confirmation already raised
// for the same source within the window. Only confirmations are checked;
// every other kind is reported as not duplicate and is not recorded. A
// non-duplicate confirmation is appended to the history.
func (s *Suppressor) IsDuplicate(candidate events.Event) bool {
	if candidate.Kind != events.KindConfirmation {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, prev := range s.history.Select(events.FromSource(candidate.Source)) {
		age := candidate.OccurredAt.Sub(prev.OccurredAt)
		if age < 0 {
			age = -age
		}
		if age >= s.window {
			continue
		}
		if Similarity(candidate.Content, prev.Content) >= s.threshold {
			return true
		}
	}

	s.history.Push(candidate)
	return false
}

// History returns the recorded confirmations, oldest first.
func (s *Suppressor) History() []events.Event {
	return s.history.Snapshot()
}
