// Package source provides the observed conversations fed to the monitor:
// tmux panes, transcript files and commands run under a pseudo-terminal.
package source

import (
	"context"
	"iter"
	"log"
	"time"

	"github.com/nixlim/cc-sentinel/internal/monitor"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 1500 * time.Millisecond

// Capturer returns the current full text of one source.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// CaptureFunc adapts a function to the Capturer interface.
type CaptureFunc func(ctx context.Context) (string, error)

func (f CaptureFunc) Capture(ctx context.Context) (string, error) { return f(ctx) }

// Named pairs a capturer with the source name reported to the monitor.
type Named struct {
	Name     string
	Capturer Capturer
}

// Poller captures every source once per interval and yields the results
// as snapshots. A failing source is skipped for that round.
type Poller struct {
	sources  []Named
	interval time.Duration
	now      func() time.Time
}

func NewPoller(interval time.Duration, sources ...Named) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{sources: sources, interval: interval, now: time.Now}
}

// Add registers another source.
func (p *Poller) Add(n Named) {
	p.sources = append(p.sources, n)
}

// Len returns the number of registered sources.
func (p *Poller) Len() int {
	return len(p.sources)
}

// Snapshots polls until ctx is cancelled. The first round runs
// immediately.
func (p *Poller) Snapshots(ctx context.Context) iter.Seq[monitor.Snapshot] {
	return func(yield func(monitor.Snapshot) bool) {
		failing := make(map[string]bool, len(p.sources))
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			for _, src := range p.sources {
				if ctx.Err() != nil {
					return
				}
				text, err := src.Capturer.Capture(ctx)
				if err != nil {
					if !failing[src.Name] {
						log.Printf("WARNING: capturing %s: %v", src.Name, err)
						failing[src.Name] = true
					}
					continue
				}
				if failing[src.Name] {
					log.Printf("source %s recovered", src.Name)
					delete(failing, src.Name)
				}
				if !yield(monitor.Snapshot{Source: src.Name, Text: text, At: p.now()}) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

var _ monitor.Source = (*Poller)(nil)
