// Package monitor drives the ingestion pipeline: snapshots from observed
// sources are diffed, classified, deduplicated and reported.
package monitor

import (
	"context"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/classifier"
	"github.com/nixlim/cc-sentinel/internal/dedup"
	"github.com/nixlim/cc-sentinel/internal/differ"
	"github.com/nixlim/cc-sentinel/internal/events"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

// Snapshot is the full visible text of one source at one instant.
type Snapshot struct {
	Source string
	Text   string
	At     time.Time
}

// Source yields snapshots until ctx is cancelled or the source is
// exhausted. Each call to Snapshots starts a fresh sequence.
type Source interface {
	Snapshots(ctx context.Context) iter.Seq[Snapshot]
}

// Logger receives every classified event, duplicates included.
type Logger interface {
	LogEvent(e events.Event)
}

type nopLogger struct{}

func (nopLogger) LogEvent(events.Event) {}

// Monitor owns the per-source pipeline state.
type Monitor struct {
	differ     *differ.Differ
	classifier *classifier.Classifier
	dedup      *dedup.Suppressor
	tracker    *limits.Tracker
	ledger     *tokens.Ledger
	sink       alerts.Sink
	checkSink  alerts.Sink
	recent     *events.Ring[events.Event]
	rate       *tokens.RateCalculator
	logger     Logger

	limitSeconds int
	now          func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source for snapshots that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the debug event logger.
func WithLogger(l Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLimitSeconds sets the session limit registered for new sources.
func WithLimitSeconds(n int) Option {
	return func(m *Monitor) { m.limitSeconds = n }
}

// WithCheckSink routes the alerts raised by the periodic token check,
// which repeat while usage stays high, to s instead of the main sink.
func WithCheckSink(s alerts.Sink) Option {
	return func(m *Monitor) { m.checkSink = s }
}

// WithBufferSize sets how many reported events Recent retains.
func WithBufferSize(n int) Option {
	return func(m *Monitor) { m.recent = events.NewRing[events.Event](n) }
}

// New wires a Monitor from its collaborators. sink may be nil.
func New(c *classifier.Classifier, s *dedup.Suppressor, t *limits.Tracker, l *tokens.Ledger, sink alerts.Sink, opts ...Option) *Monitor {
	if sink == nil {
		sink = alerts.Nop{}
	}
	m := &Monitor{
		differ:     differ.New(),
		classifier: c,
		dedup:      s,
		tracker:    t,
		ledger:     l,
		sink:       sink,
		recent:     events.NewRing[events.Event](500),
		rate:       tokens.NewRateCalculator(),
		logger:     nopLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.checkSink == nil {
		m.checkSink = m.sink
	}
	return m
}

// Process runs one snapshot through the pipeline and returns the events
// that were reported.
func (m *Monitor) Process(s Snapshot) []events.Event {
	at := s.At
	if at.IsZero() {
		at = m.now()
	}

	m.tracker.StartTracking(s.Source, at, m.limitSeconds)

	fragment, ok := m.differ.Diff(s.Source, s.Text)
	if !ok {
		return nil
	}

	evs := m.classifier.Classify(fragment, s.Source)

	var explicit *int
	if n, ok := classifier.ExplicitTokens(evs); ok {
		explicit = &n
	}
	m.ledger.RecordUsage(s.Source, fragment, explicit, at)

	var reported []events.Event
	for _, e := range evs {
		m.logger.LogEvent(e)
		if m.dedup.IsDuplicate(e) {
			continue
		}
		m.recent.Push(e)
		m.report(e, at)
		reported = append(reported, e)
	}
	return reported
}

func (m *Monitor) report(e events.Event, at time.Time) {
	a := alerts.Alert{
		Source:   e.Source,
		FiredAt:  at,
		Severity: alerts.SeverityInfo,
		Message:  events.Format(e),
	}

	switch e.Kind {
	case events.KindConfirmation:
		a.Rule = alerts.RuleConfirmation
		a.Severity = alerts.SeverityWarning

	case events.KindLimitApproaching:
		a.Rule = alerts.RuleLimitApproaching
		a.Severity = alerts.SeverityWarning
		m.tracker.RecordExternal(e.Source, e.Content, at)

	case events.KindTimeUntilReset:
		a.Rule = alerts.RuleLimitReset
		if next, err := limits.NextReset(e.Value, at); err == nil {
			a.Message = fmt.Sprintf("[%s] %s", events.ShortSource(e.Source), limits.ResetMessage(next, at))
		} else if d, ok := limits.ParseRemaining(e.Content); ok {
			a.Message = fmt.Sprintf("[%s] %s", events.ShortSource(e.Source), limits.ResetMessage(at.Add(d), at))
		}

	case events.KindSessionStart:
		// Alert only. A banner still on screen is re-reported whenever the
		// window slides, so it cannot restart the limit window.
		a.Rule = alerts.RuleSessionStart

	case events.KindTokenUsageReported:
		a.Rule = alerts.RuleTokenUsage

	case events.KindErrorMessage:
		a.Rule = alerts.RuleError
		a.Severity = alerts.SeverityWarning

	default:
		log.Printf("WARNING: monitor: unhandled event kind %q from %s", e.Kind, e.Source)
		return
	}

	m.sink.Notify(a)
}

// Run consumes src until ctx is cancelled or the sequence ends. A
// panicking snapshot is logged and skipped.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	for s := range src.Snapshots(ctx) {
		m.safeProcess(s)
		if ctx.Err() != nil {
			break
		}
	}
	return ctx.Err()
}

func (m *Monitor) safeProcess(s Snapshot) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: monitor: processing snapshot from %s panicked: %v", s.Source, p)
		}
	}()
	m.Process(s)
}

// Forget drops all pipeline state kept for source.
func (m *Monitor) Forget(source string) {
	m.differ.Forget(source)
	m.tracker.Reset(source)
}

// Recent returns up to limit of the most recently reported events.
func (m *Monitor) Recent(limit int) []events.Event {
	return m.recent.Last(limit)
}
