// Package limits tracks elapsed session time against the per-session usage
// limit and raises one notice per crossed threshold.
package limits

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
)

// DefaultLimitSeconds is the session limit used when none is configured.
const DefaultLimitSeconds = 18000

// DefaultThresholds are the fractions of the limit at which a warning fires.
var DefaultThresholds = []float64{0.8, 0.9, 0.95}

// Status is the lifecycle state of a tracked session.
type Status string

const (
	StatusActive   Status = "active"
	StatusExceeded Status = "exceeded"
)

// SessionLimitState is the tracked state of one source.
type SessionLimitState struct {
	Source       string
	StartTime    time.Time
	LimitSeconds int
	WarningsSent map[float64]bool
	Status       Status
}

// Notice is emitted by CheckAll when a source crosses a threshold or the
// limit itself. Threshold is zero for an Exceeded notice.
type Notice struct {
	Source    string
	Threshold float64
	Exceeded  bool
	Elapsed   time.Duration
	Remaining time.Duration
	At        time.Time
}

// Message renders the notice as a human-readable line.
func (n Notice) Message() string {
	if n.Exceeded {
		return fmt.Sprintf("session limit reached after %s", formatDuration(n.Elapsed))
	}
	return fmt.Sprintf("%.0f%% of session limit used (%s elapsed, %s remaining)",
		n.Threshold*100, formatDuration(n.Elapsed), formatDuration(n.Remaining))
}

type entry struct {
	mu    sync.Mutex
	state SessionLimitState
}

// Tracker owns the per-source limit states. The map is guarded by mu; each
// state has its own lock so checks on different sources never contend.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	defaultLimit int
	thresholds   []float64
	sink         alerts.Sink
	log          WarningLog
}

// NewTracker creates a tracker. A non-positive defaultLimit selects
// DefaultLimitSeconds and an empty thresholds slice selects
// DefaultThresholds. sink and wlog may be nil.
func NewTracker(defaultLimit int, thresholds []float64, sink alerts.Sink, wlog WarningLog) *Tracker {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimitSeconds
	}
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	ths := make([]float64, 0, len(thresholds))
	for _, th := range thresholds {
		if th <= 0 || th >= 1 {
			log.Printf("WARNING: ignoring session limit threshold %v outside (0, 1)", th)
			continue
		}
		ths = append(ths, th)
	}
	sort.Float64s(ths)
	if sink == nil {
		sink = alerts.Nop{}
	}
	return &Tracker{
		sessions:     make(map[string]*entry),
		defaultLimit: defaultLimit,
		thresholds:   ths,
		sink:         sink,
		log:          wlog,
	}
}

// StartTracking registers source with the given start instant. It returns
// false and changes nothing when the source is already tracked.
func (t *Tracker) StartTracking(source string, start time.Time, limitSeconds int) bool {
	if limitSeconds <= 0 {
		limitSeconds = t.defaultLimit
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[source]; ok {
		return false
	}
	t.sessions[source] = &entry{state: SessionLimitState{
		Source:       source,
		StartTime:    start,
		LimitSeconds: limitSeconds,
		WarningsSent: make(map[float64]bool, len(t.thresholds)),
		Status:       StatusActive,
	}}
	return true
}

// CheckAll evaluates every tracked source against now and returns the
// notices produced by this call. Each threshold fires at most once per
// tracking lifetime and Exceeded fires once, on the transition.
func (t *Tracker) CheckAll(now time.Time) []Notice {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.sessions))
	for _, e := range t.sessions {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	var notices []Notice
	for _, e := range entries {
		notices = append(notices, t.check(e, now)...)
	}
	sort.SliceStable(notices, func(i, j int) bool {
		return notices[i].Source < notices[j].Source
	})

	for _, n := range notices {
		t.emit(n)
	}
	return notices
}

func (t *Tracker) check(e *entry, now time.Time) []Notice {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := &e.state
	if st.Status == StatusExceeded {
		return nil
	}

	elapsed := now.Sub(st.StartTime)
	limit := time.Duration(st.LimitSeconds) * time.Second
	if elapsed >= limit {
		st.Status = StatusExceeded
		return []Notice{{Source: st.Source, Exceeded: true, Elapsed: elapsed, At: now}}
	}

	var out []Notice
	for _, th := range t.thresholds {
		if st.WarningsSent[th] {
			continue
		}
		if elapsed.Seconds() >= float64(st.LimitSeconds)*th {
			st.WarningsSent[th] = true
			out = append(out, Notice{
				Source:    st.Source,
				Threshold: th,
				Elapsed:   elapsed,
				Remaining: limit - elapsed,
				At:        now,
			})
		}
	}
	return out
}

func (t *Tracker) emit(n Notice) {
	a := alerts.Alert{
		Rule:     alerts.RuleSessionLimitWarning,
		Severity: alerts.SeverityWarning,
		Message:  n.Message(),
		Source:   n.Source,
		FiredAt:  n.At,
	}
	w := Warning{
		Type:           WarningThreshold,
		Source:         n.Source,
		Threshold:      n.Threshold,
		Message:        a.Message,
		ElapsedSeconds: int64(n.Elapsed.Seconds()),
		At:             n.At,
	}
	switch {
	case n.Exceeded:
		a.Rule = alerts.RuleSessionLimitExceeded
		a.Severity = alerts.SeverityCritical
		w.Type = WarningExceeded
	case n.Threshold >= 0.95:
		a.Severity = alerts.SeverityCritical
	}

	t.sink.Notify(a)
	t.appendWarning(w)
}

// RecordExternal logs a limit warning reported by the observed application
// itself rather than computed from elapsed time.
func (t *Tracker) RecordExternal(source, message string, at time.Time) {
	w := Warning{
		Type:    WarningExternal,
		Source:  source,
		Message: message,
		At:      at,
	}
	if d, ok := ParseRemaining(message); ok {
		w.RemainingSeconds = int64(d.Seconds())
	}
	t.appendWarning(w)
}

func (t *Tracker) appendWarning(w Warning) {
	if t.log == nil {
		return
	}
	if err := t.log.AppendWarning(w); err != nil {
		log.Printf("ERROR: writing limit warning for %s: %v", w.Source, err)
	}
}

// Reset drops the state of source. The next StartTracking starts afresh.
func (t *Tracker) Reset(source string) {
	t.mu.Lock()
	delete(t.sessions, source)
	t.mu.Unlock()
}

// State returns a copy of the tracked state of source.
func (t *Tracker) State(source string) (SessionLimitState, bool) {
	t.mu.RLock()
	e, ok := t.sessions[source]
	t.mu.RUnlock()
	if !ok {
		return SessionLimitState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.state
	st.WarningsSent = make(map[float64]bool, len(e.state.WarningsSent))
	for k, v := range e.state.WarningsSent {
		st.WarningsSent[k] = v
	}
	return st, true
}

// Sources returns the tracked source ids in sorted order.
func (t *Tracker) Sources() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.sessions))
	for s := range t.sessions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Thresholds returns the effective sorted thresholds.
func (t *Tracker) Thresholds() []float64 {
	out := make([]float64, len(t.thresholds))
	copy(out, t.thresholds)
	return out
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
