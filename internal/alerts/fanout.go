package alerts

import (
	"log"
	"sync"
	"time"
)

// Multi delivers each alert to every configured sink. A panicking sink is
// logged and skipped so the remaining sinks still receive the alert.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out over the non-nil sinks.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends a sink after construction.
func (m *Multi) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

func (m *Multi) Notify(alert Alert) {
	if alert.FiredAt.IsZero() {
		alert.FiredAt = time.Now()
	}
	for _, s := range m.sinks {
		deliver(s, alert)
	}
}

func deliver(s Sink, alert Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: alert sink %T panicked: %v", s, r)
		}
	}()
	s.Notify(alert)
}

// PersistSink adapts an AlertPersister to the Sink interface.
type PersistSink struct {
	P AlertPersister
}

func (p PersistSink) Notify(alert Alert) {
	p.P.PersistAlert(alert)
}

// Throttle forwards an alert only if no alert with the same rule, severity
// and source was forwarded within the cooldown.
type Throttle struct {
	next     Sink
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle wraps next. A non-positive cooldown forwards everything.
func NewThrottle(next Sink, cooldown time.Duration) *Throttle {
	return &Throttle{
		next:     next,
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

func (t *Throttle) Notify(alert Alert) {
	if t.cooldown > 0 {
		key := alert.alertKey()
		now := t.now()

		t.mu.Lock()
		prev, seen := t.last[key]
		if seen && now.Sub(prev) < t.cooldown {
			t.mu.Unlock()
			return
		}
		t.last[key] = now
		t.mu.Unlock()
	}
	t.next.Notify(alert)
}

// Recorder keeps the most recent alerts in memory.
type Recorder struct {
	mu     sync.Mutex
	max    int
	alerts []Alert
}

// NewRecorder keeps at most max alerts (oldest dropped first).
func NewRecorder(max int) *Recorder {
	if max < 1 {
		max = 1
	}
	return &Recorder{max: max}
}

func (r *Recorder) Notify(alert Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	if len(r.alerts) > r.max {
		r.alerts = r.alerts[len(r.alerts)-r.max:]
	}
}

// Alerts returns a copy of the recorded alerts, oldest first.
func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// ByRule returns the recorded alerts with the given rule.
func (r *Recorder) ByRule(rule string) []Alert {
	var out []Alert
	for _, a := range r.Alerts() {
		if a.Rule == rule {
			out = append(out, a)
		}
	}
	return out
}
