package tokens

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
)

// DateLayout is the layout of day bucket keys.
const DateLayout = "2006-01-02"

// Default daily thresholds on estimated tokens.
const (
	DefaultDailyWarning  = 50000
	DefaultDailyCritical = 80000
)

// Level is the outcome of a daily threshold check.
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelCritical
)

// String returns a human-readable name for the level.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "ok"
	}
}

// SourceTotals are the cumulative counts for one source.
type SourceTotals struct {
	TotalEstimated int64 `json:"total_estimated"`
	TotalExplicit  int64 `json:"total_explicit"`
	MessageCount   int64 `json:"message_count"`
}

// DayTotals are the cumulative counts for one local calendar day. BySource
// splits them per source; buckets written before it existed lack it.
type DayTotals struct {
	Date            string                  `json:"date"`
	TotalEstimated  int64                   `json:"total_estimated"`
	TotalExplicit   int64                   `json:"total_explicit"`
	MessageCount    int64                   `json:"message_count"`
	DistinctSources []string                `json:"distinct_sources"`
	BySource        map[string]SourceTotals `json:"by_source,omitempty"`
}

// LedgerStore persists day buckets.
type LedgerStore interface {
	SaveDay(day DayTotals) error
	LoadDay(date string) (DayTotals, bool, error)
}

type sourceEntry struct {
	mu     sync.Mutex
	totals SourceTotals
}

type dayEntry struct {
	totals  DayTotals
	sources map[string]bool
}

// Ledger accumulates token usage. Totals never decrease.
type Ledger struct {
	mu      sync.RWMutex
	sources map[string]*sourceEntry

	// dayMu guards days and serializes day file writes so a slower write
	// never replaces a newer one.
	dayMu sync.Mutex
	days  map[string]*dayEntry

	warning  int64
	critical int64
	sink     alerts.Sink
	store    LedgerStore
}

// NewLedger creates a ledger with the given daily thresholds. Non-positive
// thresholds select the defaults. sink and store may be nil.
func NewLedger(warning, critical int64, sink alerts.Sink, store LedgerStore) *Ledger {
	if warning <= 0 {
		warning = DefaultDailyWarning
	}
	if critical <= 0 {
		critical = DefaultDailyCritical
	}
	if sink == nil {
		sink = alerts.Nop{}
	}
	return &Ledger{
		sources:  make(map[string]*sourceEntry),
		days:     make(map[string]*dayEntry),
		warning:  warning,
		critical: critical,
		sink:     sink,
		store:    store,
	}
}

// DateKey returns the day bucket key for t in local time.
func DateKey(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// RecordUsage estimates text and adds the estimate, plus explicit when
// present, to the totals of source and of the local day of at. It returns
// the estimate.
func (l *Ledger) RecordUsage(source, text string, explicit *int, at time.Time) int {
	est := Estimate(text)

	var exp int64
	if explicit != nil {
		if *explicit < 0 {
			log.Printf("WARNING: ignoring negative explicit token count %d for %s", *explicit, source)
		} else {
			exp = int64(*explicit)
		}
	}

	se := l.sourceEntry(source)
	se.mu.Lock()
	se.totals.TotalEstimated += int64(est)
	se.totals.TotalExplicit += exp
	se.totals.MessageCount++
	se.mu.Unlock()

	l.addToDay(DateKey(at), source, int64(est), exp)
	return est
}

func (l *Ledger) sourceEntry(source string) *sourceEntry {
	l.mu.RLock()
	se, ok := l.sources[source]
	l.mu.RUnlock()
	if ok {
		return se
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if se, ok = l.sources[source]; ok {
		return se
	}
	se = &sourceEntry{}
	l.sources[source] = se
	return se
}

func (l *Ledger) addToDay(date, source string, est, exp int64) {
	l.dayMu.Lock()
	defer l.dayMu.Unlock()

	d := l.dayLocked(date)
	d.totals.TotalEstimated += est
	d.totals.TotalExplicit += exp
	d.totals.MessageCount++
	st := d.totals.BySource[source]
	st.TotalEstimated += est
	st.TotalExplicit += exp
	st.MessageCount++
	d.totals.BySource[source] = st
	if !d.sources[source] {
		d.sources[source] = true
		d.totals.DistinctSources = append(d.totals.DistinctSources, source)
		sort.Strings(d.totals.DistinctSources)
	}

	if l.store == nil {
		return
	}
	if err := l.store.SaveDay(copyDay(d.totals)); err != nil {
		log.Printf("ERROR: saving token ledger for %s: %v", date, err)
	}
}

func (l *Ledger) dayLocked(date string) *dayEntry {
	d, ok := l.days[date]
	if !ok {
		d = &dayEntry{
			totals:  DayTotals{Date: date, BySource: make(map[string]SourceTotals)},
			sources: make(map[string]bool),
		}
		l.days[date] = d
	}
	return d
}

// Restore loads the persisted bucket for date and merges it into memory.
// It is meant to be called once at startup, before any RecordUsage for
// that date.
func (l *Ledger) Restore(date string) error {
	if l.store == nil {
		return nil
	}
	saved, ok, err := l.store.LoadDay(date)
	if err != nil {
		return fmt.Errorf("loading token ledger for %s: %w", date, err)
	}
	if !ok {
		return nil
	}

	l.dayMu.Lock()
	defer l.dayMu.Unlock()
	d := l.dayLocked(date)
	d.totals.TotalEstimated += saved.TotalEstimated
	d.totals.TotalExplicit += saved.TotalExplicit
	d.totals.MessageCount += saved.MessageCount
	for src, st := range saved.BySource {
		cur := d.totals.BySource[src]
		cur.TotalEstimated += st.TotalEstimated
		cur.TotalExplicit += st.TotalExplicit
		cur.MessageCount += st.MessageCount
		d.totals.BySource[src] = cur
	}
	for _, s := range saved.DistinctSources {
		if !d.sources[s] {
			d.sources[s] = true
			d.totals.DistinctSources = append(d.totals.DistinctSources, s)
		}
	}
	sort.Strings(d.totals.DistinctSources)
	return nil
}

// SourceTotals returns the totals for source.
func (l *Ledger) SourceTotals(source string) (SourceTotals, bool) {
	l.mu.RLock()
	se, ok := l.sources[source]
	l.mu.RUnlock()
	if !ok {
		return SourceTotals{}, false
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.totals, true
}

// Sources returns the ids of all sources with recorded usage, sorted.
func (l *Ledger) Sources() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.sources))
	for s := range l.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Day returns the bucket for date ("YYYY-MM-DD").
func (l *Ledger) Day(date string) (DayTotals, bool) {
	l.dayMu.Lock()
	defer l.dayMu.Unlock()
	d, ok := l.days[date]
	if !ok {
		return DayTotals{Date: date}, false
	}
	return copyDay(d.totals), true
}

// Level classifies total against the ledger thresholds.
func (l *Ledger) Level(total int64) Level {
	switch {
	case total > l.critical:
		return LevelCritical
	case total > l.warning:
		return LevelWarning
	default:
		return LevelNone
	}
}

// CheckDailyThresholds evaluates the bucket for date and raises an alert
// when a threshold is exceeded. Repeated calls re-raise a standing level;
// rate limiting is left to the sink.
func (l *Ledger) CheckDailyThresholds(date string) Level {
	d, _ := l.Day(date)
	lvl := l.Level(d.TotalEstimated)

	switch lvl {
	case LevelCritical:
		l.sink.Notify(alerts.Alert{
			Rule:     alerts.RuleDailyTokens,
			Severity: alerts.SeverityCritical,
			Message:  fmt.Sprintf("daily token estimate %d exceeds critical limit %d", d.TotalEstimated, l.critical),
		})
	case LevelWarning:
		l.sink.Notify(alerts.Alert{
			Rule:     alerts.RuleDailyTokens,
			Severity: alerts.SeverityWarning,
			Message:  fmt.Sprintf("daily token estimate %d exceeds warning limit %d", d.TotalEstimated, l.warning),
		})
	}
	return lvl
}

func copyDay(d DayTotals) DayTotals {
	src := make([]string, len(d.DistinctSources))
	copy(src, d.DistinctSources)
	d.DistinctSources = src
	if d.BySource != nil {
		by := make(map[string]SourceTotals, len(d.BySource))
		for k, v := range d.BySource {
			by[k] = v
		}
		d.BySource = by
	}
	return d
}
