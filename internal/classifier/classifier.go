// Package classifier turns text fragments into typed events by running the
// pattern rule table over them.
package classifier

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nixlim/cc-sentinel/internal/events"
	"github.com/nixlim/cc-sentinel/internal/patterns"
)

// DefaultRadius is the context kept on each side of a match for rules that
// do not set their own.
const DefaultRadius = 150

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	rules  []patterns.Rule
	radius int
	now    func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the time source used for OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// WithRadius overrides the default context radius.
func WithRadius(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.radius = n
		}
	}
}

// WithRules replaces the rule table.
func WithRules(rules []patterns.Rule) Option {
	return func(c *Classifier) { c.rules = rules }
}

// New creates a Classifier over the built-in rule table.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules:  patterns.Rules(),
		radius: DefaultRadius,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns one event per non-overlapping match of every rule, in rule
// order. Several rules may fire on the same fragment.
func (c *Classifier) Classify(fragment, source string) []events.Event {
	if fragment == "" {
		return nil
	}

	at := c.now()
	var out []events.Event
	for _, rule := range c.rules {
		radius := rule.Radius
		if radius <= 0 {
			radius = c.radius
		}
		for _, m := range rule.Expr.FindAllStringSubmatchIndex(fragment, -1) {
			out = append(out, events.Event{
				Kind:           rule.Kind,
				Source:         source,
				Content:        contextWindow(fragment, m[0], m[1], radius),
				MatchedPattern: rule.ID,
				Value:          firstGroup(fragment, m),
				OccurredAt:     at,
			})
		}
	}
	return out
}

// contextWindow returns the trimmed text within radius bytes of [start, end),
// clamped to the fragment and widened to whole runes.
func contextWindow(s string, start, end, radius int) string {
	lo := max(start-radius, 0)
	hi := min(end+radius, len(s))
	for lo > 0 && !utf8.RuneStart(s[lo]) {
		lo--
	}
	for hi < len(s) && !utf8.RuneStart(s[hi]) {
		hi++
	}
	return strings.TrimSpace(s[lo:hi])
}

func firstGroup(s string, m []int) string {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 && m[i+1] > m[i] {
			return s[m[i]:m[i+1]]
		}
	}
	return ""
}

// ExplicitTokens returns the first integer reported by a token-usage event,
// if any.
func ExplicitTokens(evs []events.Event) (int, bool) {
	for _, e := range evs {
		if e.Kind != events.KindTokenUsageReported || e.Value == "" {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(e.Value, ",", ""))
		if err != nil || n < 0 {
			continue
		}
		return n, true
	}
	return 0, false
}
