// Package patterns holds the static rule table used to classify chat output.
package patterns

import (
	"regexp"

	"github.com/nixlim/cc-sentinel/internal/events"
)

// Rule is a named case-insensitive matcher for one event kind. When the
// expression has capture groups, the first non-empty group becomes the
// event's Value.
type Rule struct {
	ID     string
	Kind   events.Kind
	Expr   *regexp.Regexp
	Radius int // context characters kept on each side of a match; 0 uses the classifier default
}

// Confirmation is a single combined rule so one question yields one event.
// It matches a sentence ending in "?" that contains a yes/no word, a
// continue/abort/proceed word, or a numbered (1-3) or lettered (a-c) option.
var confirmation = regexp.MustCompile(`(?i)[^.?!\n]*(?:\b(?:yes|no|continue|abort|proceed|do you want|would you like|should i|are you sure|confirm)\b|\b[1-3][.)]|\b[a-c]\))[^?\n]*\?`)

var rules = []Rule{
	{
		ID:     "confirmation.question",
		Kind:   events.KindConfirmation,
		Expr:   confirmation,
		Radius: 200,
	},
	{
		ID:   "limit.approaching_5h",
		Kind: events.KindLimitApproaching,
		Expr: regexp.MustCompile(`(?i)approaching[^\n]{0,60}?\b5[- ]?hours?\b[^\n]{0,40}?\blimit|\b5[- ]?hours?\b[^\n]{0,40}?\blimit\b[^\n]{0,40}?\b(?:approaching|soon|nearly|almost)\b`),
	},
	{
		ID:   "limit.usage_soon",
		Kind: events.KindLimitApproaching,
		Expr: regexp.MustCompile(`(?i)\busage limit\b[^\n]{0,40}?\bsoon\b|\bsession\b[^\n]{0,40}?\bexpires?\b[^\n]{0,20}?\bsoon\b`),
	},
	{
		ID:   "limit.reset_time",
		Kind: events.KindTimeUntilReset,
		Expr: regexp.MustCompile(`(?i)\b(?:until|resets?|available)\b[^\n]{0,60}?\b(\d{1,2}:\d{2})\b`),
	},
	{
		ID:   "session.start",
		Kind: events.KindSessionStart,
		Expr: regexp.MustCompile(`(?i)\bnew (?:chat |conversation )?session\b|\bsession (?:started|starting|start)\b|\bwelcome to claude\b|\bwelcome back\b`),
	},
	{
		ID:   "tokens.reported",
		Kind: events.KindTokenUsageReported,
		Expr: regexp.MustCompile(`(?i)\b(\d[\d,]*)\s*tokens?\s+(?:used|remaining|consumed|processed|left)\b|\b(?:total tokens|token usage|tokens used|tokens remaining)\s*:?\s*(\d[\d,]*)?`),
	},
	{
		ID:   "error.generic",
		Kind: events.KindErrorMessage,
		Expr: regexp.MustCompile(`(?i)\b(?:error|failed|unable|cannot)\b`),
	},
}

// Rules returns the rule table in evaluation order. The returned slice is a
// copy; the compiled expressions are shared and safe for concurrent use.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// ByKind returns the rules that emit the given kind.
func ByKind(kind events.Kind) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
