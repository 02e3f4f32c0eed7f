package events

import (
	"fmt"
	"strings"
)

var kindTitles = map[Kind]string{
	KindConfirmation:       "Confirmation needed",
	KindLimitApproaching:   "Usage limit approaching",
	KindTimeUntilReset:     "Limit reset time",
	KindSessionStart:       "New session",
	KindTokenUsageReported: "Token usage",
	KindErrorMessage:       "Error",
}

// Title returns a short human-readable heading for the kind.
func (k Kind) Title() string {
	if t, ok := kindTitles[k]; ok {
		return t
	}
	return string(k)
}

// Format renders an event as a single display line:
//
//	[source] Title (value): content
//
// Content is collapsed onto one line and truncated to 120 characters.
func Format(e Event) string {
	content := truncate(collapse(e.Content), 120)
	head := fmt.Sprintf("[%s] %s", ShortSource(e.Source), e.Kind.Title())
	if e.Value != "" {
		head += fmt.Sprintf(" (%s)", e.Value)
	}
	if content == "" {
		return head
	}
	return head + ": " + content
}

// FormatTokenCount renders a token count, switching to "Xk" above 1000.
func FormatTokenCount(count int64) string {
	if count >= 1000 {
		return fmt.Sprintf("%.1fk", float64(count)/1000)
	}
	return fmt.Sprintf("%d", count)
}

// ShortSource shortens a source identifier for display.
func ShortSource(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// collapse joins all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to maxLen runes with an ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
