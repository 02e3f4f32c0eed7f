// Package events defines the classified events produced from observed chat
// output, together with a bounded history buffer and display formatting.
package events

import "time"

// Kind identifies what a classified event represents.
type Kind string

const (
	KindConfirmation       Kind = "confirmation"
	KindLimitApproaching   Kind = "limit_approaching"
	KindTimeUntilReset     Kind = "time_until_reset"
	KindSessionStart       Kind = "session_start"
	KindTokenUsageReported Kind = "token_usage_reported"
	KindErrorMessage       Kind = "error_message"
)

// Kinds lists every event kind in display order.
var Kinds = []Kind{
	KindConfirmation,
	KindLimitApproaching,
	KindTimeUntilReset,
	KindSessionStart,
	KindTokenUsageReported,
	KindErrorMessage,
}

// Event is one classified occurrence within a text fragment. Events are
// never mutated after the classifier creates them.
type Event struct {
	Kind           Kind      `json:"kind"`
	Source         string    `json:"source"`
	Content        string    `json:"content"`
	MatchedPattern string    `json:"matched_pattern"`
	Value          string    `json:"value,omitempty"` // captured group, e.g. "14:30" or "1200"
	OccurredAt     time.Time `json:"occurred_at"`
}
