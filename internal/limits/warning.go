package limits

import "time"

// Warning types written to the warning log.
const (
	WarningThreshold = "threshold"
	WarningExceeded  = "exceeded"
	WarningExternal  = "claude_limit_approaching"
)

// Warning is one entry of the per-day limit warning log.
type Warning struct {
	Type             string    `json:"type"`
	Source           string    `json:"source"`
	Threshold        float64   `json:"threshold,omitempty"`
	Message          string    `json:"message"`
	ElapsedSeconds   int64     `json:"elapsed_seconds,omitempty"`
	RemainingSeconds int64     `json:"remaining_seconds,omitempty"`
	At               time.Time `json:"at"`
}

// WarningLog persists limit warnings.
type WarningLog interface {
	AppendWarning(w Warning) error
}
