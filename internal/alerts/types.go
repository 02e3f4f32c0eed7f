package alerts

import "time"

// Alert rule name constants.
const (
	RuleConfirmation         = "Confirmation"
	RuleLimitApproaching     = "LimitApproaching"
	RuleLimitReset           = "LimitReset"
	RuleSessionStart         = "SessionStart"
	RuleTokenUsage           = "TokenUsage"
	RuleError                = "ErrorMessage"
	RuleSessionLimitWarning  = "SessionLimitWarning"
	RuleSessionLimitExceeded = "SessionLimitExceeded"
	RuleDailyTokens          = "DailyTokens"
	RuleScheduledRun         = "ScheduledRun"
)

// Alert severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one notification raised by the monitor, the trackers or the
// scheduler.
type Alert struct {
	Rule     string // Confirmation, SessionLimitWarning, DailyTokens, etc.
	Severity string // info, warning, critical
	Message  string
	Source   string // empty for global alerts
	FiredAt  time.Time
}

// alertKey returns a deduplication key for this alert. Two alerts with the
// same key within a cooldown are considered repeats.
func (a Alert) alertKey() string {
	return a.Rule + ":" + a.Severity + ":" + a.Source
}

// AlertPersister persists fired alerts to durable storage.
type AlertPersister interface {
	PersistAlert(alert Alert)
}

// Sink receives alerts. Implementations must be non-blocking and must
// tolerate their backend being unavailable.
type Sink interface {
	Notify(alert Alert)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Alert)

func (f SinkFunc) Notify(a Alert) { f(a) }

// Nop discards every alert.
type Nop struct{}

func (Nop) Notify(Alert) {}
