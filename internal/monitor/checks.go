package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/events"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

// RunChecks periodically evaluates session limits and the daily token
// thresholds until ctx is cancelled. A non-positive interval disables
// that check.
func (m *Monitor) RunChecks(ctx context.Context, limitsEvery, tokensEvery time.Duration) error {
	var limitsC, tokensC <-chan time.Time
	if limitsEvery > 0 {
		t := time.NewTicker(limitsEvery)
		defer t.Stop()
		limitsC = t.C
	}
	if tokensEvery > 0 {
		t := time.NewTicker(tokensEvery)
		defer t.Stop()
		tokensC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-limitsC:
			m.checkLimits()
		case <-tokensC:
			m.checkTokens()
		}
	}
}

func (m *Monitor) checkLimits() {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: monitor: limit check panicked: %v", p)
		}
	}()
	m.tracker.CheckAll(m.now())
}

func (m *Monitor) checkTokens() {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("ERROR: monitor: token check panicked: %v", p)
		}
	}()
	now := m.now()
	date := tokens.DateKey(now)
	lvl := m.ledger.CheckDailyThresholds(date)

	d, _ := m.ledger.Day(date)
	r := m.rate.Observe(d.TotalEstimated, now)
	if lvl == tokens.LevelNone && m.ledger.Level(r.DailyProjection) != tokens.LevelNone {
		m.checkSink.Notify(alerts.Alert{
			Rule:     alerts.RuleDailyTokens,
			Severity: alerts.SeverityInfo,
			Message: fmt.Sprintf("token use trending %s at %.0f/min, projected %s today",
				r.Trend, r.Velocity, events.FormatTokenCount(r.DailyProjection)),
			FiredAt: now,
		})
	}
}
