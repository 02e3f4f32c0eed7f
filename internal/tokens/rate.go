package tokens

import (
	"sync"
	"time"
)

// windowDuration is the rolling window used for rate calculations.
const windowDuration = 5 * time.Minute

// Trend indicates the direction of token velocity between windows.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

// String returns a human-readable representation of the trend.
func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// Rate is the smoothed consumption rate derived from day totals.
type Rate struct {
	Total           int64
	Velocity        float64 // tokens per minute
	Trend           Trend
	DailyProjection int64 // Total plus Velocity extrapolated to midnight
}

type sample struct {
	tokens int64
	at     time.Time
}

// RateCalculator keeps a rolling window of total-token samples. It is safe
// for concurrent use.
type RateCalculator struct {
	mu      sync.Mutex
	samples []sample
}

// NewRateCalculator creates an empty calculator.
func NewRateCalculator() *RateCalculator {
	return &RateCalculator{}
}

// Observe records the cumulative total at now and returns the current rate.
// A total lower than the previous sample is treated as a new day and
// restarts the window.
func (c *RateCalculator) Observe(total int64, now time.Time) Rate {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.samples); n > 0 && total < c.samples[n-1].tokens {
		c.samples = c.samples[:0]
	}
	c.samples = append(c.samples, sample{tokens: total, at: now})
	c.samples = prune(c.samples, now.Add(-2*windowDuration))

	v := c.windowVelocity(now.Add(-windowDuration), now)
	prev := c.windowVelocity(now.Add(-2*windowDuration), now.Add(-windowDuration))

	return Rate{
		Total:           total,
		Velocity:        v,
		Trend:           trend(v, prev),
		DailyProjection: project(total, v, now),
	}
}

// windowVelocity computes tokens per minute between the last sample at or
// before start (or the first one inside the window) and the last sample
// inside the window.
func (c *RateCalculator) windowVelocity(start, end time.Time) float64 {
	var base, first, last *sample
	for i := range c.samples {
		s := &c.samples[i]
		if s.at.After(end) {
			continue
		}
		if !s.at.After(start) {
			if base == nil || s.at.After(base.at) {
				base = s
			}
			continue
		}
		if first == nil || s.at.Before(first.at) {
			first = s
		}
		if last == nil || s.at.After(last.at) {
			last = s
		}
	}

	from := first
	if base != nil {
		from = base
	}
	if from == nil || last == nil || from == last {
		return 0
	}
	elapsed := last.at.Sub(from.at).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(last.tokens-from.tokens) / elapsed
}

func trend(current, previous float64) Trend {
	if current == 0 && previous == 0 {
		return TrendFlat
	}
	diff := current - previous
	switch {
	case diff > 0.5:
		return TrendUp
	case diff < -0.5:
		return TrendDown
	default:
		return TrendFlat
	}
}

func project(total int64, velocity float64, now time.Time) int64 {
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return total + int64(velocity*midnight.Sub(now).Minutes())
}

func prune(samples []sample, cutoff time.Time) []sample {
	n := 0
	for _, s := range samples {
		if !s.at.Before(cutoff) {
			samples[n] = s
			n++
		}
	}
	return samples[:n]
}
