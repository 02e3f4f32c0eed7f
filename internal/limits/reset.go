package limits

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var remainingRe = regexp.MustCompile(`(?i)(\d+)\s*(minutes?|mins?|hours?|hrs?|h|m)\s*(?:remaining|left)`)

// ParseRemaining extracts a "N minutes remaining" or "N hours left" style
// duration from text.
func ParseRemaining(text string) (time.Duration, bool) {
	m := remainingRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch m[2][0] {
	case 'h', 'H':
		return time.Duration(n) * time.Hour, true
	default:
		return time.Duration(n) * time.Minute, true
	}
}

// NextReset returns the next instant at hhmm (24-hour "HH:MM") strictly
// after now, in now's location.
func NextReset(hhmm string, now time.Time) (time.Time, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return time.Time{}, fmt.Errorf("parsing reset time %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return time.Time{}, fmt.Errorf("reset time %q out of range", hhmm)
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(now.Year(), now.Month(), now.Day()+1, h, m, 0, 0, now.Location())
	}
	return t, nil
}

// ResetMessage describes when the limit resets relative to now.
func ResetMessage(at, now time.Time) string {
	return fmt.Sprintf("usage limit resets at %s (in %s)", at.Format("15:04"), formatDuration(at.Sub(now)))
}
