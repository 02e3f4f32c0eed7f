package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies a recurrence rule.
type Kind string

const (
	KindOnce     Kind = "once"
	KindDaily    Kind = "daily"
	KindWeekly   Kind = "weekly"
	KindInterval Kind = "interval"
)

// DateLayout is the layout of the Date field of a one-time recurrence.
const DateLayout = "2006-01-02"

// Recurrence describes when a job fires. Which fields are meaningful
// depends on Kind: Date, Hour and Minute for once; Hour and Minute for
// daily; Weekday, Hour and Minute for weekly; IntervalHours for interval.
type Recurrence struct {
	Kind          Kind         `json:"kind"`
	Date          string       `json:"date,omitempty"`
	Hour          int          `json:"hour"`
	Minute        int          `json:"minute"`
	Weekday       time.Weekday `json:"weekday"`
	IntervalHours int          `json:"interval_hours,omitempty"`
}

// Once returns a one-time recurrence at the given local date and time.
func Once(date string, hour, minute int) Recurrence {
	return Recurrence{Kind: KindOnce, Date: date, Hour: hour, Minute: minute}
}

// Daily returns a recurrence firing every day at hour:minute.
func Daily(hour, minute int) Recurrence {
	return Recurrence{Kind: KindDaily, Hour: hour, Minute: minute}
}

// Weekly returns a recurrence firing every weekday at hour:minute.
func Weekly(weekday time.Weekday, hour, minute int) Recurrence {
	return Recurrence{Kind: KindWeekly, Weekday: weekday, Hour: hour, Minute: minute}
}

// Every returns a recurrence firing every n hours.
func Every(n int) Recurrence {
	return Recurrence{Kind: KindInterval, IntervalHours: n}
}

// Validate reports why r cannot be scheduled. The returned error wraps
// ErrInvalidRecurrence.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case KindOnce:
		if _, err := time.ParseInLocation(DateLayout, r.Date, time.Local); err != nil {
			return fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRecurrence, r.Date)
		}
		return validClock(r.Hour, r.Minute)
	case KindDaily:
		return validClock(r.Hour, r.Minute)
	case KindWeekly:
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRecurrence, r.Weekday)
		}
		return validClock(r.Hour, r.Minute)
	case KindInterval:
		if r.IntervalHours < 1 {
			return fmt.Errorf("%w: interval must be at least 1 hour, got %d", ErrInvalidRecurrence, r.IntervalHours)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecurrence, r.Kind)
	}
}

func validClock(h, m int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidRecurrence, h)
	}
	if m < 0 || m > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalidRecurrence, m)
	}
	return nil
}

// Instant returns the local instant of a one-time recurrence.
func (r Recurrence) Instant() (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, r.Date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRecurrence, r.Date)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), r.Hour, r.Minute, 0, 0, time.Local), nil
}

// String renders r in the form accepted by ParseRecurrence.
func (r Recurrence) String() string {
	switch r.Kind {
	case KindOnce:
		return fmt.Sprintf("once %s %02d:%02d", r.Date, r.Hour, r.Minute)
	case KindDaily:
		return fmt.Sprintf("daily %02d:%02d", r.Hour, r.Minute)
	case KindWeekly:
		return fmt.Sprintf("weekly %s %02d:%02d", r.Weekday.String()[:3], r.Hour, r.Minute)
	case KindInterval:
		return fmt.Sprintf("every %dh", r.IntervalHours)
	default:
		return string(r.Kind)
	}
}

var (
	clockRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	intervalRe = regexp.MustCompile(`^(\d+)h?$`)
	delayRe    = regexp.MustCompile(`^(\d+)(m|min|h)$`)

	maxDelay = 366 * 24 * time.Hour
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseRecurrence parses the textual forms
//
//	once 2024-01-01 04:00
//	daily 04:00
//	weekly mon 04:00
//	every 5h
//	in 30m
//	in 2h
//
// and validates the result. A delay becomes a one-time job at the first
// whole minute at least that far from the current time.
func ParseRecurrence(s string) (Recurrence, error) {
	return ParseRecurrenceAt(s, time.Now())
}

// ParseRecurrenceAt is ParseRecurrence with delays measured from now.
func ParseRecurrenceAt(s string, now time.Time) (Recurrence, error) {
	f := strings.Fields(strings.ToLower(s))
	if len(f) == 0 {
		return Recurrence{}, fmt.Errorf("%w: empty schedule", ErrInvalidRecurrence)
	}

	var r Recurrence
	var err error
	switch f[0] {
	case "once", "at":
		if len(f) != 3 {
			return Recurrence{}, fmt.Errorf("%w: want \"once YYYY-MM-DD HH:MM\"", ErrInvalidRecurrence)
		}
		r = Recurrence{Kind: KindOnce, Date: f[1]}
		r.Hour, r.Minute, err = parseClock(f[2])
	case "daily":
		if len(f) != 2 {
			return Recurrence{}, fmt.Errorf("%w: want \"daily HH:MM\"", ErrInvalidRecurrence)
		}
		r = Recurrence{Kind: KindDaily}
		r.Hour, r.Minute, err = parseClock(f[1])
	case "weekly":
		if len(f) != 3 {
			return Recurrence{}, fmt.Errorf("%w: want \"weekly DAY HH:MM\"", ErrInvalidRecurrence)
		}
		wd, ok := weekdays[f[1]]
		if !ok {
			return Recurrence{}, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRecurrence, f[1])
		}
		r = Recurrence{Kind: KindWeekly, Weekday: wd}
		r.Hour, r.Minute, err = parseClock(f[2])
	case "in":
		if len(f) != 2 {
			return Recurrence{}, fmt.Errorf("%w: want \"in Nm\" or \"in Nh\"", ErrInvalidRecurrence)
		}
		m := delayRe.FindStringSubmatch(f[1])
		if m == nil {
			return Recurrence{}, fmt.Errorf("%w: delay %q must be whole minutes or hours", ErrInvalidRecurrence, f[1])
		}
		unit := time.Minute
		if m[2] == "h" {
			unit = time.Hour
		}
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil || n < 1 || time.Duration(n) > maxDelay/unit {
			return Recurrence{}, fmt.Errorf("%w: delay %q must be between 1m and %s", ErrInvalidRecurrence, f[1], maxDelay)
		}
		r = onceAfter(now, time.Duration(n)*unit)
	case "every", "interval":
		if len(f) != 2 {
			return Recurrence{}, fmt.Errorf("%w: want \"every Nh\"", ErrInvalidRecurrence)
		}
		m := intervalRe.FindStringSubmatch(f[1])
		if m == nil {
			return Recurrence{}, fmt.Errorf("%w: interval %q must be a whole number of hours", ErrInvalidRecurrence, f[1])
		}
		n, _ := strconv.Atoi(m[1])
		r = Recurrence{Kind: KindInterval, IntervalHours: n}
	default:
		return Recurrence{}, fmt.Errorf("%w: unknown schedule kind %q", ErrInvalidRecurrence, f[0])
	}
	if err != nil {
		return Recurrence{}, err
	}
	if err := r.Validate(); err != nil {
		return Recurrence{}, err
	}
	return r, nil
}

func onceAfter(now time.Time, d time.Duration) Recurrence {
	due := now.Add(d)
	at := due.Truncate(time.Minute)
	if at.Before(due) {
		at = at.Add(time.Minute)
	}
	at = at.Local()
	return Once(at.Format(DateLayout), at.Hour(), at.Minute())
}

func parseClock(s string) (int, int, error) {
	m := clockRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRecurrence, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if err := validClock(h, mm); err != nil {
		return 0, 0, err
	}
	return h, mm, nil
}

// NextRunTime computes the next slot of job relative to now. It reports
// false for a completed one-time job and for an invalid recurrence. A
// one-time slot is returned even when it lies before now.
func NextRunTime(job Job, now time.Time) (time.Time, bool) {
	r := job.Recurrence
	loc := now.Location()

	switch r.Kind {
	case KindOnce:
		if job.Status == StatusCompleted {
			return time.Time{}, false
		}
		t, err := r.Instant()
		if err != nil {
			return time.Time{}, false
		}
		return t, true

	case KindDaily:
		t := time.Date(now.Year(), now.Month(), now.Day(), r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(now.Year(), now.Month(), now.Day()+1, r.Hour, r.Minute, 0, 0, loc)
		}
		return t, true

	case KindWeekly:
		ahead := (int(r.Weekday) - int(now.Weekday()) + 7) % 7
		t := time.Date(now.Year(), now.Month(), now.Day()+ahead, r.Hour, r.Minute, 0, 0, loc)
		if !t.After(now) {
			t = time.Date(now.Year(), now.Month(), now.Day()+ahead+7, r.Hour, r.Minute, 0, 0, loc)
		}
		return t, true

	case KindInterval:
		if r.IntervalHours < 1 {
			return time.Time{}, false
		}
		return now.Add(time.Duration(r.IntervalHours) * time.Hour), true
	}
	return time.Time{}, false
}
