package tokens

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Period selects how many days of ledger history a usage summary covers.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// TrendDays is the length of the daily trend in a Usage.
const TrendDays = 7

// ParsePeriod accepts day, week, month or all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q (want day, week, month or all)", s)
	}
}

// days returns the number of local days ending today that p covers, or 0
// for no limit.
func (p Period) days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	default:
		return 0
	}
}

// LedgerReader lists and reads persisted day buckets.
type LedgerReader interface {
	LedgerDays() ([]string, error)
	LoadDay(date string) (DayTotals, bool, error)
}

// SourceUsage is the total of one source over a period.
type SourceUsage struct {
	Source string
	SourceTotals
}

// Usage summarizes the ledger over a period.
type Usage struct {
	Period Period
	// From and To are the first and last dates with data; both are empty
	// when the period has none.
	From, To       string
	Days           int
	TotalEstimated int64
	TotalExplicit  int64
	MessageCount   int64
	// Sources is ordered by estimated tokens, largest first. Days recorded
	// without a per-source split contribute to the totals only.
	Sources []SourceUsage
	// Trend holds the last TrendDays local days, oldest first, with empty
	// buckets for days without data.
	Trend []DayTotals
}

// AveragePerMessage is the mean estimated tokens per message.
func (u Usage) AveragePerMessage() float64 {
	if u.MessageCount == 0 {
		return 0
	}
	return float64(u.TotalEstimated) / float64(u.MessageCount)
}

// Top returns up to n sources with the most estimated tokens.
func (u Usage) Top(n int) []SourceUsage {
	if len(u.Sources) > n {
		return u.Sources[:n]
	}
	return u.Sources
}

// Summarize aggregates the buckets r holds for period p ending on the local
// day of now.
func Summarize(r LedgerReader, p Period, now time.Time) (Usage, error) {
	u := Usage{Period: p}
	today := DateKey(now)
	from := ""
	if n := p.days(); n > 0 {
		from = DateKey(now.AddDate(0, 0, -(n - 1)))
	}
	trendFrom := DateKey(now.AddDate(0, 0, -(TrendDays - 1)))

	dates, err := r.LedgerDays()
	if err != nil {
		return Usage{}, fmt.Errorf("listing token ledger: %w", err)
	}

	bySource := make(map[string]SourceTotals)
	loaded := make(map[string]DayTotals)
	for _, date := range dates {
		inPeriod := date >= from && date <= today
		inTrend := date >= trendFrom && date <= today
		if !inPeriod && !inTrend {
			continue
		}
		day, ok, err := r.LoadDay(date)
		if err != nil {
			return Usage{}, fmt.Errorf("reading token ledger for %s: %w", date, err)
		}
		if !ok {
			continue
		}
		if inTrend {
			loaded[date] = day
		}
		if !inPeriod {
			continue
		}

		if u.From == "" {
			u.From = date
		}
		u.To = date
		u.Days++
		u.TotalEstimated += day.TotalEstimated
		u.TotalExplicit += day.TotalExplicit
		u.MessageCount += day.MessageCount
		for src, st := range day.BySource {
			cur := bySource[src]
			cur.TotalEstimated += st.TotalEstimated
			cur.TotalExplicit += st.TotalExplicit
			cur.MessageCount += st.MessageCount
			bySource[src] = cur
		}
	}

	u.Sources = make([]SourceUsage, 0, len(bySource))
	for src, st := range bySource {
		u.Sources = append(u.Sources, SourceUsage{Source: src, SourceTotals: st})
	}
	sort.Slice(u.Sources, func(i, j int) bool {
		a, b := u.Sources[i], u.Sources[j]
		if a.TotalEstimated != b.TotalEstimated {
			return a.TotalEstimated > b.TotalEstimated
		}
		return a.Source < b.Source
	})

	u.Trend = make([]DayTotals, 0, TrendDays)
	for i := TrendDays - 1; i >= 0; i-- {
		date := DateKey(now.AddDate(0, 0, -i))
		day, ok := loaded[date]
		if !ok {
			day = DayTotals{Date: date}
		}
		u.Trend = append(u.Trend, day)
	}
	return u, nil
}
