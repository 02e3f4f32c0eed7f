package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixlim/cc-sentinel/internal/events"
	"github.com/nixlim/cc-sentinel/internal/process"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/settings"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

func newStatusCmd(a *app) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's token usage, limit warnings and upcoming jobs",
		Long: "Show today's token usage, limit warnings and upcoming jobs.\n" +
			"With --period, also summarize the token ledger over the last day, week (7 days),\n" +
			"month (30 days) or all recorded days.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p tokens.Period
			if period != "" {
				var err error
				if p, err = tokens.ParsePeriod(period); err != nil {
					return err
				}
			}
			s, err := a.openStores()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			now := time.Now()
			today := tokens.DateKey(now)

			if !a.persistent {
				_, _ = fmt.Fprintln(out, "State is in memory only; nothing is recorded between runs.")
			}

			ledger := tokens.NewLedger(int64(a.cfg.Tokens.DailyWarning), int64(a.cfg.Tokens.DailyCritical), nil, s.Ledger)
			if err := ledger.Restore(today); err != nil {
				return err
			}
			day, _ := ledger.Day(today)
			_, _ = fmt.Fprintf(out, "Tokens %s: %s estimated, %s reported, %d messages from %d sources (%s)\n",
				today,
				events.FormatTokenCount(day.TotalEstimated),
				events.FormatTokenCount(day.TotalExplicit),
				day.MessageCount,
				len(day.DistinctSources),
				ledger.Level(day.TotalEstimated))

			if p != "" {
				if s.Files == nil {
					_, _ = fmt.Fprintln(out, "Usage history: unavailable without a data directory")
				} else {
					u, err := tokens.Summarize(s.Files, p, now)
					if err != nil {
						return err
					}
					printUsage(out, u)
				}
			}

			if s.Files != nil {
				warnings, err := s.Files.Warnings(now)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Limit warnings today: %d\n", len(warnings))
				for _, w := range lastN(warnings, 5) {
					_, _ = fmt.Fprintf(out, "  %s  %s\n", w.At.Local().Format("15:04:05"), w.Message)
				}
			}

			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			printUpcoming(out, eng.ListJobs())
			printClaude(out, a.cfg.Receiver.GRPCPort)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "summarize token usage over day, week, month or all")
	return cmd
}

const trendBarWidth = 30

func printUsage(w io.Writer, u tokens.Usage) {
	if u.Days == 0 {
		_, _ = fmt.Fprintf(w, "Usage (%s): no recorded days\n", u.Period)
	} else {
		_, _ = fmt.Fprintf(w, "Usage (%s, %s to %s, %d days): %s estimated, %s reported, %d messages, %.1f tokens/message\n",
			u.Period, u.From, u.To, u.Days,
			events.FormatTokenCount(u.TotalEstimated),
			events.FormatTokenCount(u.TotalExplicit),
			u.MessageCount,
			u.AveragePerMessage())
	}

	if top := u.Top(5); len(top) > 0 {
		_, _ = fmt.Fprintln(w, "Top sessions:")
		for i, s := range top {
			_, _ = fmt.Fprintf(w, "  %d. %-24s %8s est  %6d msgs\n", i+1, truncate(s.Source, 24), events.FormatTokenCount(s.TotalEstimated), s.MessageCount)
		}
	}

	var peak int64
	for _, d := range u.Trend {
		peak = max(peak, d.TotalEstimated)
	}
	_, _ = fmt.Fprintf(w, "Last %d days:\n", len(u.Trend))
	for _, d := range u.Trend {
		bar := 0
		if peak > 0 {
			bar = int(d.TotalEstimated * trendBarWidth / peak)
		}
		if bar == 0 && d.TotalEstimated > 0 {
			bar = 1
		}
		_, _ = fmt.Fprintf(w, "  %s %8s %s\n", d.Date, events.FormatTokenCount(d.TotalEstimated), strings.Repeat("#", bar))
	}
}

func lastN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func printUpcoming(w io.Writer, jobs []scheduler.Job) {
	var next *scheduler.Job
	active := 0
	for i := range jobs {
		j := &jobs[i]
		if !j.Enabled || j.NextRunAt == nil {
			continue
		}
		active++
		if next == nil || j.NextRunAt.Before(*next.NextRunAt) {
			next = j
		}
	}
	_, _ = fmt.Fprintf(w, "Jobs: %d total, %d active\n", len(jobs), active)
	if next != nil {
		_, _ = fmt.Fprintf(w, "Next: job %d at %s %q\n", next.ID, formatNext(next.NextRunAt), truncate(strings.TrimSpace(next.Prompt), 40))
	}
}

// printClaude lists running Claude processes and whether their telemetry
// reaches the receiver. Nothing is printed where listing is unsupported.
func printClaude(w io.Writer, grpcPort int) {
	procs, err := process.FindClaude()
	if errors.Is(err, errors.ErrUnsupported) {
		return
	}
	if err != nil {
		log.Printf("WARNING: listing Claude processes: %v", err)
		return
	}
	if len(procs) == 0 {
		_, _ = fmt.Fprintln(w, "Claude processes: none running")
		return
	}

	var env map[string]string
	if path, err := settings.DefaultPath(); err == nil {
		if env, err = settings.Env(path); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}
	_, _ = fmt.Fprintf(w, "Claude processes: %d\n", len(procs))
	for _, p := range procs {
		cwd := p.CWD
		if cwd == "" {
			cwd = "-"
		}
		_, _ = fmt.Fprintf(w, "  pid %-7d %-17s %s\n", p.PID, p.Telemetry(env, grpcPort), cwd)
	}
}
