package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		jobID      int
		limit      int
		showAlerts bool
		days       int
		rule       string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show scheduled run history or past alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if showAlerts {
				s, err := a.openStores()
				if err != nil {
					return err
				}
				if s.SQL == nil {
					return errors.New("alert history needs a database; set storage.db_path")
				}
				list := s.SQL.QueryAlertHistory(days, rule)
				if asJSON {
					return writeJSON(out, list)
				}
				printAlerts(out, list)
				return nil
			}

			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			runs, err := eng.History(jobID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, runs)
			}
			printRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&jobID, "job", 0, "only runs of this job")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "most recent runs to show (0 for all)")
	cmd.Flags().BoolVar(&showAlerts, "alerts", false, "show alert history instead of runs")
	cmd.Flags().IntVar(&days, "days", 7, "alert history window in days")
	cmd.Flags().StringVar(&rule, "rule", "", "only alerts of this rule")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []scheduler.RunRecord) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		kind := ""
		if r.Manual {
			kind = " (manual)"
		}
		_, _ = fmt.Fprintf(w, "%s  job %-3d %-6s%s  %s\n",
			r.FiredAt.Local().Format("2006-01-02 15:04:05"), r.JobID, status, kind, truncate(r.ResponseSummary, 60))
	}
}

func printAlerts(w io.Writer, list []alerts.Alert) {
	if len(list) == 0 {
		_, _ = fmt.Fprintln(w, "No alerts recorded.")
		return
	}
	for _, al := range list {
		_, _ = fmt.Fprintln(w, alerts.FormatLine(al))
	}
}
