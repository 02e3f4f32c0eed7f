package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/storage"
)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled prompts",
	}
	cmd.AddCommand(
		newJobsAddCmd(a),
		newJobsListCmd(a),
		newJobsEditCmd(a),
		newJobsCopyCmd(a),
		newJobsRemoveCmd(a),
		newJobsToggleCmd(a),
		newJobsRunCmd(a),
		newJobsClearCmd(a),
		newJobsTemplateCmd(a),
		newJobsExportCmd(a),
		newJobsImportCmd(a),
	)
	return cmd
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", s)
	}
	return id, nil
}

func newJobsAddCmd(a *app) *cobra.Command {
	var (
		schedule string
		target   string
		runs     int
		priority string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "add PROMPT...",
		Short: "Add a scheduled prompt",
		Long: "Add a scheduled prompt. Schedules are written as\n" +
			"  once YYYY-MM-DD HH:MM\n  daily HH:MM\n  weekly DAY HH:MM\n  every Nh\n  in Nm | in Nh",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := scheduler.ParseRecurrence(schedule)
			if err != nil {
				return err
			}
			prio, err := scheduler.ParsePriority(priority)
			if err != nil {
				return err
			}
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			id, err := eng.AddJob(scheduler.JobSpec{
				Prompt:     strings.Join(args, " "),
				Target:     target,
				Recurrence: rec,
				Runs:       runs,
				Priority:   prio,
				Quiet:      quiet,
			})
			if err != nil {
				return err
			}
			job, _ := eng.Job(id)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added job %d (%s), next run %s\n", id, rec, formatNext(job.NextRunAt))
			return nil
		},
	}
	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "when to run (required)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "window or session the prompt is sent to (tmux:PANE for a tmux pane)")
	cmd.Flags().IntVar(&runs, "runs", 0, "stop after this many runs (0 for unlimited)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "low, normal or high; orders jobs due at the same time")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only alert when a run fails")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func newJobsListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			jobs := eng.ListJobs()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}
			if len(jobs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No jobs scheduled.")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print jobs as JSON")
	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	pausedStyle = cellStyle.Foreground(lipgloss.Color("8"))
)

func renderJobs(jobs []scheduler.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		runs := strconv.Itoa(j.RunCount)
		if j.RemainingRuns != nil {
			runs += fmt.Sprintf(" (%d left)", *j.RemainingRuns)
		}
		rows = append(rows, []string{
			strconv.Itoa(j.ID),
			j.Recurrence.String(),
			formatNext(j.NextRunAt),
			runs,
			string(j.Status),
			j.Priority.String(),
			j.Target,
			truncate(j.Prompt, 40),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SCHEDULE", "NEXT RUN", "RUNS", "STATUS", "PRIORITY", "TARGET", "PROMPT").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(jobs) && !jobs[row].Enabled:
				return pausedStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}

func formatNext(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func newJobsEditCmd(a *app) *cobra.Command {
	var (
		prompt   string
		schedule string
		target   string
		runs     int
		priority string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change a scheduled prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			job, ok := eng.Job(id)
			if !ok {
				return fmt.Errorf("%w: %d", scheduler.ErrJobNotFound, id)
			}

			spec := job.Spec()
			if job.RemainingRuns != nil {
				spec.Runs = *job.RemainingRuns
			}
			flags := cmd.Flags()
			if flags.Changed("prompt") {
				spec.Prompt = prompt
			}
			if flags.Changed("target") {
				spec.Target = target
			}
			if flags.Changed("runs") {
				spec.Runs = runs
			}
			if flags.Changed("priority") {
				if spec.Priority, err = scheduler.ParsePriority(priority); err != nil {
					return err
				}
			}
			if flags.Changed("quiet") {
				spec.Quiet = quiet
			}
			if flags.Changed("schedule") {
				if spec.Recurrence, err = scheduler.ParseRecurrence(schedule); err != nil {
					return err
				}
			}
			if err := eng.EditJob(id, spec); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated job %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "new prompt text")
	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "new schedule")
	cmd.Flags().StringVarP(&target, "target", "t", "", "new target")
	cmd.Flags().IntVar(&runs, "runs", 0, "new run limit (0 for unlimited)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority (low, normal or high)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only alert when a run fails (--quiet=false to undo)")
	return cmd
}

// idCommand builds a subcommand that takes one job id.
func idCommand(a *app, use, short string, fn func(cmd *cobra.Command, eng *scheduler.Engine, id int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			return fn(cmd, eng, id)
		},
	}
}

func newJobsCopyCmd(a *app) *cobra.Command {
	return idCommand(a, "copy", "Duplicate a scheduled prompt", func(cmd *cobra.Command, eng *scheduler.Engine, id int) error {
		newID, err := eng.CopyJob(id)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Copied job %d to job %d\n", id, newID)
		return nil
	})
}

func newJobsRemoveCmd(a *app) *cobra.Command {
	cmd := idCommand(a, "rm", "Delete a scheduled prompt", func(cmd *cobra.Command, eng *scheduler.Engine, id int) error {
		if err := eng.RemoveJob(id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d\n", id)
		return nil
	})
	cmd.Aliases = []string{"remove", "delete"}
	return cmd
}

func newJobsToggleCmd(a *app) *cobra.Command {
	return idCommand(a, "toggle", "Pause or resume a scheduled prompt", func(cmd *cobra.Command, eng *scheduler.Engine, id int) error {
		enabled, err := eng.ToggleJob(id)
		if err != nil {
			return err
		}
		state := "paused"
		if enabled {
			state = "resumed"
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %d %s\n", id, state)
		return nil
	})
}

func newJobsRunCmd(a *app) *cobra.Command {
	return idCommand(a, "run", "Send a scheduled prompt now", func(cmd *cobra.Command, eng *scheduler.Engine, id int) error {
		rec, err := eng.RunNow(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !rec.Success {
			return fmt.Errorf("job %d failed: %s", id, rec.ResponseSummary)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Job %d sent: %s\n", id, rec.ResponseSummary)
		return nil
	})
}

func newJobsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d completed jobs\n", eng.ClearCompleted())
			return nil
		},
	}
}

func newJobsTemplateCmd(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "template [NAME]",
		Short: "List templates, or add the jobs of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, t := range scheduler.Templates() {
					_, _ = fmt.Fprintf(out, "%-10s %s\n", t.Name, t.Description)
				}
				return nil
			}
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			ids, err := eng.ApplyTemplate(args[0], target)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Added %d jobs from template %s: %v\n", len(ids), args[0], ids)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "window or session the prompts are sent to")
	return cmd
}

func newJobsExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write job definitions as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			if len(args) == 0 || args[0] == "-" {
				return eng.Export(cmd.OutOrStdout())
			}
			var buf strings.Builder
			if err := eng.Export(&buf); err != nil {
				return err
			}
			if err := storage.WriteFileAtomic(args[0], []byte(buf.String()), 0o644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported jobs to %s\n", args[0])
			return nil
		},
	}
}

func newJobsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add jobs from an export file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening import file: %w", err)
				}
				defer f.Close()
				r = f
			}
			eng, err := a.newEngine(nil)
			if err != nil {
				return err
			}
			n, err := eng.Import(r)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d jobs\n", n)
			return nil
		},
	}
}
