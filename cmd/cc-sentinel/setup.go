package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nixlim/cc-sentinel/internal/settings"
)

func newSetupCmd(a *app) *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Point Claude Code telemetry at the cc-sentinel receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := settings.Merge(settings.Options{
				Path:     path,
				GRPCPort: a.cfg.Receiver.GRPCPort,
				Force:    force,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch rep.Result {
			case settings.Unchanged:
				_, _ = fmt.Fprintf(out, "%s already configured\n", rep.Path)
			case settings.Conflicting:
				_, _ = fmt.Fprintf(out, "%s not changed, these keys have other values:\n", rep.Path)
				for _, c := range rep.Conflicts {
					_, _ = fmt.Fprintf(out, "  %s = %q (want %q)\n", c.Key, c.Have, c.Want)
				}
				return errors.New("settings conflict; rerun with --force to overwrite")
			default:
				_, _ = fmt.Fprintf(out, "Updated %s\n", rep.Path)
				for _, k := range rep.Added {
					_, _ = fmt.Fprintf(out, "  added %s\n", k)
				}
				for _, k := range rep.Replaced {
					_, _ = fmt.Fprintf(out, "  replaced %s\n", k)
				}
				if !a.cfg.Receiver.Enabled {
					_, _ = fmt.Fprintln(out, "Enable [receiver] in the config for cc-sentinel run to accept the telemetry.")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "settings", "", "settings file (default ~/.claude/settings.json)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite keys set to other values")
	return cmd
}
