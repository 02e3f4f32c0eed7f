package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logFile    string
	debugPath  string
}

// newRootCmd builds the command tree. The caller closes the returned app
// after Execute.
func newRootCmd() (*cobra.Command, *app) {
	var flags globalFlags
	a := &app{}

	root := &cobra.Command{
		Use:   "cc-sentinel",
		Short: "Watch Claude chat sessions and send scheduled prompts",
		Long: "cc-sentinel watches Claude chat sessions for confirmation prompts, usage limit " +
			"warnings and token usage, and sends scheduled prompts on a recurring timetable.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/cc-sentinel/config.toml)")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "append log output to this file instead of stderr")
	root.PersistentFlags().StringVar(&flags.debugPath, "debug", "", "write a JSONL trail of ingested records and events to this file")

	root.AddCommand(
		newRunCmd(a),
		newJobsCmd(a),
		newHistoryCmd(a),
		newEstimateCmd(),
		newStatusCmd(a),
		newSetupCmd(a),
	)
	return root, a
}
