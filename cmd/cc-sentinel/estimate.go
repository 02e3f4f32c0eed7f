package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nixlim/cc-sentinel/internal/tokens"
)

func newEstimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [TEXT...]",
		Short: "Estimate the token count of text (reads stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(data)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tokens.Estimate(text))
			return nil
		},
	}
}
