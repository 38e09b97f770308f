package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lyrebird/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Verify configuration, binaries and external services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			failed := 0

			rows := make([][]string, 0, 8)
			for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				mark := colorize("ok", ansiGreen, color)
				if !status.Available {
					if status.Optional {
						mark = "missing (optional)"
					} else {
						mark = colorize("missing", ansiRed, color)
						failed++
					}
				}
				rows = append(rows, []string{status.Name, status.Command, mark, status.Detail})
			}
			fmt.Fprintln(out, "External binaries:")
			fmt.Fprintln(out, renderTable(
				[]string{"Dependency", "Command", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			rows = rows[:0]
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				mark := colorize("ok", ansiGreen, color)
				if !result.Passed {
					mark = colorize("failed", ansiRed, color)
					failed++
				}
				rows = append(rows, []string{result.Name, mark, result.Detail})
			}
			fmt.Fprintln(out, "Environment checks:")
			fmt.Fprintln(out, renderTable(
				[]string{"Check", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			fmt.Fprintln(out, "all preflight checks passed")
			return nil
		},
	}
}
