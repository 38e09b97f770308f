package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lyrebird/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <source-reference>",
		Short: "Queue a source reference for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference := strings.TrimSpace(args[0])
			if reference == "" {
				return fmt.Errorf("source reference is required")
			}

			var view api.JobView
			err := ctx.postJSON("/api/jobs", map[string]string{"source_reference": reference}, &view)
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "queued job %d\n", view.ID)
				return nil
			}
			if !daemonUnreachable(err) {
				return err
			}

			// Daemon down: enqueue directly so work is picked up on next start.
			store, storeErr := ctx.openStore()
			if storeErr != nil {
				return storeErr
			}
			defer store.Close()
			job, storeErr := store.NewJob(context.Background(), reference)
			if storeErr != nil {
				return storeErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon not running; queued job %d directly\n", job.ID)
			return nil
		},
	}
}
