package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lyrebird/internal/api"
	"lyrebird/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}
	cmd.AddCommand(
		newQueueListCommand(ctx),
		newQueueRetryCommand(ctx),
		newQueueRemoveCommand(ctx),
		newQueueClearCommand(ctx),
		newQueueHealthCommand(ctx),
	)
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			views, err := listJobs(ctx, statusFilter)
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, view := range views {
				title := view.Title
				if title == "" {
					title = view.SourceReference
				}
				rows = append(rows, []string{
					strconv.FormatInt(view.ID, 10),
					truncate(title, 48),
					view.Status,
					fmt.Sprintf("%.0f%%", view.ProgressPercent),
					stageLabel(view.ProgressStage),
					view.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Status", "Pct", "Stage", "Updated"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "only show jobs with this status")
	return cmd
}

func listJobs(ctx *commandContext, statusFilter string) ([]api.JobView, error) {
	path := "/api/jobs"
	if statusFilter != "" {
		path += "?status=" + url.QueryEscape(statusFilter)
	}
	var views []api.JobView
	err := ctx.getJSON(path, &views)
	if err == nil {
		return views, nil
	}
	if !daemonUnreachable(err) {
		return nil, err
	}

	store, storeErr := ctx.openStore()
	if storeErr != nil {
		return nil, storeErr
	}
	defer store.Close()

	var statuses []queue.Status
	if statusFilter != "" {
		status, ok := queue.ParseStatus(statusFilter)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", statusFilter)
		}
		statuses = append(statuses, status)
	}
	jobs, storeErr := store.List(context.Background(), statuses...)
	if storeErr != nil {
		return nil, storeErr
	}
	views = make([]api.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobToView(job))
	}
	return views, nil
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Requeue a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			err = ctx.postJSON("/api/jobs/"+strconv.FormatInt(id, 10)+"/retry", nil, nil)
			if daemonUnreachable(err) {
				store, storeErr := ctx.openStore()
				if storeErr != nil {
					return storeErr
				}
				defer store.Close()
				count, storeErr := store.RetryFailed(context.Background(), id)
				if storeErr != nil {
					return storeErr
				}
				if count == 0 {
					return fmt.Errorf("job %d is not in a failed state", id)
				}
				err = nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued job %d\n", id)
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			err = ctx.doJSON(http.MethodDelete, "/api/jobs/"+strconv.FormatInt(id, 10), nil, nil)
			if daemonUnreachable(err) {
				store, storeErr := ctx.openStore()
				if storeErr != nil {
					return storeErr
				}
				defer store.Close()
				removed, storeErr := store.Remove(context.Background(), id)
				if storeErr != nil {
					return storeErr
				}
				if !removed {
					return fmt.Errorf("job %d not found", id)
				}
				err = nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed job %d\n", id)
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly, failedOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if completedOnly && failedOnly {
				return fmt.Errorf("--completed and --failed are mutually exclusive")
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var count int64
			switch {
			case completedOnly:
				count, err = store.ClearCompleted(context.Background())
			case failedOnly:
				count, err = store.ClearFailed(context.Background())
			default:
				count, err = store.Clear(context.Background())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d job(s)\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&completedOnly, "completed", false, "clear only completed jobs")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "clear only failed jobs")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue database health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			summary, err := store.Health(context.Background())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", store.Path())
			fmt.Fprintln(out, renderTable(
				[]string{"Queued", "Processing", "Completed", "Errored", "Total"},
				[][]string{{
					strconv.Itoa(summary.Queued),
					strconv.Itoa(summary.Processing),
					strconv.Itoa(summary.Completed),
					strconv.Itoa(summary.Errored),
					strconv.Itoa(summary.Total),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
