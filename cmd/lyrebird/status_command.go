package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"lyrebird/internal/api"
	"lyrebird/internal/queue"
)

var titleCaser = cases.Title(language.Und)

func stageLabel(stage string) string {
	if stage == "" {
		return "-"
	}
	return titleCaser.String(strings.ReplaceAll(stage, "_", " "))
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon health or detailed status for one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid job id %q", args[0])
				}
				return showJob(cmd, ctx, id)
			}
			return showHealth(cmd, ctx)
		},
	}
}

func showJob(cmd *cobra.Command, ctx *commandContext, id int64) error {
	var view api.JobView
	if err := ctx.getJSON("/api/jobs/"+strconv.FormatInt(id, 10), &view); err != nil {
		if !daemonUnreachable(err) {
			return err
		}
		store, storeErr := ctx.openStore()
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()
		job, storeErr := store.GetByID(context.Background(), id)
		if storeErr != nil {
			return storeErr
		}
		if job == nil {
			return fmt.Errorf("job %d not found", id)
		}
		view = jobToView(job)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %d: %s\n", view.ID, view.SourceReference)
	if view.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", view.Title)
	}
	fmt.Fprintf(out, "Status:   %s (%.0f%%)\n", view.Status, view.ProgressPercent)
	if view.ProgressStage != "" {
		fmt.Fprintf(out, "Stage:    %s\n", stageLabel(view.ProgressStage))
	}
	if view.ProgressMessage != "" {
		fmt.Fprintf(out, "Message:  %s\n", view.ProgressMessage)
	}
	if view.ProcessingMethod != "" {
		fmt.Fprintf(out, "Method:   %s\n", view.ProcessingMethod)
	}
	if view.ResultsReference != "" {
		fmt.Fprintf(out, "Results:  %s\n", view.ResultsReference)
	}
	if view.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", view.ErrorMessage)
	}

	if len(view.Steps) > 0 {
		rows := make([][]string, 0, len(view.Steps))
		for _, step := range view.Steps {
			duration := ""
			if step.DurationSeconds > 0 {
				duration = (time.Duration(step.DurationSeconds * float64(time.Second))).Round(time.Millisecond).String()
			}
			rows = append(rows, []string{
				stageLabel(step.Stage),
				string(step.Status),
				fmt.Sprintf("%.0f%%", step.Percent),
				step.Message,
				duration,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(
			[]string{"Stage", "Status", "Pct", "Message", "Duration"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
		))
	}
	return nil
}

func showHealth(cmd *cobra.Command, ctx *commandContext) error {
	out := cmd.OutOrStdout()
	color := shouldColorize(out)

	var health api.HealthView
	err := ctx.getJSON("/api/health", &health)
	switch {
	case err == nil:
		fmt.Fprintf(out, "Daemon:     %s (poller active: %v)\n",
			colorize("running", ansiGreen, color), health.Running)
	case daemonUnreachable(err):
		fmt.Fprintf(out, "Daemon:     %s\n", colorize("not running", ansiRed, color))
		store, storeErr := ctx.openStore()
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()
		summary, storeErr := store.Health(context.Background())
		if storeErr != nil {
			return storeErr
		}
		health = api.HealthView{
			Total:      summary.Total,
			Queued:     summary.Queued,
			Processing: summary.Processing,
			Completed:  summary.Completed,
			Errored:    summary.Errored,
		}
	default:
		return err
	}

	fmt.Fprintln(out, renderTable(
		[]string{"Queued", "Processing", "Completed", "Errored", "Total"},
		[][]string{{
			strconv.Itoa(health.Queued),
			strconv.Itoa(health.Processing),
			strconv.Itoa(health.Completed),
			strconv.Itoa(health.Errored),
			strconv.Itoa(health.Total),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func jobToView(job *queue.Job) api.JobView {
	return api.JobView{
		ID:               job.ID,
		SourceReference:  job.SourceReference,
		Title:            job.Title,
		Status:           string(job.Status),
		ProgressPercent:  job.ProgressPercent,
		ProgressMessage:  job.ProgressMessage,
		ProgressStage:    job.ProgressStage,
		ProcessingMethod: job.ProcessingMethod,
		ResultsReference: job.ResultsReference,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		Steps:            job.Steps(),
	}
}
