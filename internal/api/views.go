package api

import (
	"time"

	"lyrebird/internal/queue"
)

// JobView is the wire representation of a job.
type JobView struct {
	ID               int64                  `json:"id"`
	SourceReference  string                 `json:"source_reference"`
	Title            string                 `json:"title,omitempty"`
	Status           string                 `json:"status"`
	ProgressPercent  float64                `json:"progress_percent"`
	ProgressMessage  string                 `json:"progress_message,omitempty"`
	ProgressStage    string                 `json:"progress_stage,omitempty"`
	ProcessingMethod string                 `json:"processing_method,omitempty"`
	ResultsReference string                 `json:"results_reference,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	Steps            []queue.ProcessingStep `json:"steps,omitempty"`
}

// HealthView is the wire representation of queue health.
type HealthView struct {
	Running    bool  `json:"running"`
	Total      int   `json:"total"`
	Queued     int   `json:"queued"`
	Processing int   `json:"processing"`
	Completed  int   `json:"completed"`
	Errored    int   `json:"errored"`
	Uptime     int64 `json:"uptime_seconds"`
}

func viewFromJob(job *queue.Job, includeSteps bool) JobView {
	view := JobView{
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
	}
	if includeSteps {
		view.Steps = job.Steps()
	}
	return view
}
