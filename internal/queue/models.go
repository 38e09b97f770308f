package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// StepStatus represents the state of one step log entry.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// ProcessingStep is one append-only entry in a job's durable step log.
type ProcessingStep struct {
	Stage           string     `json:"stage"`
	Status          StepStatus `json:"status"`
	Percent         float64    `json:"percent"`
	Message         string     `json:"message,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
}

// Job represents a transcription job persisted in SQLite.
type Job struct {
	ID               int64
	SourceReference  string
	Title            string
	Status           Status
	ProgressPercent  float64
	ProgressMessage  string
	ProgressStage    string
	ProcessingMethod string
	ResultsReference string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProgressLogJSON  string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Errored    int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Steps decodes the persisted step log. A corrupt log yields an empty slice
// rather than failing reads of otherwise healthy rows.
func (j *Job) Steps() []ProcessingStep {
	if strings.TrimSpace(j.ProgressLogJSON) == "" {
		return nil
	}
	var steps []ProcessingStep
	if err := json.Unmarshal([]byte(j.ProgressLogJSON), &steps); err != nil {
		return nil
	}
	return steps
}

// AppendStep adds an entry to the in-memory step log. Callers persist via
// Store.Update or Store.AppendStep.
func (j *Job) AppendStep(step ProcessingStep) error {
	steps := append(j.Steps(), step)
	encoded, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	j.ProgressLogJSON = string(encoded)
	return nil
}

// SetCompleted marks the job completed with the result reference.
func (j *Job) SetCompleted(resultsReference, method string) {
	j.Status = StatusCompleted
	j.ResultsReference = resultsReference
	j.ProcessingMethod = method
	j.ProgressPercent = 100
	j.ProgressStage = "Completed"
	j.ErrorMessage = ""
}

// SetError marks the job failed with the given error message.
func (j *Job) SetError(message string) {
	j.Status = StatusError
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.ProgressStage = "Error"
}
