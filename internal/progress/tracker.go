package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lyrebird/internal/logging"
	"lyrebird/internal/queue"
)

// Update carries one progress advance from the orchestrator.
type Update struct {
	Percent float64
	Message string
	// Stage and Method are optional; empty values leave the previous ones in place.
	Stage  string
	Method string
}

// Snapshot is the live view of a job in flight.
type Snapshot struct {
	JobID     int64
	Percent   float64
	Message   string
	Stage     string
	Method    string
	UpdatedAt time.Time
}

// Tracker keeps the ephemeral progress table and writes through to the
// durable store. Store write failures degrade visibility but never abort
// the job.
type Tracker struct {
	store  *queue.Store
	logger *slog.Logger

	mu   sync.RWMutex
	live map[int64]Snapshot
}

// NewTracker builds a tracker around the durable store.
func NewTracker(store *queue.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tracker{
		store:  store,
		logger: logging.WithComponent(logger, "progress"),
		live:   make(map[int64]Snapshot),
	}
}

// Update records a progress advance for a job. Percent is clamped to [0,100]
// and never moves backward within a job.
func (t *Tracker) Update(ctx context.Context, jobID int64, update Update) {
	percent := update.Percent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	prev, exists := t.live[jobID]
	next := Snapshot{
		JobID:     jobID,
		Percent:   percent,
		Message:   update.Message,
		Stage:     update.Stage,
		Method:    update.Method,
		UpdatedAt: time.Now().UTC(),
	}
	if exists {
		if next.Percent < prev.Percent {
			next.Percent = prev.Percent
		}
		if next.Stage == "" {
			next.Stage = prev.Stage
		}
		if next.Method == "" {
			next.Method = prev.Method
		}
	}
	t.live[jobID] = next
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	if err := t.store.UpdateProgress(ctx, jobID, next.Percent, next.Message, next.Stage, next.Method); err != nil {
		t.logger.Warn("progress write-through failed",
			logging.Int64(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "progress_persist_failed"),
			logging.String(logging.FieldErrorHint, "check jobs database access"),
		)
	}
}

// Snapshot returns the live entry for a job if one exists.
func (t *Tracker) Snapshot(jobID int64) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.live[jobID]
	return snap, ok
}

// Overlay applies the live entry for the job, if any, onto a durable row in
// place: the in-memory view is authoritative until removed.
func (t *Tracker) Overlay(job *queue.Job) {
	if job == nil {
		return
	}
	snap, ok := t.Snapshot(job.ID)
	if !ok {
		return
	}
	if snap.Percent > job.ProgressPercent {
		job.ProgressPercent = snap.Percent
	}
	if snap.Message != "" {
		job.ProgressMessage = snap.Message
	}
	if snap.Stage != "" {
		job.ProgressStage = snap.Stage
	}
	if snap.Method != "" {
		job.ProcessingMethod = snap.Method
	}
}

// JobView returns a job's durable row overlaid with the live entry when one
// is present.
func (t *Tracker) JobView(ctx context.Context, jobID int64) (*queue.Job, error) {
	job, err := t.store.GetByID(ctx, jobID)
	if err != nil || job == nil {
		return job, err
	}
	t.Overlay(job)
	return job, nil
}

// Remove deletes the live entry immediately. The durable terminal record
// must already be written when this is called.
func (t *Tracker) Remove(jobID int64) {
	t.mu.Lock()
	delete(t.live, jobID)
	t.mu.Unlock()
}

// RemoveAfter deletes the live entry once the grace window elapses, so
// very-recent readers still observe the terminal value through the overlay.
func (t *Tracker) RemoveAfter(jobID int64, grace time.Duration) {
	if grace <= 0 {
		t.Remove(jobID)
		return
	}
	time.AfterFunc(grace, func() { t.Remove(jobID) })
}
