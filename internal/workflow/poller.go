package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/logging"
	"lyrebird/internal/notifications"
	"lyrebird/internal/pipeline"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/services"
)

// processor runs one claimed job to a normalized outcome.
type processor interface {
	Process(ctx context.Context, job *queue.Job) (pipeline.Outcome, error)
}

// Poller is the single active queue consumer. It never starts a second job
// before the current one reaches a terminal state.
type Poller struct {
	cfg          *config.Config
	store        *queue.Store
	tracker      *progress.Tracker
	orchestrator processor
	logger       *slog.Logger
	notifier     notifications.Service

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	grace              time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewPoller constructs a poller over the store and orchestrator.
func NewPoller(cfg *config.Config, store *queue.Store, tracker *progress.Tracker, orchestrator processor, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		cfg:                cfg,
		store:              store,
		tracker:            tracker,
		orchestrator:       orchestrator,
		logger:             logging.WithComponent(logger, "workflow"),
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		grace:              time.Duration(cfg.Workflow.ProgressGraceSeconds) * time.Second,
		notifier:           notifications.NewService(cfg),
	}
}

// SetNotifier replaces the push notification target; nil disables it.
func (p *Poller) SetNotifier(svc notifications.Service) {
	if svc == nil {
		svc = notifications.NewService(p.cfg)
	}
	p.notifier = svc
}

// Start begins background processing. Jobs left in processing by a previous
// run are requeued first so a crash never strands work.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("workflow already running")
	}

	requeued, err := p.store.ResetStuckProcessing(ctx)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("requeue stuck jobs: %w", err)
	}
	if requeued > 0 {
		p.logger.Info("requeued jobs from interrupted run", logging.Int64("count", requeued))
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the in-flight job.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastError returns the most recent queue access failure, if any.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.store.ClaimQueued(ctx)
		if err != nil {
			p.setLastError(err)
			p.logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check jobs database access"),
			)
			p.sleep(ctx, p.errorRetryInterval)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}
		p.setLastError(nil)

		p.processJob(ctx, job)
	}
}

// processJob drives one claimed job to a terminal state. Panics and errors
// from the orchestrator are captured here so one job's failure never halts
// the loop.
func (p *Poller) processJob(ctx context.Context, job *queue.Job) {
	logger := p.logger.With(logging.Int64(logging.FieldJobID, job.ID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing job",
				logging.Any("panic", r),
				logging.String(logging.FieldEventType, "job_panic"),
			)
			p.finalizeError(ctx, logger, job, fmt.Sprintf("internal failure: %v", r))
		}
	}()

	logger.Info("processing job", logging.String("source", job.SourceReference))
	p.tracker.Update(ctx, job.ID, progress.Update{Percent: 1, Message: "processing started"})

	outcome, err := p.orchestrator.Process(ctx, job)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-job: the row stays processing and is requeued
			// by ResetStuckProcessing on the next start.
			logger.Info("job interrupted by shutdown")
			return
		}
		p.finalizeError(ctx, logger, job, services.Detail(err))
		return
	}

	job.SetCompleted(outcome.ResultsReference, outcome.Method)
	if !p.writeTerminal(ctx, logger, job) {
		return
	}
	p.tracker.Update(ctx, job.ID, progress.Update{
		Percent: 100,
		Message: "completed",
		Stage:   job.ProgressStage,
		Method:  outcome.Method,
	})
	p.tracker.RemoveAfter(job.ID, p.grace)
	logger.Info("job completed",
		logging.String("method", outcome.Method),
		logging.String("results", outcome.ResultsReference),
		logging.Int("words", outcome.WordCount),
	)
	if err := p.notifier.JobCompleted(ctx, job.ID, job.Title, outcome.Method, outcome.Language); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

func (p *Poller) finalizeError(ctx context.Context, logger *slog.Logger, job *queue.Job, message string) {
	if message == "" {
		message = "processing failed"
	}
	job.SetError(message)
	if !p.writeTerminal(ctx, logger, job) {
		return
	}
	p.tracker.Update(ctx, job.ID, progress.Update{Message: message, Stage: job.ProgressStage})
	p.tracker.RemoveAfter(job.ID, p.grace)
	logger.Error("job failed", logging.String("error_message", message))
	if err := p.notifier.JobFailed(ctx, job.ID, job.Title, message); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

// writeTerminal persists the terminal status, retrying once before giving up.
// The durable write must land before the live progress entry is removed, so
// on persistent failure the live entry is deliberately left in place.
func (p *Poller) writeTerminal(ctx context.Context, logger *slog.Logger, job *queue.Job) bool {
	err := p.store.Update(ctx, job)
	if err == nil {
		return true
	}
	logger.Warn("terminal status write failed, retrying", logging.Error(err))
	if err = p.store.Update(ctx, job); err == nil {
		return true
	}
	p.setLastError(err)
	logger.Error("terminal status write failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "terminal_write_failed"),
		logging.String(logging.FieldErrorHint, "check jobs database access"),
	)
	return false
}

func (p *Poller) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
