package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	"log/slog"

	"lyrebird/internal/api"
	"lyrebird/internal/config"
	"lyrebird/internal/logging"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	tracker *progress.Tracker
	poller  *workflow.Poller
	server  *apiServer
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PollerActive bool
	QueueDBPath  string
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, tracker *progress.Tracker, poller *workflow.Poller, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || tracker == nil || poller == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, tracker, poller, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "lyrebirdd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		tracker:  tracker,
		poller:   poller,
		logPath:  filepath.Join(cfg.Paths.LogDir, "lyrebird.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, api.NewHandler(store, tracker, poller.Running, logger), logger)
	return d, nil
}

// Start acquires the daemon lock, launches the poller, and begins serving
// the query interface.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lyrebird daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.poller.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start poller: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.poller.Stop()
		_ = d.lock.Unlock()
		cancel()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("lyrebird daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.poller.Stop()
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("lyrebird daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound query-interface address, or empty when the
// server is not listening.
func (d *Daemon) APIAddress() string {
	return d.server.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PollerActive: d.poller.Running(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   d.server.address(),
	}
}
