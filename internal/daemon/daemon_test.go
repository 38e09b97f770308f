package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/logging"
	"lyrebird/internal/pipeline"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/testsupport"
	"lyrebird/internal/workflow"
)

type stubProcessor struct{}

func (stubProcessor) Process(ctx context.Context, job *queue.Job) (pipeline.Outcome, error) {
	return pipeline.Outcome{
		Method:           "local:test-strategy",
		ResultsReference: fmt.Sprintf("https://store.example.com/%d/results.json", job.ID),
	}, nil
}

func newDaemon(t *testing.T, cfg *config.Config) (*Daemon, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	tracker := progress.NewTracker(store, logging.NewNop())
	poller := workflow.NewPoller(cfg, store, tracker, stubProcessor{}, logging.NewNop())
	d, err := New(cfg, store, tracker, poller, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, store
}

func TestDaemonProcessesJobEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newDaemon(t, cfg)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	job := testsupport.NewJob(t, store, "https://example.com/watch?v=abc")
	deadline := time.Now().Add(10 * time.Second)
	for {
		stored, err := store.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored.Status == queue.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in %s", stored.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second, _ := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

func TestDaemonLockReleasedOnStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first.Stop()

	second, _ := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	second.Stop()
}

func TestDaemonServesQueryInterface(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("api server not listening")
	}
	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var health struct {
		Running bool `json:"running"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !health.Running {
		t.Error("health reports poller not running")
	}
}
