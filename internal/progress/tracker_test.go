package progress_test

import (
	"context"
	"testing"
	"time"

	"lyrebird/internal/logging"
	"lyrebird/internal/progress"
	"lyrebird/internal/testsupport"
)

func TestUpdateClampsAndStaysMonotonic(t *testing.T) {
	tracker := progress.NewTracker(nil, logging.NewNop())
	ctx := context.Background()

	tracker.Update(ctx, 1, progress.Update{Percent: -5, Message: "starting"})
	snap, ok := tracker.Snapshot(1)
	if !ok || snap.Percent != 0 {
		t.Fatalf("snapshot = %+v, %v; want clamp to 0", snap, ok)
	}

	tracker.Update(ctx, 1, progress.Update{Percent: 50, Stage: "transcription", Method: "local:bestaudio-wav"})
	tracker.Update(ctx, 1, progress.Update{Percent: 30, Message: "late update"})
	snap, _ = tracker.Snapshot(1)
	if snap.Percent != 50 {
		t.Fatalf("percent = %v, want 50 (monotonic)", snap.Percent)
	}
	if snap.Stage != "transcription" || snap.Method != "local:bestaudio-wav" {
		t.Fatalf("empty stage/method must carry forward, got %+v", snap)
	}
	if snap.Message != "late update" {
		t.Fatalf("message = %q; messages are not sticky", snap.Message)
	}

	tracker.Update(ctx, 1, progress.Update{Percent: 150})
	snap, _ = tracker.Snapshot(1)
	if snap.Percent != 100 {
		t.Fatalf("percent = %v, want clamp to 100", snap.Percent)
	}
}

func TestUpdateWritesThroughToStore(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tracker := progress.NewTracker(store, logging.NewNop())
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "ref")

	tracker.Update(ctx, job.ID, progress.Update{Percent: 42, Message: "transcribing", Stage: "transcription"})

	durable, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if durable.ProgressPercent != 42 || durable.ProgressStage != "transcription" {
		t.Fatalf("durable row = %+v", durable)
	}
}

func TestJobViewPrefersLiveEntry(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tracker := progress.NewTracker(store, logging.NewNop())
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "ref")

	// Simulate a durable row lagging behind the live table.
	if err := store.UpdateProgress(ctx, job.ID, 10, "durable", "download", ""); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	tracker.Update(ctx, job.ID, progress.Update{Percent: 60, Message: "live", Stage: "transcription"})

	view, err := tracker.JobView(ctx, job.ID)
	if err != nil {
		t.Fatalf("JobView: %v", err)
	}
	if view.ProgressPercent != 60 || view.ProgressMessage != "live" {
		t.Fatalf("view = %+v; live entry should win", view)
	}

	tracker.Remove(job.ID)
	view, err = tracker.JobView(ctx, job.ID)
	if err != nil {
		t.Fatalf("JobView after remove: %v", err)
	}
	// Write-through already advanced the durable row; the view must fall back
	// to it without the removed live entry.
	if view.ProgressPercent != 60 {
		t.Fatalf("durable fallback percent = %v", view.ProgressPercent)
	}
}

func TestJobViewMissingJob(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	tracker := progress.NewTracker(store, logging.NewNop())

	view, err := tracker.JobView(context.Background(), 999)
	if err != nil {
		t.Fatalf("JobView: %v", err)
	}
	if view != nil {
		t.Fatalf("view = %+v, want nil for missing job", view)
	}
}

func TestRemoveAfterZeroGraceRemovesImmediately(t *testing.T) {
	tracker := progress.NewTracker(nil, logging.NewNop())
	tracker.Update(context.Background(), 1, progress.Update{Percent: 100})

	tracker.RemoveAfter(1, 0)
	if _, ok := tracker.Snapshot(1); ok {
		t.Fatal("zero grace must remove synchronously")
	}
}

func TestRemoveAfterGraceKeepsEntryBriefly(t *testing.T) {
	tracker := progress.NewTracker(nil, logging.NewNop())
	tracker.Update(context.Background(), 1, progress.Update{Percent: 100})

	tracker.RemoveAfter(1, 20*time.Millisecond)
	if _, ok := tracker.Snapshot(1); !ok {
		t.Fatal("entry should survive until the grace window elapses")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := tracker.Snapshot(1); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("entry was not removed after the grace window")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
