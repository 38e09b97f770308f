package queue_test

import (
	"context"
	"testing"

	"lyrebird/internal/queue"
	"lyrebird/internal/testsupport"
)

func TestNewJobAndGetByID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.NewJob(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("status = %q, want queued", job.Status)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil || fetched.SourceReference != job.SourceReference {
		t.Fatalf("fetched = %+v", fetched)
	}

	missing, err := store.GetByID(ctx, job.ID+100)
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatal("missing row should yield nil, nil")
	}
}

func TestClaimQueuedTakesOldestAndMarksProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first := testsupport.NewJob(t, store, "ref-1")
	testsupport.NewJob(t, store, "ref-2")

	claimed, err := store.ClaimQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimQueued: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed = %+v, want job %d", claimed, first.ID)
	}
	if claimed.Status != queue.StatusProcessing {
		t.Fatalf("status = %q, want processing", claimed.Status)
	}

	// The claimed row is no longer eligible.
	second, err := store.ClaimQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimQueued second: %v", err)
	}
	if second == nil || second.SourceReference != "ref-2" {
		t.Fatalf("second = %+v", second)
	}

	idle, err := store.ClaimQueued(ctx)
	if err != nil {
		t.Fatalf("ClaimQueued idle: %v", err)
	}
	if idle != nil {
		t.Fatalf("idle queue should yield nil, got %+v", idle)
	}
}

func TestUpdateProgressIsMonotonicAndClamped(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "ref")

	if err := store.UpdateProgress(ctx, job.ID, 40, "downloading", "download", "local:bestaudio-wav"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 20, "stale update", "", ""); err != nil {
		t.Fatalf("UpdateProgress backwards: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.ProgressPercent != 40 {
		t.Fatalf("percent = %v, want 40 (monotonic)", fetched.ProgressPercent)
	}
	if fetched.ProgressStage != "download" {
		t.Fatalf("stage = %q, empty update must not erase it", fetched.ProgressStage)
	}
	if fetched.ProcessingMethod != "local:bestaudio-wav" {
		t.Fatalf("method = %q", fetched.ProcessingMethod)
	}

	if err := store.UpdateProgress(ctx, job.ID, 150, "overshoot", "", ""); err != nil {
		t.Fatalf("UpdateProgress overshoot: %v", err)
	}
	fetched, _ = store.GetByID(ctx, job.ID)
	if fetched.ProgressPercent != 100 {
		t.Fatalf("percent = %v, want clamp to 100", fetched.ProgressPercent)
	}
}

func TestSetTitleLeavesProgressUntouched(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "ref")

	if err := store.UpdateProgress(ctx, job.ID, 15, "audio acquired", "download", "local:web"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.SetTitle(ctx, job.ID, "Interview"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Title != "Interview" {
		t.Fatalf("title = %q", fetched.Title)
	}
	if fetched.ProgressPercent != 15 {
		t.Fatalf("percent = %v, title write must not regress progress", fetched.ProgressPercent)
	}
	if fetched.ProgressStage != "download" || fetched.ProcessingMethod != "local:web" {
		t.Fatalf("stage/method = %q/%q, title write must leave them in place",
			fetched.ProgressStage, fetched.ProcessingMethod)
	}
}

func TestAppendStepAccumulatesLog(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	job := testsupport.NewJob(t, store, "ref")

	steps := []queue.ProcessingStep{
		{Stage: "download", Status: queue.StepCompleted, Percent: 15},
		{Stage: "transcription", Status: queue.StepInProgress, Percent: 50, Message: "uploading audio"},
	}
	for _, step := range steps {
		if err := store.AppendStep(ctx, job.ID, step); err != nil {
			t.Fatalf("AppendStep: %v", err)
		}
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	got := fetched.Steps()
	if len(got) != 2 {
		t.Fatalf("steps = %d, want 2", len(got))
	}
	if got[0].Stage != "download" || got[1].Message != "uploading audio" {
		t.Fatalf("steps = %+v", got)
	}
}

func TestResetStuckProcessingRequeues(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewJob(t, store, "ref")

	if _, err := store.ClaimQueued(ctx); err != nil {
		t.Fatalf("ClaimQueued: %v", err)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if count != 1 {
		t.Fatalf("requeued = %d, want 1", count)
	}

	jobs, err := store.List(ctx, queue.StatusQueued)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ProgressPercent != 0 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestRetryFailedOnlyTouchesErroredRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	failed := testsupport.NewJob(t, store, "failed-ref")
	failed.SetError("download: all strategies exhausted")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	healthy := testsupport.NewJob(t, store, "queued-ref")

	count, err := store.RetryFailed(ctx, failed.ID, healthy.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried = %d, want 1", count)
	}

	fetched, _ := store.GetByID(ctx, failed.ID)
	if fetched.Status != queue.StatusQueued {
		t.Fatalf("status = %q, want queued", fetched.Status)
	}
	if fetched.ErrorMessage != "" {
		t.Fatalf("error message should be cleared, got %q", fetched.ErrorMessage)
	}
}

func TestHealthCountsByStatus(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.NewJob(t, store, "a")
	done := testsupport.NewJob(t, store, "b")
	done.SetCompleted("https://store.example/1/results.json", "local:bestaudio-wav")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	broken := testsupport.NewJob(t, store, "c")
	broken.SetError("boom")
	if err := store.Update(ctx, broken); err != nil {
		t.Fatalf("Update: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	want := queue.HealthSummary{Total: 3, Queued: 1, Completed: 1, Errored: 1}
	if health != want {
		t.Fatalf("health = %+v, want %+v", health, want)
	}
}

func TestRemoveAndClear(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := testsupport.NewJob(t, store, "a")
	removed, err := store.Remove(ctx, job.ID)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = store.Remove(ctx, job.ID)
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v; want false", removed, err)
	}

	done := testsupport.NewJob(t, store, "b")
	done.SetCompleted("ref", "remote")
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	testsupport.NewJob(t, store, "c")

	count, err := store.ClearCompleted(ctx)
	if err != nil || count != 1 {
		t.Fatalf("ClearCompleted = %d, %v", count, err)
	}
	count, err = store.Clear(ctx)
	if err != nil || count != 1 {
		t.Fatalf("Clear = %d, %v", count, err)
	}
}

func TestStatusHelpers(t *testing.T) {
	if status, ok := queue.ParseStatus("Completed"); !ok || status != queue.StatusCompleted {
		t.Fatalf("ParseStatus(Completed) = %q, %v", status, ok)
	}
	if _, ok := queue.ParseStatus("bogus"); ok {
		t.Fatal("bogus status should not parse")
	}
	if !queue.StatusError.Terminal() || !queue.StatusCompleted.Terminal() {
		t.Fatal("completed and error are terminal")
	}
	if queue.StatusProcessing.Terminal() {
		t.Fatal("processing is not terminal")
	}
}
