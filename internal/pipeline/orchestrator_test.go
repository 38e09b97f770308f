package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/download"
	"lyrebird/internal/logging"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/services"
	"lyrebird/internal/services/demucs"
	"lyrebird/internal/services/remotetier"
	"lyrebird/internal/services/whisperapi"
	"lyrebird/internal/subtitles"
	"lyrebird/internal/testsupport"
)

type fakeFetcher struct {
	err      error
	duration time.Duration
	calls    int
	lastDir  string
}

func (f *fakeFetcher) Fetch(ctx context.Context, reference, workDir string) (download.Artifact, error) {
	f.calls++
	f.lastDir = workDir
	if f.err != nil {
		return download.Artifact{}, f.err
	}
	path := filepath.Join(workDir, "audio-test.wav")
	if err := writeFixture(path); err != nil {
		return download.Artifact{}, err
	}
	return download.Artifact{Path: path, Title: "Fixture Track", Duration: f.duration, Method: "test-strategy"}, nil
}

func writeFixture(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("RIFF"), 0o644)
}

type fakeSeparator struct {
	err   error
	calls int
	last  demucs.Request
}

func (f *fakeSeparator) IsolateVocals(ctx context.Context, req demucs.Request) (string, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	stem := filepath.Join(req.OutputDir, "htdemucs", "audio", "vocals.wav")
	if err := writeFixture(stem); err != nil {
		return "", err
	}
	return stem, nil
}

type fakeTranscriber struct {
	err      error
	words    []subtitles.Word
	calls    int
	lastPath string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (whisperapi.Transcript, error) {
	f.calls++
	f.lastPath = audioPath
	if f.err != nil {
		return whisperapi.Transcript{}, f.err
	}
	return whisperapi.Transcript{Text: "the quick fox", Language: "en", Words: f.words}, nil
}

type fakeAligner struct {
	err   error
	words []subtitles.Word
	calls int
}

func (f *fakeAligner) AlignWords(ctx context.Context, audioPath, outputDir string) ([]subtitles.Word, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.words, nil
}

type fakeRemote struct {
	healthErr  error
	processErr error
	result     remotetier.Result
	calls      int
}

func (f *fakeRemote) Process(ctx context.Context, jobID int64, sourceReference string) (remotetier.Result, error) {
	f.calls++
	if f.processErr != nil {
		return remotetier.Result{}, f.processErr
	}
	return f.result, nil
}

func (f *fakeRemote) Health(ctx context.Context) error { return f.healthErr }

type fakeUploader struct {
	err   error
	calls int
	paths []string
}

func (f *fakeUploader) Upload(ctx context.Context, logicalPath string, content []byte) (string, error) {
	f.calls++
	f.paths = append(f.paths, logicalPath)
	if f.err != nil {
		return "", f.err
	}
	return "https://store.example.com/" + logicalPath, nil
}

func defaultWords() []subtitles.Word {
	return []subtitles.Word{
		{Text: "the", Start: 0.0, End: 0.2},
		{Text: "quick", Start: 0.2, End: 0.5},
		{Text: "fox", Start: 0.5, End: 0.9},
	}
}

type fixture struct {
	cfg         *config.Config
	store       *queue.Store
	tracker     *progress.Tracker
	fetcher     *fakeFetcher
	separator   *fakeSeparator
	transcriber *fakeTranscriber
	aligner     *fakeAligner
	remote      *fakeRemote
	uploader    *fakeUploader
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	return &fixture{
		cfg:         cfg,
		store:       store,
		tracker:     progress.NewTracker(store, logging.NewNop()),
		fetcher:     &fakeFetcher{duration: 90 * time.Second},
		separator:   &fakeSeparator{},
		transcriber: &fakeTranscriber{words: defaultWords()},
		aligner:     &fakeAligner{words: defaultWords()},
		remote:      &fakeRemote{result: remotetier.Result{Text: "the quick fox", Model: "large-v3", Words: defaultWords()}},
		uploader:    &fakeUploader{},
	}
}

func (f *fixture) orchestrator(withRemote bool) *Orchestrator {
	deps := Deps{
		Engine:      f.fetcher,
		Separator:   f.separator,
		Transcriber: f.transcriber,
		Aligner:     f.aligner,
		Uploader:    f.uploader,
		Store:       f.store,
		Tracker:     f.tracker,
		Logger:      logging.NewNop(),
	}
	if withRemote {
		deps.Remote = f.remote
	}
	return NewOrchestrator(f.cfg, deps)
}

func TestProcessLocalTierSuccess(t *testing.T) {
	f := newFixture(t)
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	outcome, err := f.orchestrator(true).Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.Method != "local:test-strategy" {
		t.Errorf("Method = %q, want %q", outcome.Method, "local:test-strategy")
	}
	if outcome.ResultsReference == "" {
		t.Error("ResultsReference is empty")
	}
	if outcome.WordCount != 3 {
		t.Errorf("WordCount = %d, want 3", outcome.WordCount)
	}
	if !strings.Contains(outcome.SRT, "the quick fox") {
		t.Errorf("SRT missing text: %q", outcome.SRT)
	}
	if !strings.HasPrefix(outcome.SRT, "1\n") || !strings.Contains(outcome.SRT, " --> ") {
		t.Errorf("SRT is not SubRip cue text: %q", outcome.SRT)
	}
	if f.remote.calls != 0 {
		t.Errorf("remote tier invoked %d times on local success", f.remote.calls)
	}
	if f.uploader.calls != 1 {
		t.Errorf("uploader invoked %d times, want 1", f.uploader.calls)
	}

	stored, err := f.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Title != "Fixture Track" {
		t.Errorf("persisted Title = %q, want %q", stored.Title, "Fixture Track")
	}
	steps := stored.Steps()
	if len(steps) == 0 {
		t.Fatal("no step log entries recorded")
	}
	stages := make(map[string]bool)
	for _, step := range steps {
		stages[step.Stage] = true
	}
	for _, want := range []string{StageDownload, StageTranscription, StagePersistence} {
		if !stages[want] {
			t.Errorf("step log missing stage %q", want)
		}
	}
}

// transcribeHook lets a test observe the durable row mid-pipeline, after the
// download stage has persisted its title and progress.
type transcribeHook struct {
	inner  *fakeTranscriber
	before func(ctx context.Context)
}

func (h *transcribeHook) Transcribe(ctx context.Context, audioPath string) (whisperapi.Transcript, error) {
	h.before(ctx)
	return h.inner.Transcribe(ctx, audioPath)
}

func TestProcessTitleWriteKeepsDurableProgress(t *testing.T) {
	f := newFixture(t)
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	var midTitle string
	var midPercent float64
	deps := Deps{
		Engine:    f.fetcher,
		Separator: f.separator,
		Transcriber: &transcribeHook{
			inner: f.transcriber,
			before: func(ctx context.Context) {
				row, err := f.store.GetByID(ctx, job.ID)
				if err != nil || row == nil {
					t.Fatalf("GetByID mid-pipeline: %v, %v", row, err)
				}
				midTitle = row.Title
				midPercent = row.ProgressPercent
			},
		},
		Aligner:  f.aligner,
		Uploader: f.uploader,
		Store:    f.store,
		Tracker:  f.tracker,
		Logger:   logging.NewNop(),
	}

	if _, err := NewOrchestrator(f.cfg, deps).Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if midTitle != "Fixture Track" {
		t.Errorf("mid-pipeline title = %q, want %q", midTitle, "Fixture Track")
	}
	if midPercent < 15 {
		t.Errorf("mid-pipeline percent = %v, title write must not regress progress", midPercent)
	}
}

func TestProcessFailsOverToRemoteOnAcquisitionError(t *testing.T) {
	f := newFixture(t, testsupport.WithRemoteTier("https://remote.example.com", "token"))
	f.fetcher.err = errors.New("all 4 strategies exhausted")
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	outcome, err := f.orchestrator(true).Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.Method != "remote:large-v3" {
		t.Errorf("Method = %q, want %q", outcome.Method, "remote:large-v3")
	}
	if outcome.ResultsReference == "" {
		t.Error("ResultsReference is empty after remote success")
	}
	if f.remote.calls != 1 {
		t.Errorf("remote tier invoked %d times, want 1", f.remote.calls)
	}
}

func TestProcessLocalFailureWithoutRemoteSurfacesUnchanged(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("all 4 strategies exhausted")
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	_, err := f.orchestrator(false).Process(context.Background(), job)
	if err == nil {
		t.Fatal("Process succeeded, want error")
	}
	if !errors.Is(err, services.ErrAcquisition) {
		t.Errorf("error %v is not an acquisition error", err)
	}
	if errors.Is(err, services.ErrRemoteUnavailable) {
		t.Errorf("error %v rewrapped as remote-unavailable without a remote tier", err)
	}
}

func TestProcessRemoteFailureIsTerminal(t *testing.T) {
	f := newFixture(t, testsupport.WithRemoteTier("https://remote.example.com", "token"))
	f.fetcher.err = errors.New("all strategies exhausted")
	f.remote.processErr = errors.New("remote worker crashed")
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	_, err := f.orchestrator(true).Process(context.Background(), job)
	if err == nil {
		t.Fatal("Process succeeded, want error")
	}
	if !errors.Is(err, services.ErrRemoteUnavailable) {
		t.Errorf("error %v is not remote-unavailable", err)
	}
	if services.Recoverable(err) {
		t.Error("remote failure classified as recoverable")
	}
}

func TestProcessSkipsIsolationForLongAudio(t *testing.T) {
	f := newFixture(t, testsupport.WithSeparation(true, 600))
	f.fetcher.duration = 700 * time.Second
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	if _, err := f.orchestrator(false).Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.separator.calls != 0 {
		t.Errorf("separator invoked %d times for over-limit audio", f.separator.calls)
	}
	if f.transcriber.calls != 1 {
		t.Fatalf("transcriber invoked %d times, want 1", f.transcriber.calls)
	}
	if !strings.HasSuffix(f.transcriber.lastPath, "audio-test.wav") {
		t.Errorf("transcriber received %q, want unseparated audio", f.transcriber.lastPath)
	}

	stored, err := f.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	found := false
	for _, step := range stored.Steps() {
		if step.Stage == StageIsolation && strings.Contains(step.Message, "skipped") {
			found = true
		}
	}
	if !found {
		t.Error("step log has no isolation-skipped entry")
	}
}

func TestProcessIsolationRunsUnderLimit(t *testing.T) {
	f := newFixture(t, testsupport.WithSeparation(true, 600))
	f.fetcher.duration = 120 * time.Second
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	if _, err := f.orchestrator(false).Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.separator.calls != 1 {
		t.Fatalf("separator invoked %d times, want 1", f.separator.calls)
	}
	if !strings.HasSuffix(f.transcriber.lastPath, "vocals.wav") {
		t.Errorf("transcriber received %q, want isolated vocals", f.transcriber.lastPath)
	}
}

func TestProcessIsolationFailureFallsBackToOriginalAudio(t *testing.T) {
	f := newFixture(t, testsupport.WithSeparation(true, 600))
	f.separator.err = errors.New("cuda out of memory")
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	if _, err := f.orchestrator(false).Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.HasSuffix(f.transcriber.lastPath, "audio-test.wav") {
		t.Errorf("transcriber received %q, want original audio after isolation failure", f.transcriber.lastPath)
	}
}

func TestProcessAlignmentFailureKeepsTranscriberTimestamps(t *testing.T) {
	f := newFixture(t)
	f.aligner.err = errors.New("uvx: whisperx install failed")
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	outcome, err := f.orchestrator(false).Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome.WordCount != len(defaultWords()) {
		t.Errorf("WordCount = %d, want %d", outcome.WordCount, len(defaultWords()))
	}
}

func TestProcessUploadFailureDoesNotTriggerRemote(t *testing.T) {
	f := newFixture(t, testsupport.WithRemoteTier("https://remote.example.com", "token"))
	f.uploader.err = errors.New("storage quota exceeded")
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	_, err := f.orchestrator(true).Process(context.Background(), job)
	if err == nil {
		t.Fatal("Process succeeded, want error")
	}
	if !errors.Is(err, services.ErrPersistence) {
		t.Errorf("error %v is not a persistence error", err)
	}
	if f.remote.calls != 0 {
		t.Errorf("remote tier invoked %d times after persistence failure", f.remote.calls)
	}
}

func TestProcessCleansWorkDirByDefault(t *testing.T) {
	f := newFixture(t)
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	if _, err := f.orchestrator(false).Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(f.fetcher.lastDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("working directory %q not removed", f.fetcher.lastDir)
	}
}

func TestProcessKeepsWorkDirWhenConfigured(t *testing.T) {
	f := newFixture(t, testsupport.WithKeepWorkDirs())
	job := testsupport.NewJob(t, f.store, "https://example.com/watch?v=abc")

	if _, err := f.orchestrator(false).Process(context.Background(), job); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := os.Stat(f.fetcher.lastDir); err != nil {
		t.Errorf("working directory %q missing: %v", f.fetcher.lastDir, err)
	}
}
