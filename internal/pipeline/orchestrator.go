package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/download"
	"lyrebird/internal/language"
	"lyrebird/internal/logging"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/services"
	"lyrebird/internal/services/demucs"
	"lyrebird/internal/services/remotetier"
	"lyrebird/internal/services/whisperapi"
	"lyrebird/internal/subtitles"
)

// Stage labels recorded in progress updates and the durable step log.
const (
	StageDownload      = "download"
	StageIsolation     = "isolation"
	StageTranscription = "transcription"
	StageAlignment     = "alignment"
	StageSubtitles     = "subtitles"
	StagePersistence   = "persistence"
	StageRemote        = "remote"
)

// Outcome is the normalized result of one pipeline run, identical in shape
// regardless of which tier produced it.
type Outcome struct {
	Method           string
	ResultsReference string
	Text             string
	SRT              string
	Language         string
	WordCount        int
}

// fetcher acquires a local audio artifact for a source reference.
type fetcher interface {
	Fetch(ctx context.Context, reference, workDir string) (download.Artifact, error)
}

// aligner refines word timestamps for an audio file.
type aligner interface {
	AlignWords(ctx context.Context, audioPath, outputDir string) ([]subtitles.Word, error)
}

// uploader persists result payloads remotely.
type uploader interface {
	Upload(ctx context.Context, logicalPath string, content []byte) (string, error)
}

// Deps carries the collaborators the orchestrator drives. Nil optional
// collaborators (Separator, Aligner, Remote) disable their stages.
type Deps struct {
	Engine        fetcher
	Separator     demucs.Separator
	Transcriber   whisperapi.Transcriber
	Aligner       aligner
	Remote        remotetier.Processor
	Uploader      uploader
	Store         *queue.Store
	Tracker       *progress.Tracker
	ProbeDuration func(ctx context.Context, path string) (time.Duration, error)
	Logger        *slog.Logger
}

// Orchestrator drives one job at a time through the tiered pipeline.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
}

// NewOrchestrator wires an orchestrator from configuration and collaborators.
func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Process runs the job to a normalized outcome. Recoverable local-tier
// failures trigger remote fallback when a remote tier is configured; the
// terminal status write remains the caller's responsibility.
func (o *Orchestrator) Process(ctx context.Context, job *queue.Job) (Outcome, error) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := o.deps.Logger.With(logging.Int64(logging.FieldJobID, job.ID))

	workDir := filepath.Join(o.cfg.Paths.WorkDir, fmt.Sprintf("job-%d", job.ID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Outcome{}, services.Wrap(services.ErrProcessing, StageDownload, "workdir", "creating working directory", err)
	}
	defer o.cleanupWorkDir(logger, workDir)

	outcome, localErr := o.runLocal(ctx, logger, job, workDir)
	if localErr == nil {
		return outcome, nil
	}
	logger.Warn("local tier failed",
		logging.String(logging.FieldTier, "local"),
		logging.Error(localErr))

	if !services.Recoverable(localErr) {
		return Outcome{}, localErr
	}
	if o.deps.Remote == nil {
		// No remote tier configured: the local failure surfaces unchanged.
		return Outcome{}, localErr
	}

	o.progress(ctx, job.ID, 30, "failing over to remote tier", StageRemote, "remote")
	o.step(ctx, logger, job.ID, queue.ProcessingStep{
		Stage:     StageRemote,
		Status:    queue.StepInProgress,
		Percent:   30,
		Message:   "local tier failed, retrying remotely",
		Timestamp: time.Now().UTC(),
	})

	outcome, remoteErr := o.runRemote(ctx, logger, job)
	if remoteErr != nil {
		return Outcome{}, services.Wrap(services.ErrRemoteUnavailable, StageRemote, "process", "", remoteErr)
	}
	return outcome, nil
}

func (o *Orchestrator) runLocal(ctx context.Context, logger *slog.Logger, job *queue.Job, workDir string) (Outcome, error) {
	ctx = services.WithStage(ctx, StageDownload)
	o.progress(ctx, job.ID, 5, "acquiring audio", StageDownload, "")
	started := time.Now()

	artifact, err := o.deps.Engine.Fetch(ctx, job.SourceReference, workDir)
	if err != nil {
		o.step(ctx, logger, job.ID, errorStep(StageDownload, 5, err))
		return Outcome{}, services.Wrap(services.ErrAcquisition, StageDownload, "fetch", "", err)
	}
	method := "local:" + artifact.Method
	if artifact.Title != "" && job.Title == "" {
		job.Title = artifact.Title
		// Narrow write: a full-row update here would push the claim-time
		// progress fields over the tracker's newer write-through values.
		if updateErr := o.deps.Store.SetTitle(ctx, job.ID, artifact.Title); updateErr != nil {
			logger.Warn("persisting title failed", logging.Error(updateErr))
		}
	}
	o.progress(ctx, job.ID, 15, "audio acquired", StageDownload, method)
	o.step(ctx, logger, job.ID, completedStep(StageDownload, 15, "via "+artifact.Method, started))

	audioPath := artifact.Path
	duration := artifact.Duration
	if duration <= 0 && o.deps.ProbeDuration != nil {
		if probed, probeErr := o.deps.ProbeDuration(ctx, audioPath); probeErr == nil {
			duration = probed
		} else {
			logger.Warn("duration probe failed", logging.Error(probeErr))
		}
	}

	audioPath = o.isolateVocals(ctx, logger, job, workDir, audioPath, duration)

	ctx = services.WithStage(ctx, StageTranscription)
	o.progress(ctx, job.ID, 50, "transcribing audio", StageTranscription, "")
	started = time.Now()
	transcript, err := o.deps.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		o.step(ctx, logger, job.ID, errorStep(StageTranscription, 50, err))
		return Outcome{}, services.Wrap(services.ErrProcessing, StageTranscription, "transcribe", "", err)
	}
	o.progress(ctx, job.ID, 70, "transcript ready", StageTranscription, "")
	o.step(ctx, logger, job.ID, completedStep(StageTranscription, 70, "", started))

	words := o.alignWords(ctx, logger, job, workDir, audioPath, transcript.Words)
	if len(words) == 0 {
		return Outcome{}, services.Wrap(services.ErrProcessing, StageAlignment, "timestamps",
			"no word timestamps available", nil)
	}

	return o.finalize(ctx, logger, job, transcript.Text, transcript.Language, words, method)
}

// isolateVocals runs the optional separation stage. It never fails the job:
// long inputs under a memory-constrained profile are skipped by policy, and
// separator errors fall back to the original mixed audio.
func (o *Orchestrator) isolateVocals(ctx context.Context, logger *slog.Logger, job *queue.Job, workDir, audioPath string, duration time.Duration) string {
	if !o.cfg.Separation.Enabled || o.deps.Separator == nil {
		return audioPath
	}
	ctx = services.WithStage(ctx, StageIsolation)

	limit := time.Duration(o.cfg.Separation.MaxDurationSeconds) * time.Second
	if o.cfg.Separation.MemoryConstrained && limit > 0 && duration > limit {
		message := fmt.Sprintf("isolation skipped: duration %.0fs exceeds %.0fs limit",
			duration.Seconds(), limit.Seconds())
		logger.Info("skipping vocal isolation", logging.String("reason", message))
		o.progress(ctx, job.ID, 20, "vocal isolation skipped for long input", StageIsolation, "")
		o.step(ctx, logger, job.ID, queue.ProcessingStep{
			Stage:     StageIsolation,
			Status:    queue.StepCompleted,
			Percent:   20,
			Message:   message,
			Timestamp: time.Now().UTC(),
		})
		return audioPath
	}

	o.progress(ctx, job.ID, 25, "isolating vocals", StageIsolation, "")
	started := time.Now()
	stem, err := o.deps.Separator.IsolateVocals(ctx, demucs.Request{
		AudioPath: audioPath,
		OutputDir: filepath.Join(workDir, "separated"),
		Model:     o.cfg.Separation.Model,
	})
	if err != nil {
		logger.Warn("vocal isolation failed, using original audio", logging.Error(err))
		o.step(ctx, logger, job.ID, queue.ProcessingStep{
			Stage:     StageIsolation,
			Status:    queue.StepError,
			Percent:   25,
			Message:   "isolation failed, continuing with original audio: " + err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return audioPath
	}
	o.progress(ctx, job.ID, 40, "vocals isolated", StageIsolation, "")
	o.step(ctx, logger, job.ID, completedStep(StageIsolation, 40, "", started))
	return stem
}

// alignWords runs the optional alignment stage, keeping the transcriber's own
// timestamps whenever alignment is disabled or fails.
func (o *Orchestrator) alignWords(ctx context.Context, logger *slog.Logger, job *queue.Job, workDir, audioPath string, fallback []subtitles.Word) []subtitles.Word {
	if o.deps.Aligner == nil {
		return fallback
	}
	ctx = services.WithStage(ctx, StageAlignment)

	o.progress(ctx, job.ID, 75, "aligning word timestamps", StageAlignment, "")
	started := time.Now()
	aligned, err := o.deps.Aligner.AlignWords(ctx, audioPath, filepath.Join(workDir, "aligned"))
	if err != nil || len(aligned) == 0 {
		if err != nil {
			logger.Warn("alignment failed, keeping transcriber timestamps", logging.Error(err))
		}
		o.step(ctx, logger, job.ID, queue.ProcessingStep{
			Stage:     StageAlignment,
			Status:    queue.StepError,
			Percent:   75,
			Message:   "alignment unavailable, keeping transcriber timestamps",
			Timestamp: time.Now().UTC(),
		})
		return fallback
	}
	o.step(ctx, logger, job.ID, completedStep(StageAlignment, 78, "", started))
	return aligned
}

func (o *Orchestrator) runRemote(ctx context.Context, logger *slog.Logger, job *queue.Job) (Outcome, error) {
	ctx = services.WithStage(ctx, StageRemote)
	if o.cfg.Remote.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(o.cfg.Remote.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	if err := o.deps.Remote.Health(ctx); err != nil {
		o.step(ctx, logger, job.ID, errorStep(StageRemote, 30, err))
		return Outcome{}, err
	}

	o.progress(ctx, job.ID, 40, "processing on remote tier", StageRemote, "remote")
	started := time.Now()
	result, err := o.deps.Remote.Process(ctx, job.ID, job.SourceReference)
	if err != nil {
		o.step(ctx, logger, job.ID, errorStep(StageRemote, 40, err))
		return Outcome{}, err
	}
	o.progress(ctx, job.ID, 70, "remote processing complete", StageRemote, "remote")
	o.step(ctx, logger, job.ID, completedStep(StageRemote, 70, "", started))

	if len(result.Words) == 0 {
		return Outcome{}, fmt.Errorf("remote tier returned no word timestamps")
	}

	method := "remote"
	if result.Model != "" {
		method = "remote:" + result.Model
	}
	return o.finalize(ctx, logger, job, result.Text, result.Language, result.Words, method)
}

// resultPayload is the durable artifact persisted to the storage collaborator.
type resultPayload struct {
	SourceReference string           `json:"source_reference"`
	Title           string           `json:"title,omitempty"`
	Language        string           `json:"language,omitempty"`
	Method          string           `json:"method"`
	Text            string           `json:"text"`
	SRT             string           `json:"srt"`
	Words           []subtitles.Word `json:"words"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// finalize converts words into subtitle text and persists the normalized
// result, returning the outcome shared by both tiers.
func (o *Orchestrator) finalize(ctx context.Context, logger *slog.Logger, job *queue.Job, text, lang string, words []subtitles.Word, method string) (Outcome, error) {
	lang = language.ToISO2(lang)
	ctx = services.WithStage(ctx, StageSubtitles)
	o.progress(ctx, job.ID, 85, "generating subtitle text", StageSubtitles, method)

	srt := subtitles.SRT(words)
	if text == "" {
		text = subtitles.PlainText(words)
	}

	payload, err := json.MarshalIndent(resultPayload{
		SourceReference: job.SourceReference,
		Title:           job.Title,
		Language:        lang,
		Method:          method,
		Text:            text,
		SRT:             srt,
		Words:           words,
		GeneratedAt:     time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrPersistence, StagePersistence, "encode", "", err)
	}

	ctx = services.WithStage(ctx, StagePersistence)
	o.progress(ctx, job.ID, 90, "uploading results", StagePersistence, method)
	started := time.Now()
	reference, err := o.storeResults(ctx, job.ID, payload)
	if err != nil {
		o.step(ctx, logger, job.ID, errorStep(StagePersistence, 90, err))
		return Outcome{}, services.Wrap(services.ErrPersistence, StagePersistence, "upload", "", err)
	}
	o.progress(ctx, job.ID, 95, "results stored", StagePersistence, method)
	o.step(ctx, logger, job.ID, completedStep(StagePersistence, 95, "", started))

	return Outcome{
		Method:           method,
		ResultsReference: reference,
		Text:             text,
		SRT:              srt,
		Language:         lang,
		WordCount:        len(words),
	}, nil
}

// storeResults uploads the result document, or keeps it on local disk when no
// storage collaborator is configured.
func (o *Orchestrator) storeResults(ctx context.Context, jobID int64, payload []byte) (string, error) {
	if o.deps.Uploader != nil {
		return o.deps.Uploader.Upload(ctx, fmt.Sprintf("%d/results.json", jobID), payload)
	}

	resultsDir := filepath.Join(o.cfg.Paths.LogDir, "results")
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(resultsDir, fmt.Sprintf("job-%d.json", jobID))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// progress pushes a live update through the tracker; persistence failures are
// absorbed inside the tracker so a degraded store never aborts the job.
func (o *Orchestrator) progress(ctx context.Context, jobID int64, percent float64, message, stage, method string) {
	if o.deps.Tracker == nil {
		return
	}
	o.deps.Tracker.Update(ctx, jobID, progress.Update{
		Percent: percent,
		Message: message,
		Stage:   stage,
		Method:  method,
	})
}

// step appends to the durable step log, best effort.
func (o *Orchestrator) step(ctx context.Context, logger *slog.Logger, jobID int64, step queue.ProcessingStep) {
	if err := o.deps.Store.AppendStep(ctx, jobID, step); err != nil {
		logger.Warn("appending step log entry failed",
			logging.String(logging.FieldStage, step.Stage),
			logging.Error(err))
	}
}

func (o *Orchestrator) cleanupWorkDir(logger *slog.Logger, workDir string) {
	if o.cfg.Workflow.KeepWorkDirs {
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		logger.Warn("removing working directory failed",
			logging.String("workdir", workDir),
			logging.Error(err))
	}
}

func completedStep(stage string, percent float64, message string, started time.Time) queue.ProcessingStep {
	return queue.ProcessingStep{
		Stage:           stage,
		Status:          queue.StepCompleted,
		Percent:         percent,
		Message:         message,
		Timestamp:       time.Now().UTC(),
		DurationSeconds: time.Since(started).Seconds(),
	}
}

func errorStep(stage string, percent float64, err error) queue.ProcessingStep {
	return queue.ProcessingStep{
		Stage:     stage,
		Status:    queue.StepError,
		Percent:   percent,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}
