package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lyrebird/internal/config"
	"lyrebird/internal/download"
	"lyrebird/internal/language"
	"lyrebird/internal/logging"
	"lyrebird/internal/pipeline"
	"lyrebird/internal/preflight"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/services/cloudstore"
	"lyrebird/internal/services/demucs"
	"lyrebird/internal/services/ffprobe"
	"lyrebird/internal/services/remotetier"
	"lyrebird/internal/services/whisperapi"
	"lyrebird/internal/services/whisperx"
	"lyrebird/internal/services/ytdlp"
)

// buildPipelineDeps wires the external collaborators the orchestrator drives.
// Optional tiers (separation, alignment, remote, storage) stay nil when their
// configuration section leaves them off.
func buildPipelineDeps(cfg *config.Config, store *queue.Store, tracker *progress.Tracker, logger *slog.Logger) (pipeline.Deps, error) {
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return pipeline.Deps{}, err
	}

	deps := pipeline.Deps{
		Engine:      engine,
		Transcriber: buildTranscriber(cfg),
		Store:       store,
		Tracker:     tracker,
		Logger:      logger,
		ProbeDuration: func(ctx context.Context, path string) (time.Duration, error) {
			return ffprobe.AudioDuration(ctx, cfg.FFprobeBinary(), path)
		},
	}

	if cfg.Separation.Enabled {
		deps.Separator = demucs.NewCLI(demucs.WithBinary(cfg.Separation.Binary))
	}
	if cfg.Aligner.Enabled {
		deps.Aligner = whisperx.NewService(whisperx.Config{
			UVXBinary:   cfg.Aligner.UVXBinary,
			Model:       cfg.Aligner.Model,
			Language:    language.ToISO2(cfg.Aligner.Language),
			CUDAEnabled: cfg.Aligner.CUDAEnabled,
		})
	}
	if cfg.RemoteConfigured() {
		deps.Remote = remotetier.NewClient(cfg.Remote.Endpoint, cfg.Remote.Token,
			remotetier.WithModelPreference(cfg.Remote.ModelPreference),
			remotetier.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Remote.TimeoutSeconds) * time.Second}),
		)
	}
	if cfg.Storage.Endpoint != "" {
		deps.Uploader = cloudstore.NewClient(cfg.Storage.Endpoint, cfg.Storage.APIKey,
			cloudstore.WithFolder(cfg.Storage.Folder),
			cloudstore.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Storage.TimeoutSeconds) * time.Second}),
		)
	}

	return deps, nil
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*download.Engine, error) {
	runner := ytdlp.NewCLI(ytdlp.WithBinary(cfg.Downloader.Binary))

	opts := []download.EngineOption{
		download.WithLogger(logger),
		download.WithCookieMaterial(cfg.Downloader.Cookies),
	}
	if cfg.Downloader.StrategiesFile != "" {
		strategies, err := download.LoadStrategies(cfg.Downloader.StrategiesFile)
		if err != nil {
			return nil, fmt.Errorf("load download strategies: %w", err)
		}
		opts = append(opts, download.WithStrategies(strategies))
	}
	return download.NewEngine(runner, opts...), nil
}

func buildTranscriber(cfg *config.Config) whisperapi.Transcriber {
	opts := []whisperapi.Option{
		whisperapi.WithBaseURL(cfg.Transcriber.BaseURL),
		whisperapi.WithModel(cfg.Transcriber.Model),
	}
	if cfg.Transcriber.TimeoutSeconds > 0 {
		opts = append(opts, whisperapi.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Transcriber.TimeoutSeconds) * time.Second,
		}))
	}
	return whisperapi.NewClient(cfg.Transcriber.APIKey, opts...)
}

// logPreflight runs environment checks at startup and logs failures without
// refusing to start; a missing optional binary only matters once a job needs it.
func logPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, status := range preflight.CheckSystemDeps(ctx, cfg) {
		if status.Available {
			continue
		}
		if status.Optional {
			logger.Debug("optional dependency missing",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail))
			continue
		}
		logger.Warn("dependency missing",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail))
	}
	for _, result := range preflight.RunAll(ctx, cfg) {
		if !result.Passed {
			logger.Warn("preflight check failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
		}
	}
}
