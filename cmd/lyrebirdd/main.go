package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lyrebird/internal/config"
	"lyrebird/internal/daemon"
	"lyrebird/internal/logging"
	"lyrebird/internal/pipeline"
	"lyrebird/internal/progress"
	"lyrebird/internal/queue"
	"lyrebird/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := os.Getenv("LYREBIRD_CONFIG")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	logPreflight(ctx, cfg, logger)

	tracker := progress.NewTracker(store, logger)
	deps, err := buildPipelineDeps(cfg, store, tracker, logger)
	if err != nil {
		logger.Error("build pipeline", logging.Error(err))
		os.Exit(1)
	}

	orchestrator := pipeline.NewOrchestrator(cfg, deps)
	poller := workflow.NewPoller(cfg, store, tracker, orchestrator, logger)

	d, err := daemon.New(cfg, store, tracker, poller, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("lyrebirdd running",
		logging.String("queue_db", store.Path()),
		logging.String("api", d.APIAddress()))

	<-ctx.Done()
	logger.Info("lyrebirdd shutting down")
	d.Stop()
}
