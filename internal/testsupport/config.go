// Package testsupport provides shared helpers for package tests: temp-dir
// backed configurations, queue stores with registered cleanup, and stub
// external binaries.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lyrebird/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Transcriber.APIKey = "test"
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.ProgressGraceSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return builder.cfg
}

// WithRemoteTier configures remote failover credentials on the test config.
func WithRemoteTier(endpoint, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.Endpoint = endpoint
		b.cfg.Remote.Token = token
	}
}

// WithSeparation enables the vocal isolation stage on the test config.
func WithSeparation(memoryConstrained bool, maxDurationSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Separation.Enabled = true
		b.cfg.Separation.MemoryConstrained = memoryConstrained
		b.cfg.Separation.MaxDurationSeconds = maxDurationSeconds
	}
}

// WithCookies sets downloader credential material on the test config.
func WithCookies(material string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Downloader.Cookies = material
	}
}

// WithKeepWorkDirs preserves per-job working directories after processing.
func WithKeepWorkDirs() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.KeepWorkDirs = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffprobe", "ffmpeg", "demucs", "uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
