// Package download turns a remote source reference into a local audio file
// despite an adversarial, frequently changing upstream. Resilience comes from
// strategy breadth: an ordered list of fully specified attempts is tried in
// order and the first one producing a non-empty output file wins.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"lyrebird/internal/logging"
	"lyrebird/internal/services/ytdlp"
)

// Artifact is the outcome of a successful fetch.
type Artifact struct {
	// Path is the local audio file.
	Path string
	// Title is the media title when the strategy reports one.
	Title string
	// Duration is the media duration when the strategy reports one.
	Duration time.Duration
	// Method is the name of the winning strategy.
	Method string
}

// segmentFetcher abstracts the direct HLS path for tests.
type segmentFetcher interface {
	Fetch(ctx context.Context, reference, dest string) error
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithStrategies replaces the built-in strategy order.
func WithStrategies(strategies []Strategy) EngineOption {
	return func(e *Engine) {
		if len(strategies) > 0 {
			e.strategies = strategies
		}
	}
}

// WithCookieMaterial supplies credential material for authenticated
// strategies. When empty, authenticated strategies are skipped outright.
func WithCookieMaterial(material string) EngineOption {
	return func(e *Engine) {
		e.cookieMaterial = material
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client used by the direct HLS strategy.
func WithHTTPClient(httpClient *http.Client) EngineOption {
	return func(e *Engine) {
		e.hls = newHLSFetcher(httpClient)
	}
}

// WithSegmentFetcher replaces the HLS fetcher (used in tests).
func WithSegmentFetcher(fetcher segmentFetcher) EngineOption {
	return func(e *Engine) {
		if fetcher != nil {
			e.hls = fetcher
		}
	}
}

// Engine is the download resilience engine.
type Engine struct {
	runner         ytdlp.Runner
	hls            segmentFetcher
	strategies     []Strategy
	cookieMaterial string
	logger         *slog.Logger
}

// NewEngine constructs an engine around the given downloader runner.
func NewEngine(runner ytdlp.Runner, opts ...EngineOption) *Engine {
	engine := &Engine{
		runner:     runner,
		hls:        newHLSFetcher(nil),
		strategies: DefaultStrategies(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Fetch tries each strategy in order and returns the first artifact with a
// non-empty output file. Authenticated strategies are skipped, not attempted,
// when no credential material is available. If every strategy is exhausted
// the aggregate error names the last attempted strategy's failure.
func (e *Engine) Fetch(ctx context.Context, reference, workDir string) (Artifact, error) {
	var (
		lastErr  error
		lastName string
		attempts int
	)

	for _, strategy := range e.strategies {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		if strategy.RequiresAuth && e.cookieMaterial == "" {
			e.logger.Debug("skipping authenticated strategy, no credentials",
				logging.String(logging.FieldStrategy, strategy.Name))
			continue
		}

		attempts++
		lastName = strategy.Name
		e.logger.Info("attempting download strategy",
			logging.String(logging.FieldStrategy, strategy.Name),
			logging.String("kind", string(strategy.Kind)))

		artifact, err := e.attempt(ctx, strategy, reference, workDir)
		if err != nil {
			lastErr = err
			e.logger.Warn("download strategy failed",
				logging.String(logging.FieldStrategy, strategy.Name),
				logging.Error(err))
			continue
		}

		e.logger.Info("download strategy succeeded",
			logging.String(logging.FieldStrategy, strategy.Name),
			logging.String("path", artifact.Path))
		return artifact, nil
	}

	if attempts == 0 {
		return Artifact{}, errors.New("download: no applicable strategies")
	}
	return Artifact{}, fmt.Errorf("download: all %d strategies exhausted, last (%s): %w", attempts, lastName, lastErr)
}

func (e *Engine) attempt(ctx context.Context, strategy Strategy, reference, workDir string) (Artifact, error) {
	switch strategy.Kind {
	case KindHLSDirect:
		return e.attemptHLS(ctx, strategy, reference, workDir)
	default:
		return e.attemptDownloader(ctx, strategy, reference, workDir)
	}
}

func (e *Engine) attemptDownloader(ctx context.Context, strategy Strategy, reference, workDir string) (Artifact, error) {
	req := ytdlp.Request{
		Reference:      reference,
		OutputTemplate: filepath.Join(workDir, "audio-"+strategy.Name+".%(ext)s"),
		Format:         strategy.Format,
		AudioFormat:    strategy.AudioFormat,
		ClientProfile:  strategy.ClientProfile,
		SocketTimeout:  strategy.SocketTimeout,
		Retries:        strategy.Retries,
	}

	if strategy.RequiresAuth {
		cookiePath, cleanup, err := materializeCookies(e.cookieMaterial, workDir)
		if err != nil {
			return Artifact{}, err
		}
		defer cleanup()
		req.CookieFile = cookiePath
	}

	result, err := e.runner.Download(ctx, req)
	if err != nil {
		return Artifact{}, err
	}
	if result.OutputPath == "" {
		return Artifact{}, fmt.Errorf("strategy %s produced no output file", strategy.Name)
	}
	return Artifact{
		Path:     result.OutputPath,
		Title:    result.Title,
		Duration: result.Duration,
		Method:   strategy.Name,
	}, nil
}

func (e *Engine) attemptHLS(ctx context.Context, strategy Strategy, reference, workDir string) (Artifact, error) {
	dest := filepath.Join(workDir, "audio-"+strategy.Name+".ts")
	if err := e.hls.Fetch(ctx, reference, dest); err != nil {
		os.Remove(dest) //nolint:errcheck
		return Artifact{}, err
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		os.Remove(dest) //nolint:errcheck
		return Artifact{}, fmt.Errorf("strategy %s produced no output file", strategy.Name)
	}
	return Artifact{Path: dest, Method: strategy.Name}, nil
}
