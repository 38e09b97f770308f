// Package whisperx runs WhisperX through uvx to refine word-level timestamps
// for an already transcribed audio file. Alignment is a best-effort stage:
// callers keep the transcriber's own timestamps when it fails.
package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lyrebird/internal/subtitles"
)

// WhisperX configuration constants.
const (
	DefaultModel   = "large-v3"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"
	BatchSize      = "4"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "float32"
)

// UVXCommand is the launcher binary used to run WhisperX without a local install.
const UVXCommand = "uvx"

// Config captures runtime settings for WhisperX alignment.
type Config struct {
	// UVXBinary overrides the uvx launcher path.
	UVXBinary string
	// Model is the WhisperX model to use (e.g. "large-v3").
	Model string
	// Language is the expected audio language (ISO 639-1) or empty for auto.
	Language string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
}

// Aligner produces word-level timestamps for an audio file.
type Aligner interface {
	AlignWords(ctx context.Context, audioPath, outputDir string) ([]subtitles.Word, error)
}

// Service runs WhisperX via uvx.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a WhisperX alignment service with the given configuration.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// AlignWords transcribes the audio with WhisperX and returns its word-level
// timestamps, read from the JSON output file it writes alongside the source.
func (s *Service) AlignWords(ctx context.Context, audioPath, outputDir string) ([]subtitles.Word, error) {
	if audioPath == "" {
		return nil, errors.New("whisperx: audio path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("whisperx: ensure output dir: %w", err)
	}

	args := s.buildArgs(audioPath, outputDir)
	if err := s.run(ctx, s.uvxBinary(), args...); err != nil {
		return nil, fmt.Errorf("whisperx: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	words, err := LoadWords(jsonPath)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, errors.New("whisperx: no aligned words produced")
	}
	return words, nil
}

func (s *Service) uvxBinary() string {
	if s.cfg.UVXBinary != "" {
		return s.cfg.UVXBinary
	}
	return UVXCommand
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	// Force legacy behavior so bundled WhisperX binaries can load checkpoints safely.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 24)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	model := s.cfg.Model
	if model == "" {
		model = DefaultModel
	}

	args = append(args,
		"whisperx",
		source,
		"--model", model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
	)

	if lang := strings.TrimSpace(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

// segment mirrors one entry of the WhisperX JSON output.
type segment struct {
	Text  string           `json:"text"`
	Start float64          `json:"start"`
	End   float64          `json:"end"`
	Words []subtitles.Word `json:"words"`
}

type payload struct {
	Segments []segment `json:"segments"`
}

// LoadWords flattens the per-segment word lists from a WhisperX JSON file.
// Words WhisperX could not anchor (missing timestamps) are dropped.
func LoadWords(jsonPath string) ([]subtitles.Word, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("whisperx: reading output: %w", err)
	}
	var doc payload
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("whisperx: parsing output: %w", err)
	}
	var words []subtitles.Word
	for _, seg := range doc.Segments {
		for _, word := range seg.Words {
			if strings.TrimSpace(word.Text) == "" || word.End <= 0 {
				continue
			}
			words = append(words, word)
		}
	}
	return words, nil
}

var _ Aligner = (*Service)(nil)
