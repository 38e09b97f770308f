// Package demucs wraps the demucs source separator to extract an isolated
// vocal stem from a mixed audio file. Separation is an enhancement stage:
// callers treat failures as advisory and fall back to the original audio.
package demucs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultModel = "htdemucs"

// Request describes one separation invocation.
type Request struct {
	AudioPath string
	OutputDir string
	Model     string
}

// Separator produces a vocals-only audio file; implemented by CLI and fakes.
type Separator interface {
	IsolateVocals(ctx context.Context, req Request) (string, error)
}

// Option configures the CLI separator.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithCommandContext replaces the process launcher (used in tests).
func WithCommandContext(fn func(ctx context.Context, name string, args ...string) *exec.Cmd) Option {
	return func(c *CLI) {
		if fn != nil {
			c.commandContext = fn
		}
	}
}

// CLI wraps the demucs executable.
type CLI struct {
	binary         string
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCLI constructs a CLI separator using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "demucs", commandContext: exec.CommandContext}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// IsolateVocals runs two-stem separation and returns the path to the vocals
// stem discovered under the output directory.
func (c *CLI) IsolateVocals(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return "", errors.New("demucs: audio path required")
	}
	if strings.TrimSpace(req.OutputDir) == "" {
		return "", errors.New("demucs: output directory required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultModel
	}

	args := []string{
		"--two-stems", "vocals",
		"-n", model,
		"-o", req.OutputDir,
		req.AudioPath,
	}
	cmd := c.commandContext(ctx, c.binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("demucs: %w: %s", err, lastLine(stderr.String()))
	}

	stem, err := findVocalsStem(req.OutputDir)
	if err != nil {
		return "", err
	}
	return stem, nil
}

// findVocalsStem walks the demucs output tree (model/track/vocals.wav) and
// returns the first non-empty vocals file.
func findVocalsStem(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || found != "" {
			return nil
		}
		name := strings.ToLower(d.Name())
		if name != "vocals.wav" && name != "vocals.mp3" {
			return nil
		}
		info, statErr := os.Stat(path)
		if statErr != nil || info.Size() == 0 {
			return nil
		}
		found = path
		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("demucs: scanning output: %w", err)
	}
	if found == "" {
		return "", errors.New("demucs: no vocals stem produced")
	}
	return found, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

var _ Separator = (*CLI)(nil)
