// Package ytdlp wraps the yt-dlp command line downloader behind a typed
// invocation contract: a fully specified request in, a structured result
// (exit code, output streams, discovered artifact path, media metadata) out.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ClientProfile selects the upstream client identity yt-dlp presents.
type ClientProfile string

const (
	ProfileWeb     ClientProfile = "web"
	ProfileAndroid ClientProfile = "android"
	ProfileIOS     ClientProfile = "ios"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Request describes one fully specified download invocation.
type Request struct {
	Reference      string
	OutputTemplate string
	Format         string
	AudioFormat    string
	CookieFile     string
	ClientProfile  ClientProfile
	SocketTimeout  time.Duration
	Retries        int
}

// Result is the structured outcome of a single invocation.
type Result struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	OutputPath string
	Title      string
	Duration   time.Duration
}

// Runner executes download requests; implemented by CLI and by test fakes.
type Runner interface {
	Download(ctx context.Context, req Request) (Result, error)
}

// Option configures the CLI runner.
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

// CLI wraps the yt-dlp executable.
type CLI struct {
	binary         string
	commandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewCLI constructs a CLI runner using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "yt-dlp", commandContext: exec.CommandContext}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Download runs yt-dlp for the request. A non-zero exit code is returned as
// an error alongside the structured result so callers can log both streams.
func (c *CLI) Download(ctx context.Context, req Request) (Result, error) {
	var result Result

	if strings.TrimSpace(req.Reference) == "" {
		return result, errors.New("ytdlp: reference required")
	}
	if strings.TrimSpace(req.OutputTemplate) == "" {
		return result, errors.New("ytdlp: output template required")
	}

	args := buildArgs(req)
	cmd := c.commandContext(ctx, c.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.ExitCode = exitCode(cmd, runErr)

	if title, duration, ok := parseInfoJSON(result.Stdout); ok {
		result.Title = title
		result.Duration = duration
	}
	result.OutputPath = discoverOutput(req.OutputTemplate)

	if runErr != nil {
		return result, fmt.Errorf("yt-dlp: %w: %s", runErr, lastLine(result.Stderr))
	}
	return result, nil
}

func buildArgs(req Request) []string {
	format := strings.TrimSpace(req.Format)
	if format == "" {
		format = "bestaudio/best"
	}
	audioFormat := strings.TrimSpace(req.AudioFormat)
	if audioFormat == "" {
		audioFormat = "wav"
	}
	socketTimeout := int(req.SocketTimeout / time.Second)
	if socketTimeout <= 0 {
		socketTimeout = 30
	}
	retries := req.Retries
	if retries <= 0 {
		retries = 3
	}

	args := []string{
		req.Reference,
		"-f", format,
		"--no-playlist",
		"-x",
		"--audio-format", audioFormat,
		"--audio-quality", "0",
		"-o", req.OutputTemplate,
		"--no-check-certificate",
		"--socket-timeout", strconv.Itoa(socketTimeout),
		"--retries", strconv.Itoa(retries),
		"--print-json",
		"--no-progress",
	}

	switch req.ClientProfile {
	case ProfileAndroid:
		args = append(args, "--extractor-args", "youtube:player_client=android")
	case ProfileIOS:
		args = append(args, "--extractor-args", "youtube:player_client=ios")
	default:
		args = append(args,
			"--user-agent", defaultUserAgent,
			"--referer", "https://www.youtube.com/",
			"--add-header", "Accept-Language:en-US,en;q=0.9",
		)
	}

	if req.CookieFile != "" {
		args = append(args, "--cookies", req.CookieFile)
	}
	return args
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		if cmd.ProcessState != nil {
			return cmd.ProcessState.ExitCode()
		}
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// parseInfoJSON extracts title and duration from the --print-json payload.
func parseInfoJSON(stdout string) (string, time.Duration, bool) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var payload struct {
			Title    string  `json:"title"`
			Duration float64 `json:"duration"`
		}
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}
		return payload.Title, time.Duration(payload.Duration * float64(time.Second)), true
	}
	return "", 0, false
}

// discoverOutput resolves the %(ext)s template against the filesystem and
// returns the first non-empty match.
func discoverOutput(template string) string {
	pattern := strings.ReplaceAll(template, "%(ext)s", "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return ""
	}
	for _, match := range matches {
		info, statErr := os.Stat(match)
		if statErr == nil && !info.IsDir() && info.Size() > 0 {
			return match
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

var _ Runner = (*CLI)(nil)
