package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Downloader contains configuration for audio acquisition via yt-dlp.
type Downloader struct {
	Binary         string `toml:"binary"`
	Cookies        string `toml:"cookies"`
	StrategiesFile string `toml:"strategies_file"`
	SocketTimeout  int    `toml:"socket_timeout"`
	Retries        int    `toml:"retries"`
}

// Separation contains configuration for vocal isolation via demucs.
type Separation struct {
	Enabled            bool   `toml:"enabled"`
	Binary             string `toml:"binary"`
	Model              string `toml:"model"`
	MemoryConstrained  bool   `toml:"memory_constrained"`
	MaxDurationSeconds int    `toml:"max_duration_seconds"`
}

// Transcriber contains configuration for the speech-to-text HTTP service.
type Transcriber struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Aligner contains configuration for word-level timestamp alignment.
type Aligner struct {
	Enabled     bool   `toml:"enabled"`
	UVXBinary   string `toml:"uvx_binary"`
	Model       string `toml:"model"`
	Language    string `toml:"language"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
}

// Remote contains configuration for the remote accelerated processing tier.
type Remote struct {
	Endpoint        string `toml:"endpoint"`
	Token           string `toml:"token"`
	ModelPreference string `toml:"model_preference"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Storage contains configuration for the result storage collaborator.
type Storage struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	Folder         string `toml:"folder"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for push notifications on terminal
// job states.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Workflow contains configuration for poller timing and job lifecycle.
type Workflow struct {
	QueuePollInterval    int  `toml:"queue_poll_interval"`
	ErrorRetryInterval   int  `toml:"error_retry_interval"`
	ProgressGraceSeconds int  `toml:"progress_grace_seconds"`
	KeepWorkDirs         bool `toml:"keep_workdirs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lyrebird.
//
// Configuration sections by subsystem:
//   - Paths: working/log directories and API bind address
//   - Downloader: yt-dlp invocation and credential material
//   - Separation: demucs vocal isolation policy
//   - Transcriber: speech-to-text HTTP collaborator
//   - Aligner: WhisperX word alignment
//   - Remote: remote accelerated tier endpoint and credentials
//   - Storage: result upload collaborator
//   - Workflow: poll intervals, grace windows, workdir retention
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Downloader    Downloader    `toml:"downloader"`
	Separation    Separation    `toml:"separation"`
	Transcriber   Transcriber   `toml:"transcriber"`
	Aligner       Aligner       `toml:"aligner"`
	Remote        Remote        `toml:"remote"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lyrebird/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lyrebird.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RemoteConfigured reports whether the remote accelerated tier can be used.
func (c *Config) RemoteConfigured() bool {
	return strings.TrimSpace(c.Remote.Endpoint) != "" && strings.TrimSpace(c.Remote.Token) != ""
}

// FFprobeBinary returns the ffprobe executable name used for duration probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FFmpegBinary returns the ffmpeg executable name used for segment assembly.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
