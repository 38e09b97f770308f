package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDownloader(); err != nil {
		return err
	}
	c.normalizeSeparation()
	c.normalizeTranscriber()
	c.normalizeAligner()
	c.normalizeRemote()
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeDownloader() error {
	c.Downloader.Binary = strings.TrimSpace(c.Downloader.Binary)
	if c.Downloader.Binary == "" {
		c.Downloader.Binary = defaultDownloaderBinary
	}
	if c.Downloader.Cookies == "" {
		if value, ok := os.LookupEnv("YTDLP_COOKIES"); ok {
			c.Downloader.Cookies = value
		}
	}
	if c.Downloader.StrategiesFile != "" {
		expanded, err := expandPath(c.Downloader.StrategiesFile)
		if err != nil {
			return fmt.Errorf("downloader.strategies_file: %w", err)
		}
		c.Downloader.StrategiesFile = expanded
	}
	if c.Downloader.SocketTimeout <= 0 {
		c.Downloader.SocketTimeout = defaultSocketTimeout
	}
	if c.Downloader.Retries <= 0 {
		c.Downloader.Retries = defaultDownloaderRetries
	}
	return nil
}

func (c *Config) normalizeSeparation() {
	c.Separation.Binary = strings.TrimSpace(c.Separation.Binary)
	if c.Separation.Binary == "" {
		c.Separation.Binary = defaultSeparationBinary
	}
	c.Separation.Model = strings.TrimSpace(c.Separation.Model)
	if c.Separation.Model == "" {
		c.Separation.Model = defaultSeparationModel
	}
	if c.Separation.MaxDurationSeconds <= 0 {
		c.Separation.MaxDurationSeconds = defaultSeparationMaxSeconds
	}
}

func (c *Config) normalizeTranscriber() {
	c.Transcriber.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcriber.BaseURL), "/")
	if c.Transcriber.BaseURL == "" {
		c.Transcriber.BaseURL = defaultTranscriberBaseURL
	}
	if c.Transcriber.APIKey == "" {
		if value, ok := os.LookupEnv("TRANSCRIBER_API_KEY"); ok {
			c.Transcriber.APIKey = value
		}
	}
	c.Transcriber.Model = strings.TrimSpace(c.Transcriber.Model)
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = defaultTranscriberModel
	}
	if c.Transcriber.TimeoutSeconds <= 0 {
		c.Transcriber.TimeoutSeconds = defaultTranscriberTimeout
	}
}

func (c *Config) normalizeAligner() {
	c.Aligner.UVXBinary = strings.TrimSpace(c.Aligner.UVXBinary)
	if c.Aligner.UVXBinary == "" {
		c.Aligner.UVXBinary = defaultAlignerUVXBinary
	}
	c.Aligner.Model = strings.TrimSpace(c.Aligner.Model)
	if c.Aligner.Model == "" {
		c.Aligner.Model = defaultAlignerModel
	}
	c.Aligner.Language = strings.TrimSpace(c.Aligner.Language)
	if c.Aligner.Language == "" {
		c.Aligner.Language = defaultAlignerLanguage
	}
}

func (c *Config) normalizeRemote() {
	c.Remote.Endpoint = strings.TrimRight(strings.TrimSpace(c.Remote.Endpoint), "/")
	if c.Remote.Token == "" {
		if value, ok := os.LookupEnv("REMOTE_TIER_TOKEN"); ok {
			c.Remote.Token = value
		}
	}
	c.Remote.ModelPreference = strings.TrimSpace(c.Remote.ModelPreference)
	if c.Remote.ModelPreference == "" {
		c.Remote.ModelPreference = defaultRemoteModel
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = defaultRemoteTimeout
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(c.Storage.Endpoint), "/")
	if c.Storage.APIKey == "" {
		if value, ok := os.LookupEnv("STORAGE_API_KEY"); ok {
			c.Storage.APIKey = value
		}
	}
	c.Storage.Folder = strings.Trim(strings.TrimSpace(c.Storage.Folder), "/")
	if c.Storage.Folder == "" {
		c.Storage.Folder = defaultStorageFolder
	}
	if c.Storage.TimeoutSeconds <= 0 {
		c.Storage.TimeoutSeconds = defaultStorageTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.ProgressGraceSeconds < 0 {
		c.Workflow.ProgressGraceSeconds = defaultProgressGraceSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
