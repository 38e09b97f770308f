package config

const (
	defaultWorkDir              = "~/.local/share/lyrebird/work"
	defaultLogDir               = "~/.local/share/lyrebird/logs"
	defaultAPIBind              = "127.0.0.1:7846"
	defaultDownloaderBinary     = "yt-dlp"
	defaultSocketTimeout        = 30
	defaultDownloaderRetries    = 3
	defaultSeparationBinary     = "demucs"
	defaultSeparationModel      = "htdemucs"
	defaultSeparationMaxSeconds = 600
	defaultTranscriberBaseURL   = "https://api.openai.com/v1"
	defaultTranscriberModel     = "whisper-1"
	defaultTranscriberTimeout   = 300
	defaultAlignerUVXBinary     = "uvx"
	defaultAlignerModel         = "large-v3"
	defaultAlignerLanguage      = "en"
	defaultRemoteModel          = "large-v3"
	defaultRemoteTimeout        = 1800
	defaultStorageFolder        = "transcriptions"
	defaultStorageTimeout       = 120
	defaultNtfyTimeout          = 10
	defaultQueuePollInterval    = 5
	defaultErrorRetryInterval   = 10
	defaultProgressGraceSeconds = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Downloader: Downloader{
			Binary:        defaultDownloaderBinary,
			SocketTimeout: defaultSocketTimeout,
			Retries:       defaultDownloaderRetries,
		},
		Separation: Separation{
			Enabled:            true,
			Binary:             defaultSeparationBinary,
			Model:              defaultSeparationModel,
			MemoryConstrained:  true,
			MaxDurationSeconds: defaultSeparationMaxSeconds,
		},
		Transcriber: Transcriber{
			BaseURL:        defaultTranscriberBaseURL,
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		Aligner: Aligner{
			Enabled:   true,
			UVXBinary: defaultAlignerUVXBinary,
			Model:     defaultAlignerModel,
			Language:  defaultAlignerLanguage,
		},
		Remote: Remote{
			ModelPreference: defaultRemoteModel,
			TimeoutSeconds:  defaultRemoteTimeout,
		},
		Storage: Storage{
			Folder:         defaultStorageFolder,
			TimeoutSeconds: defaultStorageTimeout,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:    defaultQueuePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			ProgressGraceSeconds: defaultProgressGraceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
