package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscriber() error {
	if c.Transcriber.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/lyrebird/config.toml"
		}
		return fmt.Errorf("transcriber.api_key is required. Set TRANSCRIBER_API_KEY env var or edit %s (create with 'lyrebird config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateRemote() error {
	// Remote tier is optional, but a half-configured one is an operator mistake.
	endpoint := strings.TrimSpace(c.Remote.Endpoint)
	token := strings.TrimSpace(c.Remote.Token)
	if endpoint != "" && token == "" {
		return errors.New("remote.token is required when remote.endpoint is set")
	}
	if endpoint == "" && token != "" {
		return errors.New("remote.endpoint is required when remote.token is set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Endpoint) != "" && strings.TrimSpace(c.Storage.APIKey) == "" {
		return errors.New("storage.api_key is required when storage.endpoint is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
