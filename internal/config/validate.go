package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/postbox/config.toml"
		}
		return fmt.Errorf("api.base_url is required. Set POSTBOX_API_URL env var or edit %s (create with 'postbox config init')", defaultPath)
	}
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("api.base_url must include a host")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.ProbeTimeout >= c.Sync.ProbeInterval {
		return fmt.Errorf("sync.probe_timeout (%d) must be shorter than sync.probe_interval (%d)", c.Sync.ProbeTimeout, c.Sync.ProbeInterval)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if strings.TrimSpace(c.Notifications.NtfyTopic) != "" {
		if _, err := url.Parse(c.Notifications.NtfyTopic); err != nil {
			return fmt.Errorf("notifications.ntfy_topic is not a valid URL: %w", err)
		}
	}
	return nil
}
