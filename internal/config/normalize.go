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
	c.normalizeAPI()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.Socket) != "" {
		if c.Paths.Socket, err = expandPath(c.Paths.Socket); err != nil {
			return fmt.Errorf("paths.socket: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if c.API.BaseURL == "" {
		if value, ok := os.LookupEnv("POSTBOX_API_URL"); ok {
			c.API.BaseURL = value
		}
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("POSTBOX_API_TOKEN"); ok {
			c.API.Token = value
		}
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.API.HealthPath = strings.TrimSpace(c.API.HealthPath)
	if c.API.HealthPath == "" {
		c.API.HealthPath = defaultHealthPath
	}
	if !strings.HasPrefix(c.API.HealthPath, "/") {
		c.API.HealthPath = "/" + c.API.HealthPath
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = defaultRequestTimeout
	}
	if c.API.UploadTimeout <= 0 {
		c.API.UploadTimeout = defaultUploadTimeout
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.SyncInterval <= 0 {
		c.Sync.SyncInterval = defaultSyncInterval
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = defaultProbeInterval
	}
	if c.Sync.ProbeTimeout <= 0 {
		c.Sync.ProbeTimeout = defaultProbeTimeout
	}
	if c.Sync.DebounceSeconds < 0 {
		c.Sync.DebounceSeconds = defaultDebounceSeconds
	}
	if c.Sync.MaxAttempts < 0 {
		c.Sync.MaxAttempts = 0
	}
	if c.Sync.PruneAgeDays < 0 {
		c.Sync.PruneAgeDays = 0
	}
	if c.Sync.MinFreeMB < 0 {
		c.Sync.MinFreeMB = 0
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
