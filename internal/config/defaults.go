package config

const (
	defaultDataDir         = "~/.local/share/postbox"
	defaultLogDir          = "~/.local/share/postbox/logs"
	defaultHealthPath      = "/health"
	defaultRequestTimeout  = 30
	defaultUploadTimeout   = 120
	defaultSyncInterval    = 15
	defaultProbeInterval   = 10
	defaultProbeTimeout    = 5
	defaultDebounceSeconds = 5
	defaultPruneAgeDays    = 7
	defaultMinFreeMB       = 32
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultNtfyTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			HealthPath:     defaultHealthPath,
			RequestTimeout: defaultRequestTimeout,
			UploadTimeout:  defaultUploadTimeout,
		},
		Sync: Sync{
			SyncInterval:    defaultSyncInterval,
			ProbeInterval:   defaultProbeInterval,
			ProbeTimeout:    defaultProbeTimeout,
			DebounceSeconds: defaultDebounceSeconds,
			PruneAgeDays:    defaultPruneAgeDays,
			MinFreeMB:       defaultMinFreeMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Sync:           true,
			Flagged:        true,
			Errors:         true,
		},
	}
}
