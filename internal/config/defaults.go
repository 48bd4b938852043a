package config

const (
	defaultConfigPath          = "~/.config/buildd/config.toml"
	defaultStateDir            = "~/.local/share/buildd"
	defaultLogDir              = "~/.local/share/buildd/logs"
	defaultPollIntervalSeconds = 10
	defaultCheckTimeoutSeconds = 5
	defaultConsecutiveTriggers = 1
	defaultMinFreeFraction     = 0.05
	defaultMinThresholdBytes   = 384 * 1024 * 1024
	defaultMaxThresholdBytes   = 1024 * 1024 * 1024
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Cache: Cache{
			Dir: defaultCacheDir(),
		},
		Expiration: Expiration{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			CheckTimeoutSeconds: defaultCheckTimeoutSeconds,
			ConsecutiveTriggers: defaultConsecutiveTriggers,
			Memory: MemoryCheck{
				Enabled:           true,
				MinFreeFraction:   defaultMinFreeFraction,
				MinThresholdBytes: defaultMinThresholdBytes,
				MaxThresholdBytes: defaultMaxThresholdBytes,
			},
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
