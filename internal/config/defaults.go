package config

const (
	defaultStateDir           = "~/.local/share/mkvshrink"
	defaultLogDir             = "~/.local/share/mkvshrink/logs"
	defaultPresetsFile        = "~/.config/mkvshrink/presets.toml"
	defaultConfigPath         = "~/.config/mkvshrink/config.toml"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultCancelGraceSeconds = 5
	defaultConcurrency        = 1
	defaultFirstPassShare     = 0.5
	defaultOutputSuffix       = "_compressed"
	defaultDurationTolerance  = 2.0
	defaultMinFreeSpaceMB     = 512
	defaultHistoryMaxEntries  = 100
	defaultRequestTimeout     = 10
	maxConcurrency            = 16
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			PresetsFile: defaultPresetsFile,
		},
		Encoder: Encoder{
			CancelGraceSeconds: defaultCancelGraceSeconds,
		},
		Batch: Batch{
			Concurrency:            defaultConcurrency,
			ContinueOnError:        true,
			DiscardPartialOnCancel: true,
			FirstPassShare:         defaultFirstPassShare,
			OutputSuffix:           defaultOutputSuffix,
		},
		Validation: Validation{
			DurationToleranceSeconds: defaultDurationTolerance,
			MinFreeSpaceMB:           defaultMinFreeSpaceMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		History: History{
			Enabled:    true,
			MaxEntries: defaultHistoryMaxEntries,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			NotifyBatch:    true,
			NotifyFailures: true,
		},
	}
}
