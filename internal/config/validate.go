package config

import (
	"errors"
	"fmt"
	"strings"

	"mkvshrink/internal/settings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoder(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.CancelGraceSeconds <= 0 {
		return errors.New("encoder.cancel_grace_seconds must be positive")
	}
	return nil
}

// validateCompression checks the overrides against the built-in preset they
// name. User presets are only known once the presets file is read, so they
// are checked when settings are resolved.
func (c *Config) validateCompression() error {
	name := c.Compression.Preset
	if name == "" {
		name = settings.DefaultPresetName
	}
	if _, ok := settings.FindPreset(settings.BuiltinPresets(), name); !ok {
		return nil
	}
	if _, err := settings.Resolve(settings.BuiltinPresets(), name, c.Compression.Overrides); err != nil {
		return fmt.Errorf("compression: %w", err)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > maxConcurrency {
		return fmt.Errorf("batch.concurrency must be between 1 and %d", maxConcurrency)
	}
	if c.Batch.FirstPassShare <= 0 || c.Batch.FirstPassShare >= 1 {
		return errors.New("batch.first_pass_share must be between 0 and 1 (exclusive)")
	}
	if strings.ContainsAny(c.Batch.OutputSuffix, `/\`) {
		return errors.New("batch.output_suffix must not contain path separators")
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.DurationToleranceSeconds < 0 {
		return errors.New("validation.duration_tolerance_seconds must be zero or positive")
	}
	if c.Validation.MinFreeSpaceMB < 0 {
		return errors.New("validation.min_free_space_mb must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Enabled && c.History.MaxEntries <= 0 {
		return errors.New("history.max_entries must be positive when history.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
