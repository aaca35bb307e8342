package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEncoder(); err != nil {
		return err
	}
	c.normalizeCompression()
	c.normalizeBatch()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PresetsFile) == "" {
		c.Paths.PresetsFile = defaultPresetsFile
	}
	if c.Paths.PresetsFile, err = expandPath(c.Paths.PresetsFile); err != nil {
		return fmt.Errorf("paths.presets_file: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeEncoder() error {
	var err error
	if path := strings.TrimSpace(c.Encoder.FFmpegPath); path != "" && strings.ContainsAny(path, `/\~`) {
		if c.Encoder.FFmpegPath, err = expandPath(path); err != nil {
			return fmt.Errorf("encoder.ffmpeg_path: %w", err)
		}
	}
	if path := strings.TrimSpace(c.Encoder.FFprobePath); path != "" && strings.ContainsAny(path, `/\~`) {
		if c.Encoder.FFprobePath, err = expandPath(path); err != nil {
			return fmt.Errorf("encoder.ffprobe_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeCompression() {
	c.Compression.Preset = strings.Join(strings.Fields(c.Compression.Preset), " ")
}

func (c *Config) normalizeBatch() {
	if c.Batch.FirstPassShare == 0 {
		c.Batch.FirstPassShare = defaultFirstPassShare
	}
	c.Batch.OutputSuffix = strings.TrimSpace(c.Batch.OutputSuffix)
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
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}
