package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"

	"mkvshrink/internal/services"
	"mkvshrink/internal/settings"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	OutputDir   string `toml:"output_dir"`
	PresetsFile string `toml:"presets_file"`
}

// Encoder locates the ffmpeg tools and bounds how long a cancelled encode may
// take to exit.
type Encoder struct {
	FFmpegPath         string `toml:"ffmpeg_path"`
	FFprobePath        string `toml:"ffprobe_path"`
	CancelGraceSeconds int    `toml:"cancel_grace_seconds"`
}

// Compression selects the preset and optional per-field overrides applied on
// top of it.
type Compression struct {
	Preset string `toml:"preset"`
	settings.Overrides
}

// Batch contains dispatch and output policy.
type Batch struct {
	Concurrency            int     `toml:"concurrency"`
	ContinueOnError        bool    `toml:"continue_on_error"`
	Overwrite              bool    `toml:"overwrite"`
	SkipExisting           bool    `toml:"skip_existing"`
	DiscardPartialOnCancel bool    `toml:"discard_partial_on_cancel"`
	FirstPassShare         float64 `toml:"first_pass_share"`
	OutputSuffix           string  `toml:"output_suffix"`
}

// Validation contains output checks run after encoding.
type Validation struct {
	VerifyDuration           bool    `toml:"verify_duration"`
	DurationToleranceSeconds float64 `toml:"duration_tolerance_seconds"`
	MinFreeSpaceMB           int64   `toml:"min_free_space_mb"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// History controls the finished-entry log.
type History struct {
	Enabled    bool `toml:"enabled"`
	MaxEntries int  `toml:"max_entries"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	NotifyBatch    bool   `toml:"notify_batch"`
	NotifyFailures bool   `toml:"notify_failures"`
}

// Config encapsulates all configuration values for mkvshrink.
//
// Configuration is organized into sections:
//   - Paths: state, log and default output directories
//   - Encoder: ffmpeg/ffprobe locations and cancellation grace
//   - Compression: preset plus field overrides
//   - Batch: concurrency and failure policy
//   - Validation: output checks and disk-space preflight
//   - Logging: log format and level
//   - History: persisted batch entries
//   - Notifications: ntfy topic and toggles
type Config struct {
	Paths         Paths         `toml:"paths"`
	Encoder       Encoder       `toml:"encoder"`
	Compression   Compression   `toml:"compression"`
	Batch         Batch         `toml:"batch"`
	Validation    Validation    `toml:"validation"`
	Logging       Logging       `toml:"logging"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, fmt.Errorf("%w: %w", services.ErrConfiguration, err)
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mkvshrink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if path := strings.TrimSpace(c.Encoder.FFprobePath); path != "" {
		return path
	}
	return "ffprobe"
}

// CancelGrace is the SIGTERM to SIGKILL window for a cancelled encode.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.Encoder.CancelGraceSeconds) * time.Second
}

// DurationTolerance is the allowed output/input duration drift.
func (c *Config) DurationTolerance() time.Duration {
	return time.Duration(c.Validation.DurationToleranceSeconds * float64(time.Second))
}

// NotificationTimeout bounds one ntfy request.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// ResolveSettings builds the compression settings from the configured preset
// and overrides, with flags layered on top. An empty preset argument keeps the
// configured one.
func (c *Config) ResolveSettings(presets []settings.Preset, preset string, flags settings.Overrides) (settings.Settings, error) {
	if strings.TrimSpace(preset) == "" {
		preset = c.Compression.Preset
	}
	return settings.Resolve(presets, preset, c.Compression.Overrides.Merge(flags))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the commented sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
// The file is replaced atomically.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := renameio.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
