package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mkvshrink/internal/config"
	"mkvshrink/internal/logging"
	"mkvshrink/internal/settings"
)

type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
	logFile    string
}

type commandContext struct {
	flags *globalFlags

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		switch {
		case c.flags.verbose:
			cfg.Logging.Level = "debug"
		case c.flags.quiet:
			cfg.Logging.Level = "error"
		}
		if file := strings.TrimSpace(c.flags.logFile); file != "" {
			cfg.Logging.File = file
		}
		c.config, c.configPath, c.configExists = cfg, path, exists
	})
	return c.config, c.configErr
}

// loggerFor builds the process logger once. An interactive progress line
// shares stderr with the console handler, so info chatter is raised to warn
// there unless --verbose asked for it.
func (c *commandContext) loggerFor(stderr io.Writer) (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		effective := *cfg
		if isTerminal(stderr) && !c.flags.verbose && effective.Logging.Level == "info" {
			effective.Logging.Level = "warn"
		}
		c.logger, c.loggerErr = logging.NewFromConfig(&effective, stderr)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) presetStore() (*settings.PresetStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return settings.NewPresetStore(cfg.Paths.PresetsFile), nil
}

// presets returns built-in and user presets. A broken presets file is
// reported but does not hide the built-ins.
func (c *commandContext) presets(cmd *cobra.Command) ([]settings.Preset, error) {
	store, err := c.presetStore()
	if err != nil {
		return nil, err
	}
	all, err := store.All()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: ignoring user presets: %v\n", err)
	}
	return all, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
