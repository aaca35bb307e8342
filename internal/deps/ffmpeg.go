package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"mkvshrink/internal/services"
)

// validateTimeout bounds the -version probe.
const validateTimeout = 10 * time.Second

// commonLocations are searched after PATH.
var commonLocations = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/snap/bin",
}

// LocateFFmpeg returns the ffmpeg binary to use. A configured path wins; then
// PATH; then the usual install directories.
func LocateFFmpeg(configured string) (string, error) {
	return locate("ffmpeg", configured, commonLocations)
}

func locate(name, configured string, dirs []string) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		if resolved, err := exec.LookPath(configured); err == nil {
			return resolved, nil
		}
		return "", services.Wrap(services.ErrEncoderUnavailable, "deps", "locate "+name, fmt.Sprintf("configured binary %q not found or not executable", configured), nil)
	}
	if resolved, err := exec.LookPath(executableName(name)); err == nil {
		return resolved, nil
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, executableName(name))
		if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
			return candidate, nil
		}
	}
	return "", services.Wrap(services.ErrEncoderUnavailable, "deps", "locate "+name, fmt.Sprintf("binary %q not found", name), nil)
}

// Validate runs "<path> -version" and returns the first line of its output.
func Validate(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output() //nolint:gosec
	if err != nil {
		return "", services.Wrap(services.ErrEncoderUnavailable, "deps", "validate", fmt.Sprintf("%s -version failed", filepath.Base(path)), err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line, nil
		}
	}
	return "", services.Wrap(services.ErrEncoderUnavailable, "deps", "validate", fmt.Sprintf("%s -version printed nothing", filepath.Base(path)), nil)
}

// Locator resolves and validates ffmpeg once and caches the outcome.
type Locator struct {
	Configured string

	once    sync.Once
	path    string
	version string
	err     error
}

// NewLocator returns a Locator honouring a configured ffmpeg path.
func NewLocator(configured string) *Locator {
	return &Locator{Configured: configured}
}

// Locate returns the validated ffmpeg path. Failures wrap
// services.ErrEncoderUnavailable.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	l.once.Do(func() {
		path, err := LocateFFmpeg(l.Configured)
		if err != nil {
			l.err = err
			return
		}
		version, err := Validate(ctx, path)
		if err != nil {
			l.err = err
			return
		}
		l.path, l.version = path, version
	})
	return l.path, l.err
}

// Version returns the cached version line, empty before a successful Locate.
func (l *Locator) Version() string {
	return l.version
}

func executableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
