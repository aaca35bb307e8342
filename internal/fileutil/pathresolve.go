package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mkvshrink/internal/services"
)

// maxProbeAttempts bounds the " (n)" search.
const maxProbeAttempts = 10000

// ExistsFunc reports whether something occupies path.
type ExistsFunc func(path string) (bool, error)

// OSExists checks the local filesystem without following a final symlink.
func OSExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// PathResolver picks output paths that do not clobber existing files or
// each other. Resolve is stateless; Claim and Reserve remember what has
// already been taken until the resolver is dropped. All methods are
// goroutine-safe.
type PathResolver struct {
	mu      sync.Mutex
	exists  ExistsFunc
	claimed map[string]struct{}
}

// NewPathResolver returns a resolver backed by exists, or OSExists when nil.
func NewPathResolver(exists ExistsFunc) *PathResolver {
	if exists == nil {
		exists = OSExists
	}
	return &PathResolver{exists: exists, claimed: make(map[string]struct{})}
}

// Resolve returns requested when overwrite is set or nothing exists there;
// otherwise the first free "name (n).ext" sibling.
func (r *PathResolver) Resolve(requested string, overwrite bool) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return "", services.Wrap(services.ErrValidation, "paths", "resolve", "output path is empty", nil)
	}
	if overwrite {
		return requested, nil
	}
	return r.probe(requested, func(candidate string) (bool, error) {
		return r.exists(candidate)
	})
}

// Claim is Resolve for batches: paths claimed or reserved earlier count as
// taken even with overwrite set, and the result is recorded.
func (r *PathResolver) Claim(requested string, overwrite bool) (string, error) {
	if strings.TrimSpace(requested) == "" {
		return "", services.Wrap(services.ErrValidation, "paths", "claim", "output path is empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := func(candidate string) (bool, error) {
		if _, ok := r.claimed[key(candidate)]; ok {
			return true, nil
		}
		if overwrite {
			return false, nil
		}
		return r.exists(candidate)
	}
	final, err := r.probe(requested, taken)
	if err != nil {
		return "", err
	}
	r.claimed[key(final)] = struct{}{}
	return final, nil
}

// Reserve marks paths as taken without resolving them, so batch outputs never
// land on batch inputs.
func (r *PathResolver) Reserve(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			r.claimed[key(p)] = struct{}{}
		}
	}
}

// Scope returns an empty resolver over the same existence check. Each batch
// claims through its own scope so nothing it took outlives it.
func (r *PathResolver) Scope() *PathResolver {
	return NewPathResolver(r.exists)
}

func (r *PathResolver) probe(requested string, taken func(string) (bool, error)) (string, error) {
	busy, err := taken(requested)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", requested, err)
	}
	if !busy {
		return requested, nil
	}

	dir := filepath.Dir(requested)
	base := filepath.Base(requested)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; n <= maxProbeAttempts; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		busy, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", candidate, err)
		}
		if !busy {
			return candidate, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "paths", "resolve", fmt.Sprintf("no free name for %s after %d attempts", requested, maxProbeAttempts), nil)
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
