package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"

	"mkvshrink/internal/services"
)

type presetFile struct {
	Presets []Preset `toml:"preset"`
}

// PresetStore persists user-defined presets in a TOML file next to the
// configuration. Writes replace the file atomically.
type PresetStore struct {
	mu   sync.Mutex
	path string
}

// NewPresetStore returns a store backed by path. The file is created on the
// first Save.
func NewPresetStore(path string) *PresetStore {
	return &PresetStore{path: path}
}

// Path returns the backing file location.
func (s *PresetStore) Path() string {
	return s.path
}

// Load returns the user presets. A missing file yields no presets.
func (s *PresetStore) Load() ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *PresetStore) load() ([]Preset, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}

	var file presetFile
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, services.Wrap(services.ErrInvalidSettings, "presets", "decode", strict.String(), nil)
		}
		return nil, fmt.Errorf("parse presets %s: %w", s.path, err)
	}
	for i := range file.Presets {
		file.Presets[i].BuiltIn = false
		if _, err := file.Presets[i].Settings(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", file.Presets[i].Name, err)
		}
	}
	return file.Presets, nil
}

// All returns the built-in presets followed by the user presets.
func (s *PresetStore) All() ([]Preset, error) {
	user, err := s.Load()
	if err != nil {
		return BuiltinPresets(), err
	}
	return append(BuiltinPresets(), user...), nil
}

// Save validates p and stores it, replacing any user preset with the same
// name. Built-in names are reserved.
func (s *PresetStore) Save(p Preset) error {
	p.Name = strings.Join(strings.Fields(p.Name), " ")
	if p.Name == "" {
		return services.Wrap(services.ErrInvalidSettings, "presets", "save", "preset name is required", nil)
	}
	if _, ok := FindPreset(builtinPresets, p.Name); ok {
		return services.Wrap(services.ErrInvalidSettings, "presets", "save", fmt.Sprintf("%q is a built-in preset", p.Name), nil)
	}
	validated, err := p.Settings()
	if err != nil {
		return err
	}
	p.Params = validated.Params()
	p.BuiltIn = false

	s.mu.Lock()
	defer s.mu.Unlock()
	presets, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range presets {
		if PresetKey(presets[i].Name) == PresetKey(p.Name) {
			presets[i] = p
			replaced = true
		}
	}
	if !replaced {
		presets = append(presets, p)
	}
	return s.write(presets)
}

// Delete removes a user preset, reporting whether it existed.
func (s *PresetStore) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	presets, err := s.load()
	if err != nil {
		return false, err
	}
	key := PresetKey(name)
	kept := presets[:0]
	for _, p := range presets {
		if PresetKey(p.Name) != key {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(presets) {
		return false, nil
	}
	return true, s.write(kept)
}

func (s *PresetStore) write(presets []Preset) error {
	sort.SliceStable(presets, func(i, j int) bool {
		return PresetKey(presets[i].Name) < PresetKey(presets[j].Name)
	})
	data, err := toml.Marshal(presetFile{Presets: presets})
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create presets directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	return nil
}
