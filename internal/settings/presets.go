package settings

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"mkvshrink/internal/services"
)

// Preset is a named parameter set.
type Preset struct {
	Name        string `toml:"name"`
	Description string `toml:"description,omitempty"`
	Params      Params `toml:"params"`
	BuiltIn     bool   `toml:"-"`
}

// Settings validates the preset parameters.
func (p Preset) Settings() (Settings, error) {
	return New(p.Params)
}

func builtin(name, description string, edit func(*Params)) Preset {
	params := DefaultParams()
	edit(&params)
	return Preset{Name: name, Description: description, Params: params, BuiltIn: true}
}

var builtinPresets = []Preset{
	builtin("High Quality", "Best quality, larger file size", func(p *Params) {
		p.CRF = 18
		p.Speed = Slow.String()
		p.AudioBitrate = "192k"
	}),
	builtin("Balanced", "Good balance of quality and file size", func(p *Params) {}),
	builtin("Small Size", "Smaller file size, reduced quality", func(p *Params) {
		p.CRF = 28
		p.Speed = Fast.String()
		p.AudioBitrate = "96k"
	}),
	builtin("Mobile", "Optimized for mobile devices", func(p *Params) {
		p.CRF = 26
		p.Speed = Fast.String()
		p.Width, p.Height = 1280, 720
		p.AudioBitrate = "96k"
	}),
	builtin("Web Optimized", "Optimized for web streaming", func(p *Params) {
		p.CRF = 24
		p.MaxBitrate = "2000k"
	}),
}

// DefaultPresetName is used when neither configuration nor flags pick one.
const DefaultPresetName = "Balanced"

// BuiltinPresets returns the built-in presets in display order.
func BuiltinPresets() []Preset {
	out := make([]Preset, len(builtinPresets))
	copy(out, builtinPresets)
	return out
}

var folder = cases.Fold()

// PresetKey normalizes a preset name for case-insensitive comparison.
func PresetKey(name string) string {
	return folder.String(strings.Join(strings.Fields(name), " "))
}

// FindPreset looks name up among presets, ignoring case and repeated spaces.
func FindPreset(presets []Preset, name string) (Preset, bool) {
	key := PresetKey(name)
	for _, p := range presets {
		if PresetKey(p.Name) == key {
			return p, true
		}
	}
	return Preset{}, false
}

// Overrides selectively replaces preset parameters. Nil fields keep the base
// value. Configuration files and command-line flags both decode into it.
type Overrides struct {
	VideoCodec   *string `toml:"video_codec"`
	CRF          *int    `toml:"crf"`
	Speed        *string `toml:"speed"`
	AudioCodec   *string `toml:"audio_codec"`
	AudioBitrate *string `toml:"audio_bitrate"`
	Resolution   *string `toml:"resolution"`
	Filter       *string `toml:"filter"`
	TwoPass      *bool   `toml:"two_pass"`
	TargetSize   *string `toml:"target_size"`
	MaxBitrate   *string `toml:"max_bitrate"`
}

// Apply returns base with every non-nil override applied.
func (o Overrides) Apply(base Params) (Params, error) {
	p := base
	if o.VideoCodec != nil {
		p.VideoCodec = *o.VideoCodec
	}
	if o.CRF != nil {
		p.CRF = *o.CRF
	}
	if o.Speed != nil {
		p.Speed = *o.Speed
	}
	if o.AudioCodec != nil {
		p.AudioCodec = *o.AudioCodec
	}
	if o.AudioBitrate != nil {
		p.AudioBitrate = *o.AudioBitrate
	}
	if o.Resolution != nil {
		w, h, err := ParseResolution(*o.Resolution)
		if err != nil {
			return Params{}, err
		}
		p.Width, p.Height = w, h
	}
	if o.Filter != nil {
		p.Filter = *o.Filter
	}
	if o.TwoPass != nil {
		p.TwoPass = *o.TwoPass
	}
	if o.TargetSize != nil {
		p.TargetSize = *o.TargetSize
	}
	if o.MaxBitrate != nil {
		p.MaxBitrate = *o.MaxBitrate
	}
	return p, nil
}

// Merge layers other on top of o; fields set in other win.
func (o Overrides) Merge(other Overrides) Overrides {
	out := o
	if other.VideoCodec != nil {
		out.VideoCodec = other.VideoCodec
	}
	if other.CRF != nil {
		out.CRF = other.CRF
	}
	if other.Speed != nil {
		out.Speed = other.Speed
	}
	if other.AudioCodec != nil {
		out.AudioCodec = other.AudioCodec
	}
	if other.AudioBitrate != nil {
		out.AudioBitrate = other.AudioBitrate
	}
	if other.Resolution != nil {
		out.Resolution = other.Resolution
	}
	if other.Filter != nil {
		out.Filter = other.Filter
	}
	if other.TwoPass != nil {
		out.TwoPass = other.TwoPass
	}
	if other.TargetSize != nil {
		out.TargetSize = other.TargetSize
	}
	if other.MaxBitrate != nil {
		out.MaxBitrate = other.MaxBitrate
	}
	return out
}

// ParseResolution parses "WxH". An empty string clears the resolution.
func ParseResolution(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(value), "x")
	if !ok {
		return 0, 0, services.Wrap(services.ErrInvalidSettings, "settings", "resolution", fmt.Sprintf("%q must look like 1280x720", value), nil)
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, services.Wrap(services.ErrInvalidSettings, "settings", "resolution", fmt.Sprintf("%q must look like 1280x720", value), nil)
	}
	return width, height, nil
}

// Resolve builds the final Settings from a preset and overrides.
func Resolve(presets []Preset, presetName string, overrides Overrides) (Settings, error) {
	if strings.TrimSpace(presetName) == "" {
		presetName = DefaultPresetName
	}
	preset, ok := FindPreset(presets, presetName)
	if !ok {
		return Settings{}, services.Wrap(services.ErrInvalidSettings, "settings", "preset", fmt.Sprintf("unknown preset %q", presetName), nil)
	}
	params, err := overrides.Apply(preset.Params)
	if err != nil {
		return Settings{}, err
	}
	return New(params)
}
