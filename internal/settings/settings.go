package settings

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"mkvshrink/internal/services"
)

// Container is the only output container mkvshrink produces.
const Container = "matroska"

const (
	MinCRF = 0
	MaxCRF = 51
)

var (
	audioBitratePattern = regexp.MustCompile(`^[1-9][0-9]*k$`)
	maxBitratePattern   = regexp.MustCompile(`^([1-9][0-9]*)([kKmM])$`)
)

// Params is the plain, serializable form of Settings. Zero values mean
// "absent" for the optional fields (Width, Height, Filter, TargetSize,
// MaxBitrate).
type Params struct {
	VideoCodec   string `toml:"video_codec" json:"video_codec"`
	CRF          int    `toml:"crf" json:"crf"`
	Speed        string `toml:"preset" json:"preset"`
	AudioCodec   string `toml:"audio_codec" json:"audio_codec"`
	AudioBitrate string `toml:"audio_bitrate" json:"audio_bitrate"`
	Width        int    `toml:"width,omitempty" json:"width,omitempty"`
	Height       int    `toml:"height,omitempty" json:"height,omitempty"`
	Filter       string `toml:"filter,omitempty" json:"filter,omitempty"`
	TwoPass      bool   `toml:"two_pass" json:"two_pass"`
	TargetSize   string `toml:"target_size,omitempty" json:"target_size,omitempty"`
	MaxBitrate   string `toml:"max_bitrate,omitempty" json:"max_bitrate,omitempty"`
	Container    string `toml:"container_format,omitempty" json:"container_format,omitempty"`
}

// DefaultParams mirrors the Balanced preset.
func DefaultParams() Params {
	return Params{
		VideoCodec:   string(VideoH264),
		CRF:          23,
		Speed:        Medium.String(),
		AudioCodec:   string(AudioAAC),
		AudioBitrate: "128k",
		Container:    Container,
	}
}

// Settings is an immutable, validated description of one compression request.
// Construct it with New; the zero value is not valid.
type Settings struct {
	videoCodec   VideoCodec
	crf          int
	speed        SpeedPreset
	audioCodec   AudioCodec
	audioBitrate string
	width        int
	height       int
	filter       string
	twoPass      bool
	targetSize   string
	targetBytes  int64
	maxBitrate   string
	maxRateBits  int64
	valid        bool
}

// New validates p and returns the corresponding Settings. Every invariant
// violation is reported in a single error wrapping services.ErrInvalidSettings.
func New(p Params) (Settings, error) {
	var problems []string
	var s Settings

	vc, vcErr := ParseVideoCodec(p.VideoCodec)
	if vcErr != nil {
		problems = append(problems, "video_codec: "+vcErr.Error())
	}
	s.videoCodec = vc

	if p.CRF < MinCRF || p.CRF > MaxCRF {
		problems = append(problems, fmt.Sprintf("crf: %d outside [%d,%d]", p.CRF, MinCRF, MaxCRF))
	}
	s.crf = p.CRF

	speed, err := ParseSpeedPreset(p.Speed)
	if err != nil {
		problems = append(problems, "preset: "+err.Error())
	}
	s.speed = speed

	ac, err := ParseAudioCodec(p.AudioCodec)
	if err != nil {
		problems = append(problems, "audio_codec: "+err.Error())
	}
	s.audioCodec = ac

	s.audioBitrate = strings.TrimSpace(p.AudioBitrate)
	if ac != AudioCopy && !audioBitratePattern.MatchString(s.audioBitrate) {
		problems = append(problems, fmt.Sprintf("audio_bitrate: %q must look like 128k", p.AudioBitrate))
	}

	switch {
	case p.Width == 0 && p.Height == 0:
	case p.Width <= 0 || p.Height <= 0:
		problems = append(problems, fmt.Sprintf("width/height: both must be positive or both absent (got %dx%d)", p.Width, p.Height))
	}
	s.width, s.height = p.Width, p.Height
	s.filter = strings.TrimSpace(p.Filter)

	if vc == VideoCopy && (s.width > 0 || s.height > 0 || s.filter != "") {
		problems = append(problems, "video_codec: copy cannot be combined with scaling or filters")
	}

	s.twoPass = p.TwoPass
	if p.TwoPass && vcErr == nil && !vc.SupportsMultiPass() {
		problems = append(problems, fmt.Sprintf("two_pass: codec %s does not support multi-pass encoding", vc))
	}

	s.targetSize = strings.TrimSpace(p.TargetSize)
	if s.targetSize != "" {
		size, parseErr := humanize.ParseBytes(s.targetSize)
		if parseErr != nil || size == 0 || size > math.MaxInt64 {
			problems = append(problems, fmt.Sprintf("target_size: %q is not a size like 500MB", p.TargetSize))
		}
		s.targetBytes = int64(size)
	}

	s.maxBitrate = strings.TrimSpace(p.MaxBitrate)
	if s.maxBitrate != "" {
		bits, parseErr := parseBitrate(s.maxBitrate)
		if parseErr != nil {
			problems = append(problems, "max_bitrate: "+parseErr.Error())
		}
		s.maxRateBits = bits
	}

	if c := strings.TrimSpace(p.Container); c != "" && !strings.EqualFold(c, Container) && !strings.EqualFold(c, "mkv") {
		problems = append(problems, fmt.Sprintf("container_format: only %s is supported (got %q)", Container, p.Container))
	}

	if len(problems) > 0 {
		return Settings{}, services.Wrap(services.ErrInvalidSettings, "settings", "validate", strings.Join(problems, "; "), nil)
	}
	s.valid = true
	return s, nil
}

// MustNew is New for static values known to be valid; it panics otherwise.
func MustNew(p Params) Settings {
	s, err := New(p)
	if err != nil {
		panic(err)
	}
	return s
}

func parseBitrate(value string) (int64, error) {
	match := maxBitratePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("%q must look like 2000k or 4M", value)
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", value, err)
	}
	mult := int64(1000)
	if strings.EqualFold(match[2], "m") {
		mult = 1000 * 1000
	}
	if n > math.MaxInt64/mult {
		return 0, fmt.Errorf("%q is out of range", value)
	}
	return n * mult, nil
}

func (s Settings) Valid() bool { return s.valid }
func (s Settings) VideoCodec() VideoCodec { return s.videoCodec }
func (s Settings) CRF() int { return s.crf }
func (s Settings) Speed() SpeedPreset { return s.speed }
func (s Settings) AudioCodec() AudioCodec { return s.audioCodec }
func (s Settings) AudioBitrate() string { return s.audioBitrate }
func (s Settings) Width() int { return s.width }
func (s Settings) Height() int { return s.height }
func (s Settings) Filter() string { return s.filter }
func (s Settings) TwoPass() bool { return s.twoPass }
func (s Settings) TargetSize() string { return s.targetSize }
func (s Settings) TargetSizeBytes() int64 { return s.targetBytes }
func (s Settings) MaxBitrate() string { return s.maxBitrate }
func (s Settings) MaxBitrateBits() int64 { return s.maxRateBits }
func (s Settings) Container() string { return Container }
func (s Settings) HasResolution() bool { return s.width > 0 && s.height > 0 }

// AudioBitrateBits returns the audio bitrate in bits per second, or 0 for
// stream copy.
func (s Settings) AudioBitrateBits() int64 {
	if s.audioCodec == AudioCopy {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(s.audioBitrate, "k"), 10, 64)
	if err != nil {
		return 0
	}
	return n * 1000
}

// Params returns the plain form of s.
func (s Settings) Params() Params {
	return Params{
		VideoCodec:   string(s.videoCodec),
		CRF:          s.crf,
		Speed:        s.speed.String(),
		AudioCodec:   string(s.audioCodec),
		AudioBitrate: s.audioBitrate,
		Width:        s.width,
		Height:       s.height,
		Filter:       s.filter,
		TwoPass:      s.twoPass,
		TargetSize:   s.targetSize,
		MaxBitrate:   s.maxBitrate,
		Container:    Container,
	}
}

// With derives a new validated Settings from s. s itself is never modified.
func (s Settings) With(edit func(*Params)) (Settings, error) {
	p := s.Params()
	if edit != nil {
		edit(&p)
	}
	return New(p)
}

// String renders a compact one-line summary for logs and tables.
func (s Settings) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s crf=%d preset=%s audio=%s", s.videoCodec, s.crf, s.speed, s.audioCodec)
	if s.audioCodec != AudioCopy {
		fmt.Fprintf(&b, "@%s", s.audioBitrate)
	}
	if s.filter != "" {
		fmt.Fprintf(&b, " filter=%s", s.filter)
	} else if s.HasResolution() {
		fmt.Fprintf(&b, " scale=%dx%d", s.width, s.height)
	}
	if s.maxBitrate != "" {
		fmt.Fprintf(&b, " maxrate=%s", s.maxBitrate)
	}
	if s.targetSize != "" {
		fmt.Fprintf(&b, " target=%s", s.targetSize)
	}
	if s.twoPass {
		b.WriteString(" two-pass")
	}
	return b.String()
}

var mapKeys = []string{
	"video_codec", "crf", "preset", "audio_codec", "audio_bitrate", "width", "height",
	"filter", "two_pass", "target_size", "max_bitrate", "container_format",
}

// ToMap renders s as a plain key-value mapping.
func (s Settings) ToMap() map[string]any {
	p := s.Params()
	return map[string]any{
		"video_codec":      p.VideoCodec,
		"crf":              p.CRF,
		"preset":           p.Speed,
		"audio_codec":      p.AudioCodec,
		"audio_bitrate":    p.AudioBitrate,
		"width":            p.Width,
		"height":           p.Height,
		"filter":           p.Filter,
		"two_pass":         p.TwoPass,
		"target_size":      p.TargetSize,
		"max_bitrate":      p.MaxBitrate,
		"container_format": p.Container,
	}
}

// FromMap builds Settings from a key-value mapping. Keys missing from m keep
// their DefaultParams value; unknown keys are rejected, never merged.
func FromMap(m map[string]any) (Settings, error) {
	known := make(map[string]struct{}, len(mapKeys))
	for _, k := range mapKeys {
		known[k] = struct{}{}
	}
	var unknown []string
	for k := range m {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Settings{}, services.Wrap(services.ErrInvalidSettings, "settings", "decode", "unknown keys: "+strings.Join(unknown, ", "), nil)
	}

	p := DefaultParams()
	var problems []string
	str := func(key string, dst *string) {
		v, ok := m[key]
		if !ok || v == nil {
			return
		}
		sv, ok := v.(string)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: want string, got %T", key, v))
			return
		}
		*dst = sv
	}
	integer := func(key string, dst *int) {
		v, ok := m[key]
		if !ok || v == nil {
			return
		}
		n, ok := toInt(v)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: want integer, got %v", key, v))
			return
		}
		*dst = n
	}

	str("video_codec", &p.VideoCodec)
	integer("crf", &p.CRF)
	str("preset", &p.Speed)
	str("audio_codec", &p.AudioCodec)
	str("audio_bitrate", &p.AudioBitrate)
	integer("width", &p.Width)
	integer("height", &p.Height)
	str("filter", &p.Filter)
	str("target_size", &p.TargetSize)
	str("max_bitrate", &p.MaxBitrate)
	str("container_format", &p.Container)
	if v, ok := m["two_pass"]; ok && v != nil {
		b, isBool := v.(bool)
		if !isBool {
			problems = append(problems, fmt.Sprintf("two_pass: want bool, got %T", v))
		}
		p.TwoPass = b
	}
	if len(problems) > 0 {
		return Settings{}, services.Wrap(services.ErrInvalidSettings, "settings", "decode", strings.Join(problems, "; "), nil)
	}
	return New(p)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
