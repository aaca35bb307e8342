package settings

import (
	"fmt"
	"strings"
)

// VideoCodec enumerates the video encoders mkvshrink can drive.
type VideoCodec string

const (
	VideoH264 VideoCodec = "h264"
	VideoH265 VideoCodec = "h265"
	VideoVP9  VideoCodec = "vp9"
	VideoCopy VideoCodec = "copy"
)

var videoAliases = map[string]VideoCodec{
	"h264":       VideoH264,
	"x264":       VideoH264,
	"libx264":    VideoH264,
	"avc":        VideoH264,
	"h265":       VideoH265,
	"x265":       VideoH265,
	"libx265":    VideoH265,
	"hevc":       VideoH265,
	"vp9":        VideoVP9,
	"libvpx-vp9": VideoVP9,
	"copy":       VideoCopy,
}

// ParseVideoCodec accepts the canonical names and the ffmpeg encoder names.
func ParseVideoCodec(value string) (VideoCodec, error) {
	if codec, ok := videoAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return codec, nil
	}
	return "", fmt.Errorf("unknown video codec %q (want h264, h265, vp9, or copy)", value)
}

// Encoder returns the ffmpeg encoder name passed to -c:v.
func (c VideoCodec) Encoder() string {
	switch c {
	case VideoH265:
		return "libx265"
	case VideoVP9:
		return "libvpx-vp9"
	case VideoCopy:
		return "copy"
	default:
		return "libx264"
	}
}

// SupportsMultiPass reports whether the codec can run a statistics pass.
func (c VideoCodec) SupportsMultiPass() bool {
	switch c {
	case VideoH264, VideoH265, VideoVP9:
		return true
	default:
		return false
	}
}

// AudioCodec enumerates the audio encoders mkvshrink can drive.
type AudioCodec string

const (
	AudioAAC    AudioCodec = "aac"
	AudioMP3    AudioCodec = "mp3"
	AudioVorbis AudioCodec = "vorbis"
	AudioCopy   AudioCodec = "copy"
)

var audioAliases = map[string]AudioCodec{
	"aac":        AudioAAC,
	"mp3":        AudioMP3,
	"libmp3lame": AudioMP3,
	"vorbis":     AudioVorbis,
	"libvorbis":  AudioVorbis,
	"copy":       AudioCopy,
}

// ParseAudioCodec accepts the canonical names and the ffmpeg encoder names.
func ParseAudioCodec(value string) (AudioCodec, error) {
	if codec, ok := audioAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return codec, nil
	}
	return "", fmt.Errorf("unknown audio codec %q (want aac, mp3, vorbis, or copy)", value)
}

// Encoder returns the ffmpeg encoder name passed to -c:a.
func (c AudioCodec) Encoder() string {
	switch c {
	case AudioMP3:
		return "libmp3lame"
	case AudioVorbis:
		return "libvorbis"
	case AudioCopy:
		return "copy"
	default:
		return "aac"
	}
}

// SpeedPreset is the encoder speed/efficiency trade-off, ordered from fastest
// to slowest.
type SpeedPreset int

const (
	Ultrafast SpeedPreset = iota
	Superfast
	Veryfast
	Faster
	Fast
	Medium
	Slow
	Slower
	Veryslow
)

var speedNames = [...]string{
	"ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow",
}

// SpeedPresets lists every preset in order.
func SpeedPresets() []SpeedPreset {
	out := make([]SpeedPreset, len(speedNames))
	for i := range speedNames {
		out[i] = SpeedPreset(i)
	}
	return out
}

// ParseSpeedPreset resolves a preset name.
func ParseSpeedPreset(value string) (SpeedPreset, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for i, name := range speedNames {
		if name == value {
			return SpeedPreset(i), nil
		}
	}
	return 0, fmt.Errorf("unknown speed preset %q (want one of %s)", value, strings.Join(speedNames[:], ", "))
}

func (p SpeedPreset) String() string {
	if p < 0 || int(p) >= len(speedNames) {
		return fmt.Sprintf("SpeedPreset(%d)", int(p))
	}
	return speedNames[p]
}

// VP9CPUUsed maps the preset onto libvpx's -cpu-used scale (0 slowest, 5 fastest).
func (p SpeedPreset) VP9CPUUsed() int {
	switch p {
	case Ultrafast, Superfast:
		return 5
	case Veryfast:
		return 4
	case Faster, Fast:
		return 3
	case Medium:
		return 2
	case Slow, Slower:
		return 1
	default:
		return 0
	}
}
