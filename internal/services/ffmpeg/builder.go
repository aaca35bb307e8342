package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"mkvshrink/internal/services"
	"mkvshrink/internal/settings"
)

// minDerivedBitrate floors the video rate derived from a target size.
const minDerivedBitrate = 100_000

// BuildRequest describes one compression to translate into ffmpeg arguments.
type BuildRequest struct {
	Input    string
	Output   string
	Settings settings.Settings
	// PassLogPrefix is the two-pass statistics prefix. Defaults to
	// "<Output>.passlog".
	PassLogPrefix string
	// DurationSeconds is the probed input duration, used to derive a rate
	// from a target size. Zero when unknown.
	DurationSeconds float64
}

// Pass is one ffmpeg run.
type Pass struct {
	Number int
	Args   []string
	// DiscardsOutput is set for the statistics pass, which writes no media.
	DiscardsOutput bool
}

// Invocation is the ordered list of ffmpeg runs for one job.
type Invocation struct {
	Passes        []Pass
	PassLogPrefix string
}

// TwoPass reports whether the invocation runs a statistics pass.
func (inv Invocation) TwoPass() bool {
	return len(inv.Passes) > 1
}

// CommandLine renders every pass as a shell-quoted line for previews.
func (inv Invocation) CommandLine(binary string) string {
	lines := make([]string, 0, len(inv.Passes))
	for _, pass := range inv.Passes {
		parts := make([]string, 0, len(pass.Args)+1)
		parts = append(parts, shellQuote(binary))
		for _, arg := range pass.Args {
			parts = append(parts, shellQuote(arg))
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return strings.Join(lines, " && \\\n  ")
}

// BuildInvocation maps a request onto ffmpeg argument vectors. Settings are
// trusted to be valid; only the paths are checked here.
func BuildInvocation(req BuildRequest) (Invocation, error) {
	input := strings.TrimSpace(req.Input)
	output := strings.TrimSpace(req.Output)
	if input == "" || output == "" {
		return Invocation{}, services.Wrap(services.ErrInvalidSettings, "ffmpeg", "build", "input and output paths are required", nil)
	}
	if !req.Settings.Valid() {
		return Invocation{}, services.Wrap(services.ErrInvalidSettings, "ffmpeg", "build", "settings were not constructed with settings.New", nil)
	}
	s := req.Settings

	if !s.TwoPass() {
		return Invocation{Passes: []Pass{{
			Number: 1,
			Args:   buildArgs(req, s, 0, ""),
		}}}, nil
	}

	prefix := strings.TrimSpace(req.PassLogPrefix)
	if prefix == "" {
		prefix = output + ".passlog"
	}
	return Invocation{
		PassLogPrefix: prefix,
		Passes: []Pass{
			{Number: 1, Args: buildArgs(req, s, 1, prefix), DiscardsOutput: true},
			{Number: 2, Args: buildArgs(req, s, 2, prefix)},
		},
	}, nil
}

func buildArgs(req BuildRequest, s settings.Settings, pass int, prefix string) []string {
	args := make([]string, 0, 40)

	// Output collisions are settled by the path resolver before this point.
	args = append(args, "-hide_banner", "-nostdin", "-y", "-i", req.Input)
	args = append(args, "-map", "0:v:0")
	if pass != 1 {
		args = append(args, "-map", "0:a?")
	}

	args = append(args, "-c:v", s.VideoCodec().Encoder())
	if s.VideoCodec() != settings.VideoCopy {
		rate := videoBitrate(s, req.DurationSeconds)
		args = appendQuality(args, s, pass, rate)
		args = appendPassOptions(args, s, pass, prefix)
		if rate > 0 {
			args = append(args, "-maxrate", formatRate(rate), "-bufsize", formatRate(2*rate))
		}
		if filter := s.Filter(); filter != "" {
			args = append(args, "-vf", filter)
		} else if s.HasResolution() {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", s.Width(), s.Height()))
		}
	}

	if pass == 1 {
		return append(args, "-an", "-f", "null", "-")
	}

	args = append(args, "-c:a", s.AudioCodec().Encoder())
	if s.AudioCodec() != settings.AudioCopy {
		args = append(args, "-b:a", s.AudioBitrate())
	}
	return append(args, "-f", settings.Container, req.Output)
}

// appendQuality emits the rate control flags. Two-pass runs with a derivable
// bitrate target that bitrate, since x264 and x265 ignore CRF statistics.
func appendQuality(args []string, s settings.Settings, pass int, rate int64) []string {
	crf := strconv.Itoa(s.CRF())
	bitrateMode := pass > 0 && rate > 0
	switch s.VideoCodec() {
	case settings.VideoVP9:
		if bitrateMode {
			args = append(args, "-b:v", formatRate(rate))
		} else {
			args = append(args, "-crf", crf, "-b:v", "0")
		}
		return append(args, "-deadline", "good", "-cpu-used", strconv.Itoa(s.Speed().VP9CPUUsed()))
	default:
		if bitrateMode {
			args = append(args, "-b:v", formatRate(rate))
		} else {
			args = append(args, "-crf", crf)
		}
		return append(args, "-preset", s.Speed().String())
	}
}

func appendPassOptions(args []string, s settings.Settings, pass int, prefix string) []string {
	if pass == 0 {
		return args
	}
	if s.VideoCodec() == settings.VideoH265 {
		return append(args, "-x265-params", fmt.Sprintf("pass=%d:stats=%s.log", pass, prefix))
	}
	return append(args, "-pass", strconv.Itoa(pass), "-passlogfile", prefix)
}

// videoBitrate returns the rate limit in bits per second, or 0 when none
// applies. An explicit max bitrate wins over a target size.
func videoBitrate(s settings.Settings, duration float64) int64 {
	if rate := s.MaxBitrateBits(); rate > 0 {
		return rate
	}
	target := s.TargetSizeBytes()
	if target <= 0 || duration <= 0 {
		return 0
	}
	rate := int64(float64(target)*8/duration) - s.AudioBitrateBits()
	if rate < minDerivedBitrate {
		rate = minDerivedBitrate
	}
	return rate
}

// formatRate renders bits per second in ffmpeg's k/M notation.
func formatRate(bits int64) string {
	switch {
	case bits%1_000_000 == 0:
		return strconv.FormatInt(bits/1_000_000, 10) + "M"
	case bits%1000 == 0:
		return strconv.FormatInt(bits/1000, 10) + "k"
	default:
		return strconv.FormatInt(bits, 10)
	}
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	safe := true
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=,+%@", r)) {
			safe = false
			break
		}
	}
	if safe {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
