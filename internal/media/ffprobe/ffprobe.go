package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"mkvshrink/internal/services"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename       string `json:"filename"`
	NBStreams      int    `json:"nb_streams"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	BitRate        string `json:"bit_rate"`
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

func (r Result) countStreams(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

func (r Result) firstStream(kind string) (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (r Result) BitRate() int64 {
	rate := parseFloat(r.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// VideoInfo condenses the result into the snapshot the encoder needs. A
// result without a video stream is rejected.
func (r Result) VideoInfo() (VideoInfo, error) {
	video, ok := r.firstStream("video")
	if !ok {
		return VideoInfo{}, services.Wrap(services.ErrProbeFailure, "probe", "video info", "no video stream found", nil)
	}

	duration := r.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		duration = parseFloat(video.Duration)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		duration = 0
	}

	frameRate := ParseFrameRate(video.RFrameRate)
	if frameRate == 0 {
		frameRate = ParseFrameRate(video.AvgFrameRate)
	}

	audio := "none"
	if stream, ok := r.firstStream("audio"); ok && stream.CodecName != "" {
		audio = stream.CodecName
	}

	return VideoInfo{
		Filename:   r.Format.Filename,
		Duration:   duration,
		Width:      video.Width,
		Height:     video.Height,
		FrameRate:  frameRate,
		Container:  r.Format.FormatName,
		VideoCodec: video.CodecName,
		AudioCodec: audio,
		BitRate:    r.BitRate(),
		Size:       r.SizeBytes(),
	}, nil
}

// ParseFrameRate parses ffprobe's "num/den" rational. Malformed or zero
// denominators give 0.
func ParseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 || math.IsInf(n, 0) {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

// Prober resolves VideoInfo for input files through an ffprobe binary.
type Prober struct {
	Binary string
}

// Probe checks that path is a readable regular file and inspects it. Every
// failure wraps services.ErrProbeFailure.
func (p Prober) Probe(ctx context.Context, path string) (VideoInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return VideoInfo{}, services.Wrap(services.ErrProbeFailure, "probe", "stat", "input file not found", err)
		}
		return VideoInfo{}, services.Wrap(services.ErrProbeFailure, "probe", "stat", "input file unreadable", err)
	}
	if !info.Mode().IsRegular() {
		return VideoInfo{}, services.Wrap(services.ErrProbeFailure, "probe", "stat", "input is not a regular file", nil)
	}

	result, err := Inspect(ctx, p.Binary, path)
	if err != nil {
		return VideoInfo{}, services.Wrap(services.ErrProbeFailure, "probe", "inspect", "not a recognized media file", err)
	}
	video, err := result.VideoInfo()
	if err != nil {
		return VideoInfo{}, err
	}
	if video.Size <= 0 {
		video.Size = info.Size()
	}
	if video.Filename == "" {
		video.Filename = filepath.Base(path)
	}
	return video, nil
}
