package main

import (
	"github.com/spf13/cobra"

	"mkvshrink/internal/settings"
)

// settingsFlags are the per-field overrides shared by compress, info and
// presets save.
type settingsFlags struct {
	preset       string
	videoCodec   string
	crf          int
	speed        string
	audioCodec   string
	audioBitrate string
	resolution   string
	filter       string
	twoPass      bool
	targetSize   string
	maxBitrate   string
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.preset, "preset", "p", "", "Preset name (built-in or saved)")
	fs.StringVar(&f.videoCodec, "video-codec", "", "Video codec: h264, h265, vp9, copy")
	fs.IntVar(&f.crf, "crf", 0, "Constant rate factor, 0-51 (lower is better)")
	fs.StringVar(&f.speed, "speed", "", "Encoder speed preset: ultrafast ... veryslow")
	fs.StringVar(&f.audioCodec, "audio-codec", "", "Audio codec: aac, mp3, vorbis, copy")
	fs.StringVar(&f.audioBitrate, "audio-bitrate", "", "Audio bitrate, e.g. 128k")
	fs.StringVar(&f.resolution, "resolution", "", "Output resolution WIDTHxHEIGHT")
	fs.StringVar(&f.filter, "filter", "", "Custom ffmpeg video filter (replaces scaling)")
	fs.BoolVar(&f.twoPass, "two-pass", false, "Run a statistics pass before encoding")
	fs.StringVar(&f.targetSize, "target-size", "", "Target output size, e.g. 700MB")
	fs.StringVar(&f.maxBitrate, "max-bitrate", "", "Maximum video bitrate, e.g. 2000k")
}

// overrides returns only the fields the user set explicitly.
func (f *settingsFlags) overrides(cmd *cobra.Command) settings.Overrides {
	fs := cmd.Flags()
	var o settings.Overrides
	if fs.Changed("video-codec") {
		o.VideoCodec = &f.videoCodec
	}
	if fs.Changed("crf") {
		o.CRF = &f.crf
	}
	if fs.Changed("speed") {
		o.Speed = &f.speed
	}
	if fs.Changed("audio-codec") {
		o.AudioCodec = &f.audioCodec
	}
	if fs.Changed("audio-bitrate") {
		o.AudioBitrate = &f.audioBitrate
	}
	if fs.Changed("resolution") {
		o.Resolution = &f.resolution
	}
	if fs.Changed("filter") {
		o.Filter = &f.filter
	}
	if fs.Changed("two-pass") {
		o.TwoPass = &f.twoPass
	}
	if fs.Changed("target-size") {
		o.TargetSize = &f.targetSize
	}
	if fs.Changed("max-bitrate") {
		o.MaxBitrate = &f.maxBitrate
	}
	return o
}

func (c *commandContext) resolveSettings(cmd *cobra.Command, f *settingsFlags) (settings.Settings, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return settings.Settings{}, err
	}
	presets, err := c.presets(cmd)
	if err != nil {
		return settings.Settings{}, err
	}
	return cfg.ResolveSettings(presets, f.preset, f.overrides(cmd))
}
