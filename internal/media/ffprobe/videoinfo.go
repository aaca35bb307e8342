package ffprobe

import "fmt"

// VideoInfo is a read-only snapshot of a probed input.
type VideoInfo struct {
	Filename string `json:"filename"`
	// Duration in seconds, 0 when unknown.
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	Container  string  `json:"container"`
	VideoCodec string  `json:"video_codec"`
	// AudioCodec is "none" for inputs without audio.
	AudioCodec string `json:"audio_codec"`
	BitRate    int64  `json:"bit_rate"`
	Size       int64  `json:"size"`
}

// Resolution renders WxH, or "unknown".
func (v VideoInfo) Resolution() string {
	if v.Width <= 0 || v.Height <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// SizeMB returns the size in mebibytes.
func (v VideoInfo) SizeMB() float64 {
	return float64(v.Size) / (1024 * 1024)
}
