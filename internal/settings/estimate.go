package settings

import "math"

// EstimateOutputSize guesses the compressed size of an input of inputSize
// bytes at srcWidth x srcHeight with duration seconds. The heuristic buckets
// the CRF, scales by the pixel ratio when resizing, and caps the result at
// the configured maximum bitrate. Stream copy returns inputSize.
func EstimateOutputSize(s Settings, inputSize int64, srcWidth, srcHeight int, duration float64) int64 {
	if inputSize <= 0 {
		return 0
	}
	if s.VideoCodec() == VideoCopy {
		return inputSize
	}

	var factor float64
	switch crf := s.CRF(); {
	case crf <= 18:
		factor = 0.8
	case crf <= 23:
		factor = 0.6
	case crf <= 28:
		factor = 0.4
	default:
		factor = 0.3
	}

	if s.HasResolution() && srcWidth > 0 && srcHeight > 0 {
		scale := float64(s.Width()*s.Height()) / float64(srcWidth*srcHeight)
		factor *= math.Min(scale, 1)
	}

	estimate := float64(inputSize) * factor
	if rate := s.MaxBitrateBits(); rate > 0 && duration > 0 {
		capped := (float64(rate) + float64(s.AudioBitrateBits())) * duration / 8
		estimate = math.Min(estimate, capped)
	}
	if target := s.TargetSizeBytes(); target > 0 {
		estimate = math.Min(estimate, float64(target))
	}
	return int64(estimate)
}
