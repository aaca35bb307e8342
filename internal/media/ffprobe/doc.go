// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - VideoInfo: the read-only snapshot the encoder works from
//   - Prober: resolves VideoInfo for a path, failing with services.ErrProbeFailure
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns parsed Result
//   - Prober.Probe: stat, inspect and condense in one call
package ffprobe
