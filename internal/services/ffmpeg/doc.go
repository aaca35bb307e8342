// Package ffmpeg builds ffmpeg invocations and parses ffmpeg's progress stream.
//
// BuildInvocation is pure: the same request always yields the same argument
// vectors and nothing touches the filesystem. ProgressParser consumes stderr
// one record at a time and turns the human oriented status lines into
// monotonic ProgressEvent values.
//
// Process management lives in internal/encoding; this package never spawns
// anything.
package ffmpeg
