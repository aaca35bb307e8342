// Package encoding runs one compression job: it probes the input, builds the
// ffmpeg invocation, owns the subprocess for every pass and turns its stderr
// into progress events.
//
// A Job moves pending -> running -> succeeded|failed|cancelled and never
// leaves a terminal state. Runner.Run converts every failure into a Kind and a
// short reason; raw errors go to the log, not to callers. Progress and state
// changes are sent as typed Event values on a caller supplied channel, so the
// runner never calls back into user code.
//
// Keep process handling here so the batch coordinator can treat a job as a
// single blocking call.
package encoding
