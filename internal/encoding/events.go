package encoding

import (
	"time"

	"mkvshrink/internal/services/ffmpeg"
)

// EventKind distinguishes runner events.
type EventKind string

const (
	EventProgress EventKind = "job.progress"
	EventState    EventKind = "job.state"
)

// Event is sent by the runner on the caller supplied channel.
type Event struct {
	Kind   EventKind
	JobID  string
	Input  string
	Output string
	Time   time.Time

	// State is set on EventState.
	State   State
	Failure Kind
	Reason  string
	// Snapshot is the job state right after the transition; a terminal
	// snapshot is the last event of a job.
	Snapshot JobSnapshot

	// Progress carries the raw per-pass sample on EventProgress; Percent is
	// the overall job percentage and never decreases.
	Progress ffmpeg.ProgressEvent
	Percent  float64
	Pass     int
	Passes   int
}
