package batch

import "mkvshrink/internal/encoding"

// EventKind names a batch bus event.
type EventKind string

const (
	EventJobProgress EventKind = "job.progress"
	EventJobState    EventKind = "job.state"
	EventEntry       EventKind = "batch.entry"
	EventProgress    EventKind = "batch.progress"
	EventFinished    EventKind = "batch.finished"
)

// Event is published on a batch's bus. Which fields are set depends on Kind:
// Job for job events, Entry for batch.entry, Percent/Completed/Total for
// batch.progress and Result for batch.finished.
type Event struct {
	Kind    EventKind
	BatchID string

	Job   encoding.Event
	Entry Entry

	Percent   float64
	Completed int
	Total     int

	Result *Result
}

// lossy reports whether a slow subscriber may miss the event. Later progress
// supersedes earlier progress; everything else must arrive.
func lossy(ev Event) bool {
	return ev.Kind == EventJobProgress || ev.Kind == EventProgress
}
