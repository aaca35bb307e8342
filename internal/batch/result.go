package batch

import (
	"time"

	"mkvshrink/internal/encoding"
)

// Outcome is the per-input result of a batch.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeSkipped   Outcome = "skipped"
)

// Final reports whether the entry will not change again.
func (o Outcome) Final() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeCancelled, OutcomeSkipped:
		return true
	default:
		return false
	}
}

// Entry is one row of a batch result.
type Entry struct {
	Input      string
	Output     string
	JobID      string
	Outcome    Outcome
	Kind       encoding.Kind
	Reason     string
	InputSize  int64
	OutputSize int64
	Duration   time.Duration
}

// SpaceSaved is the byte difference between input and output; negative when
// the output grew.
func (e Entry) SpaceSaved() int64 {
	if e.Outcome != OutcomeSucceeded {
		return 0
	}
	return e.InputSize - e.OutputSize
}

// Ratio is output size over input size, 0 when unknown.
func (e Entry) Ratio() float64 {
	if e.Outcome != OutcomeSucceeded || e.InputSize <= 0 {
		return 0
	}
	return float64(e.OutputSize) / float64(e.InputSize)
}

// Result maps each input to its Entry, in submission order.
type Result struct {
	BatchID    string
	StartedAt  time.Time
	FinishedAt time.Time

	entries []Entry
	index   map[string]int
}

func newResult(batchID string) *Result {
	return &Result{BatchID: batchID, StartedAt: time.Now(), index: make(map[string]int)}
}

// NewResult assembles a finished Result from entries, for callers that
// rebuild one outside a running batch.
func NewResult(batchID string, startedAt, finishedAt time.Time, entries ...Entry) Result {
	r := newResult(batchID)
	r.StartedAt, r.FinishedAt = startedAt, finishedAt
	for _, e := range entries {
		r.add(e)
	}
	return *r
}

func (r *Result) add(e Entry) {
	r.index[e.Input] = len(r.entries)
	r.entries = append(r.entries, e)
}

func (r *Result) update(e Entry) {
	if i, ok := r.index[e.Input]; ok {
		r.entries[i] = e
	}
}

// Len returns the number of entries.
func (r Result) Len() int { return len(r.entries) }

// Entries returns the entries in submission order.
func (r Result) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Get looks an entry up by input path as submitted.
func (r Result) Get(input string) (Entry, bool) {
	i, ok := r.index[input]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Count returns the number of entries with outcome o.
func (r Result) Count(o Outcome) int {
	n := 0
	for _, e := range r.entries {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

// Failed reports whether any entry failed.
func (r Result) Failed() bool {
	return r.Count(OutcomeFailed) > 0
}

// Totals sums input and output sizes over succeeded entries.
func (r Result) Totals() (input, output int64) {
	for _, e := range r.entries {
		if e.Outcome == OutcomeSucceeded {
			input += e.InputSize
			output += e.OutputSize
		}
	}
	return input, output
}

// Elapsed is the wall time of the batch.
func (r Result) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) clone() Result {
	out := Result{
		BatchID:    r.BatchID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		entries:    append([]Entry(nil), r.entries...),
		index:      make(map[string]int, len(r.index)),
	}
	for k, v := range r.index {
		out.index[k] = v
	}
	return out
}
