package encoding

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mkvshrink/internal/media/ffprobe"
	"mkvshrink/internal/services/ffmpeg"
	"mkvshrink/internal/settings"
)

// ErrIllegalTransition is returned when a state change would leave a terminal
// state or skip running.
var ErrIllegalTransition = errors.New("illegal job state transition")

const defaultCancelReason = "cancelled by request"

// Job is one input/output pair compressed with one Settings value. It is
// created pending and is not reused after reaching a terminal state.
type Job struct {
	ID       string
	Input    string
	Output   string
	Settings settings.Settings

	mu         sync.Mutex
	state      State
	info       ffprobe.VideoInfo
	hasInfo    bool
	progress   ffmpeg.ProgressEvent
	percent    float64
	kind       Kind
	reason     string
	startedAt  time.Time
	finishedAt time.Time
	outputSize int64

	cancelOnce   sync.Once
	cancelCh     chan struct{}
	cancelReason string
}

// NewJob returns a pending job with a fresh ID.
func NewJob(input, output string, s settings.Settings) *Job {
	return &Job{
		ID:       uuid.NewString(),
		Input:    input,
		Output:   output,
		Settings: s,
		state:    StatePending,
		cancelCh: make(chan struct{}),
	}
}

// JobSnapshot is an immutable copy of a job's observable state.
type JobSnapshot struct {
	ID           string
	Input        string
	Output       string
	Settings     settings.Settings
	State        State
	VideoInfo    ffprobe.VideoInfo
	HasVideoInfo bool
	Progress     ffmpeg.ProgressEvent
	// Percent is the overall job percentage across passes.
	Percent    float64
	Kind       Kind
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
	OutputSize int64
}

// Elapsed is the wall time between spawn and the terminal state.
func (s JobSnapshot) Elapsed() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Snapshot copies the current state; safe from any goroutine.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:           j.ID,
		Input:        j.Input,
		Output:       j.Output,
		Settings:     j.Settings,
		State:        j.state,
		VideoInfo:    j.info,
		HasVideoInfo: j.hasInfo,
		Progress:     j.progress,
		Percent:      j.percent,
		Kind:         j.kind,
		Reason:       j.reason,
		StartedAt:    j.startedAt,
		FinishedAt:   j.finishedAt,
		OutputSize:   j.outputSize,
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Cancel requests cooperative termination. The first reason wins; an empty
// reason means "cancelled by request". Cancelling a finished job is a no-op.
func (j *Job) Cancel(reason string) {
	j.cancelOnce.Do(func() {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = defaultCancelReason
		}
		j.mu.Lock()
		j.cancelReason = reason
		j.mu.Unlock()
		close(j.cancelCh)
	})
}

// Abandon moves a job that was never started straight to cancelled.
func (j *Job) Abandon(reason string) error {
	j.Cancel(reason)
	return j.transition(StateCancelled, KindCancelled, j.requestedCancelReason())
}

// Cancelled is closed once Cancel has been called.
func (j *Job) Cancelled() <-chan struct{} {
	return j.cancelCh
}

func (j *Job) requestedCancelReason() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelReason
}

func (j *Job) transition(to State, kind Kind, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.state, to)
	}
	now := time.Now()
	switch {
	case to == StateRunning:
		j.startedAt = now
	case to.Terminal():
		j.finishedAt = now
		j.kind = kind
		j.reason = reason
	}
	j.state = to
	return nil
}

func (j *Job) setVideoInfo(info ffprobe.VideoInfo) {
	j.mu.Lock()
	j.info = info
	j.hasInfo = true
	j.mu.Unlock()
}

func (j *Job) setProgress(ev ffmpeg.ProgressEvent, percent float64) {
	j.mu.Lock()
	j.progress = ev
	if percent > j.percent {
		j.percent = percent
	}
	j.mu.Unlock()
}

func (j *Job) setOutputSize(size int64) {
	j.mu.Lock()
	j.outputSize = size
	j.mu.Unlock()
}
