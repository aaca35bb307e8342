package encoding

import (
	"errors"

	"mkvshrink/internal/services"
)

// State is a job lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[State][]State{
	StatePending: {StateRunning, StateFailed, StateCancelled},
	StateRunning: {StateSucceeded, StateFailed, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Kind categorizes why a job did not succeed.
type Kind string

const (
	KindNone               Kind = ""
	KindInvalidSettings    Kind = "InvalidSettings"
	KindEncoderUnavailable Kind = "EncoderUnavailable"
	KindProbeFailure       Kind = "ProbeFailure"
	KindEncodingFailure    Kind = "EncodingFailure"
	KindCancelled          Kind = "Cancelled"
)

// KindOf maps a services marker error onto a Kind. Unmarked errors count as
// encoding failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, services.ErrCancelled):
		return KindCancelled
	case errors.Is(err, services.ErrInvalidSettings):
		return KindInvalidSettings
	case errors.Is(err, services.ErrEncoderUnavailable):
		return KindEncoderUnavailable
	case errors.Is(err, services.ErrProbeFailure):
		return KindProbeFailure
	default:
		return KindEncodingFailure
	}
}
