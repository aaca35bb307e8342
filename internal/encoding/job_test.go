package encoding

import (
	"errors"
	"fmt"
	"testing"

	"mkvshrink/internal/services"
	"mkvshrink/internal/settings"
)

func TestJobTransitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []State
		valid bool
	}{
		{name: "success", path: []State{StateRunning, StateSucceeded}, valid: true},
		{name: "failed before spawn", path: []State{StateFailed}, valid: true},
		{name: "cancelled while pending", path: []State{StateCancelled}, valid: true},
		{name: "skip running", path: []State{StateSucceeded}},
		{name: "leave terminal", path: []State{StateRunning, StateFailed, StateRunning}},
		{name: "terminal twice", path: []State{StateCancelled, StateCancelled}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			job := NewJob("in.mp4", "out.mkv", settings.MustNew(settings.DefaultParams()))
			var err error
			for _, next := range tc.path {
				if err = job.transition(next, KindNone, ""); err != nil {
					break
				}
			}
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("expected illegal transition, got %v", err)
			}
		})
	}
}

func TestJobCancelFirstReasonWins(t *testing.T) {
	job := NewJob("in.mp4", "out.mkv", settings.MustNew(settings.DefaultParams()))
	job.Cancel("  ")
	job.Cancel("second")
	select {
	case <-job.Cancelled():
	default:
		t.Fatal("cancel channel not closed")
	}
	if got := job.requestedCancelReason(); got != "cancelled by request" {
		t.Fatalf("reason = %q", got)
	}
}

func TestJobSnapshotIsCopy(t *testing.T) {
	job := NewJob("in.mp4", "out.mkv", settings.MustNew(settings.DefaultParams()))
	if job.ID == "" {
		t.Fatal("job ID not assigned")
	}
	before := job.Snapshot()
	if err := job.transition(StateRunning, KindNone, ""); err != nil {
		t.Fatal(err)
	}
	if before.State != StatePending {
		t.Fatalf("snapshot changed after transition: %s", before.State)
	}
	after := job.Snapshot()
	if after.StartedAt.IsZero() || after.Elapsed() != 0 {
		t.Fatalf("unexpected timing %+v", after)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{services.Wrap(services.ErrInvalidSettings, "settings", "validate", "crf", nil), KindInvalidSettings},
		{fmt.Errorf("locate: %w", services.ErrEncoderUnavailable), KindEncoderUnavailable},
		{services.Wrap(services.ErrProbeFailure, "probe", "ffprobe", "bad", nil), KindProbeFailure},
		{services.ErrCancelled, KindCancelled},
		{errors.New("boom"), KindEncodingFailure},
	}
	for _, tc := range tests {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestTailBufferKeepsLastLines(t *testing.T) {
	tail := newTailBuffer(3)
	for i := 1; i <= 5; i++ {
		tail.Add(fmt.Sprintf("line %d", i))
	}
	tail.Add("   ")
	if got := tail.Summary(0); got != "line 3 | line 4 | line 5" {
		t.Fatalf("summary = %q", got)
	}
	if got := tail.Summary(6); got != "...line 5" {
		t.Fatalf("trimmed summary = %q", got)
	}
}
