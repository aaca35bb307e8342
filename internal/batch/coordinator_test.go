package batch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"mkvshrink/internal/encoding"
	"mkvshrink/internal/fileutil"
	"mkvshrink/internal/media/ffprobe"
	"mkvshrink/internal/services"
	"mkvshrink/internal/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner reports a scripted outcome per input base name without spawning
// anything.
type fakeRunner struct {
	mu        sync.Mutex
	started   []string
	active    int
	maxActive int
	failures  map[string]bool
	release   chan struct{}
	startedCh chan string
}

func (f *fakeRunner) Run(ctx context.Context, job *encoding.Job, sink chan<- encoding.Event) encoding.JobSnapshot {
	name := filepath.Base(job.Input)
	f.mu.Lock()
	f.started = append(f.started, name)
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	f.mu.Unlock()
	if f.startedCh != nil {
		f.startedCh <- name
	}

	base := encoding.Event{JobID: job.ID, Input: job.Input, Output: job.Output}
	progress := base
	progress.Kind = encoding.EventProgress
	progress.Percent = 50
	select {
	case sink <- progress:
	case <-ctx.Done():
	}

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}

	snap := encoding.JobSnapshot{
		ID:           job.ID,
		Input:        job.Input,
		Output:       job.Output,
		State:        encoding.StateSucceeded,
		OutputSize:   40,
		VideoInfo:    ffprobe.VideoInfo{Size: 100},
		HasVideoInfo: true,
	}
	switch {
	case ctx.Err() != nil:
		snap.State, snap.Kind, snap.Reason = encoding.StateCancelled, encoding.KindCancelled, context.Cause(ctx).Error()
		snap.OutputSize = 0
	case f.failures[name]:
		snap.State, snap.Kind, snap.Reason = encoding.StateFailed, encoding.KindEncodingFailure, "pass 1 exited with status 1"
		snap.OutputSize = 0
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	final := base
	final.Kind = encoding.EventState
	final.State = snap.State
	final.Failure = snap.Kind
	final.Reason = snap.Reason
	final.Snapshot = snap
	sink <- final
	return snap
}

func (f *fakeRunner) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func pairsFor(dir string, names ...string) []Pair {
	out := make([]Pair, len(names))
	for i, name := range names {
		in := filepath.Join(dir, name+".mp4")
		out[i] = Pair{Input: in, Output: filepath.Join(dir, "out", name+".mkv")}
	}
	return out
}

func defaultSettings() settings.Settings {
	return settings.MustNew(settings.DefaultParams())
}

func outcomes(r Result) []Outcome {
	var out []Outcome
	for _, e := range r.Entries() {
		out = append(out, e.Outcome)
	}
	return out
}

func TestSequentialBatchKeepsSubmissionOrder(t *testing.T) {
	runner := &fakeRunner{}
	coord := New(runner, nil, DefaultOptions(), nil)
	pairs := pairsFor(t.TempDir(), "c", "a", "b")

	result, err := coord.Run(context.Background(), pairs, defaultSettings())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"c.mp4", "a.mp4", "b.mp4"}, runner.Started()); diff != "" {
		t.Fatalf("start order mismatch (-want +got):\n%s", diff)
	}
	var inputs []string
	for _, e := range result.Entries() {
		inputs = append(inputs, e.Input)
	}
	want := []string{pairs[0].Input, pairs[1].Input, pairs[2].Input}
	if diff := cmp.Diff(want, inputs); diff != "" {
		t.Fatalf("entry order mismatch (-want +got):\n%s", diff)
	}
	if result.Count(OutcomeSucceeded) != 3 || result.Failed() {
		t.Fatalf("unexpected outcomes %v", outcomes(result))
	}
	entry, ok := result.Get(pairs[1].Input)
	if !ok || entry.InputSize != 100 || entry.OutputSize != 40 || entry.SpaceSaved() != 60 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if in, out := result.Totals(); in != 300 || out != 120 {
		t.Fatalf("totals = %d/%d", in, out)
	}
}

func TestParallelBatchRespectsConcurrency(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), startedCh: make(chan string, 16)}
	opts := DefaultOptions()
	opts.Concurrency = 3
	coord := New(runner, nil, opts, nil)

	b, err := coord.Submit(context.Background(), pairsFor(t.TempDir(), "a", "b", "c", "d", "e", "f"), defaultSettings())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for range 3 {
		select {
		case <-runner.startedCh:
		case <-time.After(5 * time.Second):
			t.Fatal("workers did not start")
		}
	}
	select {
	case name := <-runner.startedCh:
		t.Fatalf("fourth job %s started while three were running", name)
	case <-time.After(50 * time.Millisecond):
	}
	close(runner.release)

	result := b.Wait()
	if result.Len() != 6 || result.Count(OutcomeSucceeded) != 6 {
		t.Fatalf("unexpected outcomes %v", outcomes(result))
	}
	if runner.maxActive != 3 {
		t.Fatalf("max active = %d, want 3", runner.maxActive)
	}
	if len(b.Jobs()) != 6 {
		t.Fatalf("jobs = %d", len(b.Jobs()))
	}
}

func TestFailFastAbandonsQueuedJobs(t *testing.T) {
	runner := &fakeRunner{failures: map[string]bool{"b.mp4": true}}
	opts := DefaultOptions()
	opts.ContinueOnError = false
	coord := New(runner, nil, opts, nil)

	b, err := coord.Submit(context.Background(), pairsFor(t.TempDir(), "a", "b", "c"), defaultSettings())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result := b.Wait()
	want := []Outcome{OutcomeSucceeded, OutcomeFailed, OutcomeCancelled}
	if diff := cmp.Diff(want, outcomes(result)); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	last := result.Entries()[2]
	if last.Reason != "skipped-after-earlier-failure" || last.Kind != encoding.KindCancelled {
		t.Fatalf("unexpected abandoned entry %+v", last)
	}
	if diff := cmp.Diff([]string{"a.mp4", "b.mp4"}, runner.Started()); diff != "" {
		t.Fatalf("started mismatch (-want +got):\n%s", diff)
	}
	if got := b.Jobs()[2].State; got != encoding.StateCancelled {
		t.Fatalf("abandoned job state = %s", got)
	}
}

func TestContinueOnErrorRunsEverything(t *testing.T) {
	runner := &fakeRunner{failures: map[string]bool{"b.mp4": true}}
	coord := New(runner, nil, DefaultOptions(), nil)

	result, err := coord.Run(context.Background(), pairsFor(t.TempDir(), "a", "b", "c"), defaultSettings())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Outcome{OutcomeSucceeded, OutcomeFailed, OutcomeSucceeded}
	if diff := cmp.Diff(want, outcomes(result)); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if !result.Failed() {
		t.Fatal("Failed() = false")
	}
}

func TestCancelBatch(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), startedCh: make(chan string, 4)}
	coord := New(runner, nil, DefaultOptions(), nil)

	b, err := coord.Submit(context.Background(), pairsFor(t.TempDir(), "a", "b", "c"), defaultSettings())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-runner.startedCh
	b.Cancel()
	result := b.Wait()
	defer close(runner.release)

	for _, e := range result.Entries() {
		if e.Outcome != OutcomeCancelled || e.Reason != "batch cancelled" {
			t.Fatalf("entry %s = %s %q, want cancelled", e.Input, e.Outcome, e.Reason)
		}
	}
	if diff := cmp.Diff([]string{"a.mp4"}, runner.Started()); diff != "" {
		t.Fatalf("started mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	coord := New(&fakeRunner{}, nil, DefaultOptions(), nil)
	dup := pairsFor(dir, "a", "b")
	dup = append(dup, Pair{Input: dup[0].Input, Output: filepath.Join(dir, "other.mkv")})

	tests := []struct {
		name  string
		pairs []Pair
		s     settings.Settings
	}{
		{name: "empty", pairs: nil, s: defaultSettings()},
		{name: "duplicate input", pairs: dup, s: defaultSettings()},
		{name: "missing output", pairs: []Pair{{Input: filepath.Join(dir, "a.mp4")}}, s: defaultSettings()},
		{name: "unvalidated settings", pairs: pairsFor(dir, "a"), s: settings.Settings{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := coord.Submit(context.Background(), tc.pairs, tc.s)
			if !errors.Is(err, services.ErrInvalidSettings) {
				t.Fatalf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestSubmitResolvesOutputCollisions(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	resolver := fileutil.NewPathResolver(func(string) (bool, error) { return false, nil })
	opts := DefaultOptions()
	opts.Overwrite = true
	coord := New(runner, resolver, opts, nil)

	shared := filepath.Join(dir, "movie.mkv")
	pairs := []Pair{
		{Input: filepath.Join(dir, "a", "movie.mp4"), Output: shared},
		{Input: filepath.Join(dir, "b", "movie.mp4"), Output: shared},
		{Input: filepath.Join(dir, "c.mkv"), Output: filepath.Join(dir, "c.mkv")},
	}
	result, err := coord.Run(context.Background(), pairs, defaultSettings())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var got []string
	for _, e := range result.Entries() {
		got = append(got, filepath.Base(e.Output))
	}
	want := []string{"movie.mkv", "movie (1).mkv", "c (1).mkv"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchesDoNotShareClaims(t *testing.T) {
	dir := t.TempDir()
	resolver := fileutil.NewPathResolver(func(string) (bool, error) { return false, nil })
	opts := DefaultOptions()
	opts.Overwrite = true
	coord := New(&fakeRunner{}, resolver, opts, nil)
	pairs := []Pair{{Input: filepath.Join(dir, "a.mp4"), Output: filepath.Join(dir, "out", "a.mkv")}}

	for i := 0; i < 2; i++ {
		result, err := coord.Run(context.Background(), pairs, defaultSettings())
		if err != nil {
			t.Fatalf("batch %d: Run: %v", i, err)
		}
		if got := result.Entries()[0].Output; got != pairs[0].Output {
			t.Fatalf("batch %d: output = %s, want %s", i, got, pairs[0].Output)
		}
	}
}

func TestSkipExisting(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	opts := DefaultOptions()
	opts.SkipExisting = true
	coord := New(runner, nil, opts, nil)
	pairs := pairsFor(dir, "a", "b")
	coord.exists = func(path string) (bool, error) { return path == pairs[0].Output, nil }

	result, err := coord.Run(context.Background(), pairs, defaultSettings())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]Outcome{OutcomeSkipped, OutcomeSucceeded}, outcomes(result)); diff != "" {
		t.Fatalf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b.mp4"}, runner.Started()); diff != "" {
		t.Fatalf("started mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchEventsAreMonotonic(t *testing.T) {
	opts := DefaultOptions()
	opts.Concurrency = 2
	coord := New(&fakeRunner{failures: map[string]bool{"c.mp4": true}}, nil, opts, nil)

	b, err := coord.Submit(context.Background(), pairsFor(t.TempDir(), "a", "b", "c", "d"), defaultSettings())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	stream, unsubscribe := b.Subscribe(0)
	defer unsubscribe()

	var (
		percents []float64
		finished *Result
		lastSeq  uint64
		entries  int
	)
	for env := range stream {
		if env.Seq <= lastSeq {
			t.Fatalf("sequence went from %d to %d", lastSeq, env.Seq)
		}
		lastSeq = env.Seq
		switch env.Value.Kind {
		case EventProgress:
			percents = append(percents, env.Value.Percent)
		case EventFinished:
			finished = env.Value.Result
		case EventEntry:
			entries++
		}
	}
	if finished == nil || finished.Len() != 4 {
		t.Fatalf("missing batch.finished event")
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress did not end at 100: %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("aggregate progress regressed: %v", percents)
		}
	}
	if entries < 8 {
		t.Fatalf("expected running and final entry events, got %d", entries)
	}
	if got := b.Wait(); got.Count(OutcomeFailed) != 1 {
		t.Fatalf("unexpected outcomes %v", outcomes(got))
	}
}

func TestWaitReturnsCopy(t *testing.T) {
	coord := New(&fakeRunner{}, nil, DefaultOptions(), nil)
	b, err := coord.Submit(context.Background(), pairsFor(t.TempDir(), "a"), defaultSettings())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first := b.Wait()
	first.entries[0].Outcome = OutcomeFailed
	if b.Wait().Entries()[0].Outcome != OutcomeSucceeded {
		t.Fatal("Wait result shares storage")
	}
}

func TestOptionsClampConcurrency(t *testing.T) {
	for _, tc := range []struct{ in, want int }{{0, 1}, {-3, 1}, {4, 4}, {99, MaxConcurrency}} {
		opts := DefaultOptions()
		opts.Concurrency = tc.in
		if got := New(&fakeRunner{}, nil, opts, nil).Options().Concurrency; got != tc.want {
			t.Fatalf("Concurrency(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
