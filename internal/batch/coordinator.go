package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mkvshrink/internal/encoding"
	"mkvshrink/internal/events"
	"mkvshrink/internal/fileutil"
	"mkvshrink/internal/logging"
	"mkvshrink/internal/services"
	"mkvshrink/internal/settings"
)

// MaxConcurrency caps the worker pool.
const MaxConcurrency = 16

const (
	reasonSkippedAfterFailure = "skipped-after-earlier-failure"
	reasonOutputExists        = "output exists"
)

var errBatchCancelled = errors.New("batch cancelled")

// JobRunner runs one job to completion. *encoding.Runner implements it.
type JobRunner interface {
	Run(ctx context.Context, job *encoding.Job, sink chan<- encoding.Event) encoding.JobSnapshot
}

// Pair is one requested input/output mapping.
type Pair struct {
	Input  string
	Output string
}

// Options control dispatch and failure policy.
type Options struct {
	Concurrency     int
	ContinueOnError bool
	Overwrite       bool
	// SkipExisting leaves inputs whose output already exists untouched
	// instead of writing a renamed sibling.
	SkipExisting bool
	// EventBuffer is the subscriber buffer used when Subscribe gets 0.
	EventBuffer int
	// EventHistory is how many bus events late subscribers replay.
	EventHistory int
}

// DefaultOptions returns sequential, continue-on-error options.
func DefaultOptions() Options {
	return Options{
		Concurrency:     1,
		ContinueOnError: true,
		EventBuffer:     64,
		EventHistory:    events.DefaultHistory,
	}
}

func (o Options) normalized() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.Concurrency > MaxConcurrency {
		o.Concurrency = MaxConcurrency
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.EventHistory <= 0 {
		o.EventHistory = events.DefaultHistory
	}
	return o
}

// Coordinator starts batches. It is safe for concurrent use. Each batch
// claims outputs through its own scope of the resolver, so no claim or
// reservation outlives the batch that made it.
type Coordinator struct {
	runner   JobRunner
	resolver *fileutil.PathResolver
	exists   fileutil.ExistsFunc
	opts     Options
	logger   *slog.Logger
}

// New builds a coordinator. A nil resolver gets a fresh OS-backed one.
func New(runner JobRunner, resolver *fileutil.PathResolver, opts Options, logger *slog.Logger) *Coordinator {
	if resolver == nil {
		resolver = fileutil.NewPathResolver(nil)
	}
	return &Coordinator{
		runner:   runner,
		resolver: resolver,
		exists:   fileutil.OSExists,
		opts:     opts.normalized(),
		logger:   logging.NewComponentLogger(logger, "batch"),
	}
}

// Options returns the effective options.
func (c *Coordinator) Options() Options {
	return c.opts
}

// Run submits pairs and waits for the batch to finish.
func (c *Coordinator) Run(ctx context.Context, pairs []Pair, s settings.Settings) (Result, error) {
	b, err := c.Submit(ctx, pairs, s)
	if err != nil {
		return Result{}, err
	}
	return b.Wait(), nil
}

// Submit validates pairs, resolves outputs and starts the batch. Cancelling
// ctx cancels the batch.
func (c *Coordinator) Submit(ctx context.Context, pairs []Pair, s settings.Settings) (*Batch, error) {
	if !s.Valid() {
		return nil, services.Wrap(services.ErrInvalidSettings, "batch", "submit", "settings were not validated", nil)
	}
	if len(pairs) == 0 {
		return nil, services.Wrap(services.ErrInvalidSettings, "batch", "submit", "no inputs", nil)
	}
	if err := checkPairs(pairs); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	inputs := make([]string, len(pairs))
	for i, p := range pairs {
		inputs[i] = p.Input
	}
	paths := c.resolver.Scope()
	paths.Reserve(inputs...)

	result := newResult(id)
	var queue []*encoding.Job
	for _, p := range pairs {
		if c.opts.SkipExisting {
			exists, err := c.exists(p.Output)
			if err != nil {
				return nil, fmt.Errorf("check output %s: %w", p.Output, err)
			}
			if exists {
				result.add(Entry{Input: p.Input, Output: p.Output, Outcome: OutcomeSkipped, Reason: reasonOutputExists})
				continue
			}
		}
		output, err := paths.Claim(p.Output, c.opts.Overwrite)
		if err != nil {
			return nil, err
		}
		job := encoding.NewJob(p.Input, output, s)
		queue = append(queue, job)
		result.add(Entry{Input: p.Input, Output: output, JobID: job.ID, Outcome: OutcomePending})
	}

	ctx = services.WithBatchID(ctx, id)
	batchCtx, cancel := context.WithCancelCause(ctx)
	b := &Batch{
		ID:     id,
		coord:  c,
		jobs:   queue,
		result: result,
		bus:    events.New[Event](c.opts.EventHistory, lossy),
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logging.WithContext(ctx, c.logger),
	}
	b.logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_started"),
		logging.Int("inputs", len(pairs)),
		logging.Int("queued", len(queue)),
		logging.Int("workers", c.opts.Concurrency),
		logging.Bool("continue_on_error", c.opts.ContinueOnError),
		logging.String("settings", s.String()),
	)
	b.logOutputDecisions(pairs)
	go b.run(batchCtx)
	return b, nil
}

// logOutputDecisions records every input whose requested output was taken.
func (b *Batch) logOutputDecisions(pairs []Pair) {
	for i, p := range pairs {
		e := b.result.entries[i]
		switch {
		case e.Outcome == OutcomeSkipped:
			attrs := logging.DecisionAttrs("output_collision", "skipped", e.Reason)
			attrs = append(attrs, logging.String(logging.FieldInput, p.Input), logging.String(logging.FieldOutput, p.Output))
			b.logger.Info("input skipped", logging.Args(attrs...)...)
		case e.Output != p.Output:
			attrs := logging.DecisionAttrs("output_collision", "renamed", "requested output is taken")
			attrs = append(attrs, logging.String(logging.FieldInput, p.Input), logging.String(logging.FieldOutput, e.Output))
			b.logger.Info("output renamed", logging.Args(attrs...)...)
		}
	}
}

func checkPairs(pairs []Pair) error {
	seen := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if strings.TrimSpace(p.Input) == "" {
			return services.Wrap(services.ErrInvalidSettings, "batch", "submit", "input path is empty", nil)
		}
		if strings.TrimSpace(p.Output) == "" {
			return services.Wrap(services.ErrInvalidSettings, "batch", "submit", fmt.Sprintf("output path for %s is empty", p.Input), nil)
		}
		key := p.Input
		if abs, err := filepath.Abs(p.Input); err == nil {
			key = abs
		}
		if first, dup := seen[key]; dup {
			return services.Wrap(services.ErrInvalidSettings, "batch", "submit", fmt.Sprintf("duplicate input %s (also given as %s)", p.Input, first), nil)
		}
		seen[key] = p.Input
	}
	return nil
}

// Batch is a running or finished submission.
type Batch struct {
	ID string

	coord  *Coordinator
	jobs   []*encoding.Job
	result *Result
	bus    *events.Bus[Event]
	cancel context.CancelCauseFunc
	done   chan struct{}
	logger *slog.Logger

	final Result
}

// Subscribe returns the batch's event stream. History is replayed first; the
// channel closes after batch.finished or when unsubscribe is called.
func (b *Batch) Subscribe(buffer int) (<-chan events.Envelope[Event], func()) {
	if buffer <= 0 {
		buffer = b.coord.opts.EventBuffer
	}
	return b.bus.Subscribe(buffer)
}

// Cancel stops dispatch and cancels running jobs.
func (b *Batch) Cancel() {
	b.cancel(errBatchCancelled)
}

// Done is closed once every entry is final.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the batch finishes and returns a copy of its result.
func (b *Batch) Wait() Result {
	<-b.done
	return b.final.clone()
}

// Jobs returns snapshots of the batch's jobs in submission order. Inputs
// skipped at submission have no job.
func (b *Batch) Jobs() []encoding.JobSnapshot {
	out := make([]encoding.JobSnapshot, len(b.jobs))
	for i, job := range b.jobs {
		out[i] = job.Snapshot()
	}
	return out
}

// loopState is owned by the coordinator goroutine.
type loopState struct {
	total     int
	completed int
	running   map[string]float64
	published float64
	sampler   *logging.ProgressSamplerSet
	byJob     map[string]string
}

func (b *Batch) run(ctx context.Context) {
	defer close(b.done)
	defer b.bus.Close()
	defer b.cancel(nil)

	opts := b.coord.opts
	st := &loopState{
		total:   b.result.Len(),
		running: make(map[string]float64),
		sampler: logging.NewProgressSamplerSet(5),
		byJob:   make(map[string]string, len(b.jobs)),
	}
	for _, job := range b.jobs {
		st.byJob[job.ID] = job.Input
	}
	for _, e := range b.result.entries {
		if e.Outcome == OutcomeSkipped {
			st.completed++
			b.publishEntry(e)
		}
	}

	// Unbuffered: a job's terminal event is folded in before its worker can
	// take another job.
	work := make(chan *encoding.Job)
	handoff := make(chan encoding.Event)
	var g errgroup.Group
	workers := min(opts.Concurrency, max(len(b.jobs), 1))
	for range workers {
		g.Go(func() error {
			for job := range work {
				b.coord.runner.Run(ctx, job, handoff)
			}
			return nil
		})
	}

	queue := b.jobs
	dispatching := true
	ctxDone := ctx.Done()
	for st.completed < st.total {
		var sendCh chan *encoding.Job
		var next *encoding.Job
		if dispatching && len(queue) > 0 {
			sendCh = work
			next = queue[0]
		}
		select {
		case sendCh <- next:
			queue = queue[1:]
			st.running[next.ID] = 0
			b.setOutcome(next.Input, OutcomeRunning, "", "")
		case ev := <-handoff:
			if b.handle(st, ev) && !opts.ContinueOnError && dispatching {
				dispatching = false
				b.logger.Info("stopping dispatch after failure",
					logging.String(logging.FieldEventType, "batch_fail_fast"),
					logging.Int("abandoned", len(queue)),
				)
				b.abandon(st, queue, reasonSkippedAfterFailure)
				queue = nil
			}
		case <-ctxDone:
			ctxDone = nil
			dispatching = false
			reason := errBatchCancelled.Error()
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
				reason = cause.Error()
			}
			b.abandon(st, queue, reason)
			queue = nil
		}
	}
	close(work)
	_ = g.Wait()

	b.result.FinishedAt = time.Now()
	if st.published < 100 {
		st.published = 100
		b.bus.Publish(Event{Kind: EventProgress, BatchID: b.ID, Percent: 100, Completed: st.completed, Total: st.total})
	}
	b.final = b.result.clone()
	final := b.result.clone()
	b.bus.Publish(Event{Kind: EventFinished, BatchID: b.ID, Result: &final, Completed: st.completed, Total: st.total})

	b.logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_finished"),
		logging.Int("succeeded", final.Count(OutcomeSucceeded)),
		logging.Int("failed", final.Count(OutcomeFailed)),
		logging.Int("cancelled", final.Count(OutcomeCancelled)),
		logging.Int("skipped", final.Count(OutcomeSkipped)),
		logging.Duration("elapsed", final.Elapsed()),
	)
}

// handle folds one runner event into the result. It reports whether the
// event was a job failure.
func (b *Batch) handle(st *loopState, ev encoding.Event) bool {
	switch ev.Kind {
	case encoding.EventProgress:
		b.bus.Publish(Event{Kind: EventJobProgress, BatchID: b.ID, Job: ev})
		if _, ok := st.running[ev.JobID]; ok && ev.Percent > st.running[ev.JobID] {
			st.running[ev.JobID] = ev.Percent
		}
		if st.sampler.ShouldLog(ev.JobID, ev.Percent, fmt.Sprintf("pass %d/%d", ev.Pass, ev.Passes)) {
			b.logger.Info("encoding progress",
				logging.String(logging.FieldJobID, ev.JobID),
				logging.String(logging.FieldInput, ev.Input),
				logging.Float64("percent", ev.Percent),
				logging.Float64("speed", ev.Progress.Speed),
			)
		}
		b.publishProgress(st)
		return false
	case encoding.EventState:
		b.bus.Publish(Event{Kind: EventJobState, BatchID: b.ID, Job: ev})
		if !ev.State.Terminal() {
			return false
		}
		snap := ev.Snapshot
		delete(st.running, ev.JobID)
		st.sampler.Forget(ev.JobID)
		st.completed++

		input := st.byJob[ev.JobID]
		entry, _ := b.result.Get(input)
		entry.Outcome = outcomeFor(ev.State)
		entry.Kind = ev.Failure
		entry.Reason = ev.Reason
		entry.OutputSize = snap.OutputSize
		entry.Duration = snap.Elapsed()
		if snap.HasVideoInfo {
			entry.InputSize = snap.VideoInfo.Size
		}
		b.result.update(entry)
		b.publishEntry(entry)
		b.publishProgress(st)
		if entry.Outcome == OutcomeFailed {
			logging.WarnWithContext(b.logger, "batch entry failed", "batch_entry_failed",
				logging.String(logging.FieldInput, entry.Input),
				logging.String("kind", string(entry.Kind)),
				logging.String("reason", entry.Reason),
				logging.String(logging.FieldImpact, "input was not compressed"),
			)
			return true
		}
		return false
	default:
		return false
	}
}

// abandon cancels jobs that were never dispatched.
func (b *Batch) abandon(st *loopState, queue []*encoding.Job, reason string) {
	for _, job := range queue {
		if err := job.Abandon(reason); err != nil {
			b.logger.Debug("abandon job", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
		st.completed++
		b.setOutcome(job.Input, OutcomeCancelled, encoding.KindCancelled, reason)
	}
	if len(queue) > 0 {
		b.publishProgress(st)
	}
}

func (b *Batch) setOutcome(input string, outcome Outcome, kind encoding.Kind, reason string) {
	entry, ok := b.result.Get(input)
	if !ok {
		return
	}
	entry.Outcome = outcome
	entry.Kind = kind
	entry.Reason = reason
	b.result.update(entry)
	b.publishEntry(entry)
}

func (b *Batch) publishEntry(e Entry) {
	b.bus.Publish(Event{Kind: EventEntry, BatchID: b.ID, Entry: e})
}

// publishProgress recomputes the aggregate and publishes it when it grew.
func (b *Batch) publishProgress(st *loopState) {
	if st.total == 0 {
		return
	}
	sum := float64(st.completed)
	for _, pct := range st.running {
		sum += pct / 100
	}
	percent := min(100, sum/float64(st.total)*100)
	if percent <= st.published {
		return
	}
	st.published = percent
	b.bus.Publish(Event{Kind: EventProgress, BatchID: b.ID, Percent: percent, Completed: st.completed, Total: st.total})
}

func outcomeFor(state encoding.State) Outcome {
	switch state {
	case encoding.StateSucceeded:
		return OutcomeSucceeded
	case encoding.StateCancelled:
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
