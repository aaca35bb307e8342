package encoding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"mkvshrink/internal/logging"
	"mkvshrink/internal/media/ffprobe"
	"mkvshrink/internal/services"
	"mkvshrink/internal/services/ffmpeg"
)

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.VideoInfo, error)
}

// Locator resolves the ffmpeg binary.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// Dependencies are the collaborators a Runner drives. Nil FS, Executor and
// Logger fall back to the OS implementations and a no-op logger.
type Dependencies struct {
	Prober   Prober
	Locator  Locator
	Executor Executor
	FS       FileSystem
	Logger   *slog.Logger
}

// Options tune process control and output validation.
type Options struct {
	CancelGrace            time.Duration
	DiscardPartialOnCancel bool
	// FirstPassShare is the fraction of overall progress given to the
	// analysis pass of a two-pass encode.
	FirstPassShare    float64
	VerifyDuration    bool
	DurationTolerance time.Duration
	StderrTailLines   int
}

// DefaultOptions returns the stock runner options.
func DefaultOptions() Options {
	return Options{
		CancelGrace:            5 * time.Second,
		DiscardPartialOnCancel: true,
		FirstPassShare:         0.5,
		DurationTolerance:      2 * time.Second,
		StderrTailLines:        20,
	}
}

const (
	maxRecordBytes = 1 << 20
	maxReasonBytes = 400
)

// Runner executes jobs. One Runner may run many jobs concurrently.
type Runner struct {
	prober   Prober
	locator  Locator
	executor Executor
	fs       FileSystem
	logger   *slog.Logger
	opts     Options
}

// NewRunner wires a runner. Out of range options are replaced by defaults.
func NewRunner(deps Dependencies, opts Options) *Runner {
	defaults := DefaultOptions()
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = defaults.CancelGrace
	}
	if opts.FirstPassShare <= 0 || opts.FirstPassShare >= 1 {
		opts.FirstPassShare = defaults.FirstPassShare
	}
	if opts.DurationTolerance <= 0 {
		opts.DurationTolerance = defaults.DurationTolerance
	}
	if opts.StderrTailLines <= 0 {
		opts.StderrTailLines = defaults.StderrTailLines
	}
	r := &Runner{
		prober:   deps.Prober,
		locator:  deps.Locator,
		executor: deps.Executor,
		fs:       deps.FS,
		logger:   logging.NewComponentLogger(deps.Logger, "encoder"),
		opts:     opts,
	}
	if r.executor == nil {
		r.executor = ExecExecutor{}
	}
	if r.fs == nil {
		r.fs = OSFileSystem{}
	}
	return r
}

// Options returns the effective options.
func (r *Runner) Options() Options {
	return r.opts
}

type failure struct {
	kind   Kind
	reason string
	err    error
}

func fail(kind Kind, reason string, err error) *failure {
	return &failure{kind: kind, reason: reason, err: err}
}

var errCancelled = fail(KindCancelled, "", nil)

// Run executes job to a terminal state and returns its final snapshot.
// Progress and state events go to sink when it is non-nil; state events are
// always delivered, progress events are abandoned once ctx is done. Run
// returns only after every process it spawned has exited.
func (r *Runner) Run(ctx context.Context, job *Job, sink chan<- Event) JobSnapshot {
	ctx = services.WithJobID(ctx, job.ID)
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	select {
	case <-job.Cancelled():
		cancel(errors.New(job.requestedCancelReason()))
	default:
	}
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-job.Cancelled():
			cancel(errors.New(job.requestedCancelReason()))
		case <-watchDone:
		}
	}()

	logger := logging.WithContext(runCtx, r.logger).With(
		logging.String(logging.FieldInput, job.Input),
		logging.String(logging.FieldOutput, job.Output),
	)

	run := &jobRun{runner: r, job: job, sink: sink, logger: logger}
	f := run.execute(runCtx)
	switch {
	case f == nil:
		logger.Info("compression finished",
			logging.String(logging.FieldEventType, "job_succeeded"),
			logging.Int64("output_bytes", job.Snapshot().OutputSize),
		)
		run.finish(StateSucceeded, KindNone, "")
	case f.kind == KindCancelled:
		reason := cancelReason(runCtx, job)
		if r.opts.DiscardPartialOnCancel {
			run.removePartialOutput()
		}
		logger.Info("compression cancelled",
			logging.String(logging.FieldEventType, "job_cancelled"),
			logging.String("reason", reason),
		)
		run.finish(StateCancelled, KindCancelled, reason)
	default:
		run.removePartialOutput()
		attrs := []logging.Attr{
			logging.String("kind", string(f.kind)),
			logging.String("reason", f.reason),
			logging.String(logging.FieldErrorHint, hintFor(f.kind)),
		}
		if f.err != nil {
			attrs = append(attrs, logging.Error(f.err))
		}
		logging.ErrorWithContext(logger, "compression failed", "job_failed", attrs...)
		run.finish(StateFailed, f.kind, f.reason)
	}
	return job.Snapshot()
}

// Handle tracks a job started with Runner.Start.
type Handle struct {
	job     *Job
	done    chan struct{}
	outcome JobSnapshot
}

// Start runs job on a new goroutine.
func (r *Runner) Start(ctx context.Context, job *Job, sink chan<- Event) *Handle {
	h := &Handle{job: job, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.outcome = r.Run(ctx, job, sink)
	}()
	return h
}

// Job returns the job being run.
func (h *Handle) Job() *Job { return h.job }

// Cancel requests cancellation; Done closes once the job is terminal.
func (h *Handle) Cancel() { h.job.Cancel("") }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome blocks until the job is terminal.
func (h *Handle) Outcome() JobSnapshot {
	<-h.done
	return h.outcome
}

func cancelReason(ctx context.Context, job *Job) string {
	if reason := job.requestedCancelReason(); reason != "" {
		return reason
	}
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return defaultCancelReason
	}
	return cause.Error()
}

func hintFor(kind Kind) string {
	switch kind {
	case KindEncoderUnavailable:
		return "install ffmpeg or set encoder.ffmpeg_path"
	case KindProbeFailure:
		return "check that the input exists and is a readable video file"
	case KindInvalidSettings:
		return "review the compression settings"
	default:
		return "inspect the ffmpeg output in the log"
	}
}

// jobRun holds the per-run state of one job.
type jobRun struct {
	runner *Runner
	job    *Job
	sink   chan<- Event
	logger *slog.Logger

	percent       float64
	outputTouched bool
}

// stopped reports whether the run must not go further. The job's own cancel
// channel is checked directly because the watcher may not have fired yet.
func (run *jobRun) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-run.job.Cancelled():
		return true
	default:
		return false
	}
}

func (run *jobRun) execute(ctx context.Context) *failure {
	r := run.runner
	job := run.job
	if run.stopped(ctx) {
		return errCancelled
	}

	binary, err := r.locator.Locate(ctx)
	if run.stopped(ctx) {
		return errCancelled
	}
	if err != nil {
		return fail(KindEncoderUnavailable, "ffmpeg not available", err)
	}

	info, err := r.prober.Probe(ctx, job.Input)
	if run.stopped(ctx) {
		return errCancelled
	}
	if err != nil {
		return fail(KindProbeFailure, "probe failed: "+trimReason(rootMessage(err)), err)
	}
	job.setVideoInfo(info)
	run.logger.Debug("input probed",
		logging.Float64("duration_seconds", info.Duration),
		logging.String("resolution", info.Resolution()),
		logging.String("video_codec", info.VideoCodec),
	)

	if err := r.fs.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
		return fail(KindEncodingFailure, "create output directory", err)
	}

	inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{
		Input:           job.Input,
		Output:          job.Output,
		Settings:        job.Settings,
		DurationSeconds: info.Duration,
	})
	if err != nil {
		return fail(KindInvalidSettings, trimReason(rootMessage(err)), err)
	}
	if inv.TwoPass() {
		defer run.cleanupPassLogs(inv.PassLogPrefix)
	}

	for _, pass := range inv.Passes {
		if run.stopped(ctx) {
			return errCancelled
		}
		if f := run.runPass(ctx, binary, pass, len(inv.Passes), info.Duration); f != nil {
			return f
		}
	}

	if f := run.validateOutput(ctx, info); f != nil {
		return f
	}
	if run.percent < 100 {
		last := job.Snapshot().Progress
		last.Percent = 100
		run.percent = 100
		job.setProgress(last, 100)
		run.emitProgress(ctx, last, len(inv.Passes), len(inv.Passes))
	}
	return nil
}

func (run *jobRun) runPass(ctx context.Context, binary string, pass ffmpeg.Pass, passes int, duration float64) *failure {
	r := run.runner
	stage := fmt.Sprintf("pass %d", pass.Number)
	logger := run.logger.With(logging.String(logging.FieldStage, stage))
	logger.Debug("starting encoder", logging.String("command", strings.Join(pass.Args, " ")))

	if run.stopped(ctx) {
		return errCancelled
	}
	proc, err := r.executor.Start(ctx, binary, pass.Args)
	if err != nil {
		if ctx.Err() != nil {
			return errCancelled
		}
		return fail(KindEncoderUnavailable, "start ffmpeg: "+trimReason(err.Error()), err)
	}
	if !pass.DiscardsOutput {
		run.outputTouched = true
	}
	if run.job.State() == StatePending {
		if err := run.job.transition(StateRunning, KindNone, ""); err == nil {
			run.emitState(StateRunning, KindNone, "")
		}
	}

	records := make(chan string)
	discard := make(chan struct{})
	go readRecords(proc.Stderr(), records, discard)

	parser := ffmpeg.NewProgressParser(duration)
	tail := newTailBuffer(r.opts.StderrTailLines)
	ctxDone := ctx.Done()
	terminated := false

loop:
	for {
		select {
		case record, ok := <-records:
			if !ok {
				break loop
			}
			ev, ok := parser.Feed(record)
			if !ok {
				if !strings.Contains(record, "time=") {
					tail.Add(record)
				}
				continue
			}
			overall := run.overallPercent(pass.Number, passes, ev.Percent)
			run.job.setProgress(ev, overall)
			run.emitProgress(ctx, ev, pass.Number, passes)
		case <-ctxDone:
			ctxDone = nil
			terminated = true
			close(discard)
			logger.Info("stopping encoder", logging.Duration("grace", r.opts.CancelGrace))
			if err := proc.Terminate(r.opts.CancelGrace); err != nil {
				logger.Debug("terminate encoder", logging.Error(err))
			}
		}
	}

	waitErr := proc.Wait()
	if terminated || ctx.Err() != nil {
		return errCancelled
	}
	if waitErr != nil {
		reason := fmt.Sprintf("pass %d exited with %s", pass.Number, describeExit(waitErr))
		if summary := tail.Summary(maxReasonBytes); summary != "" {
			reason += ": " + summary
		}
		return fail(KindEncodingFailure, reason, waitErr)
	}
	logger.Debug("encoder pass finished")
	return nil
}

// readRecords forwards stderr records until EOF. Once discard is closed the
// remaining output is read and dropped so the writer never blocks.
func readRecords(stderr io.Reader, records chan<- string, discard <-chan struct{}) {
	defer close(records)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	scanner.Split(ffmpeg.ScanRecords)
	for scanner.Scan() {
		select {
		case records <- scanner.Text():
		case <-discard:
		}
	}
	if scanner.Err() != nil {
		_, _ = io.Copy(io.Discard, stderr)
	}
}

func (run *jobRun) overallPercent(pass, passes int, percent float64) float64 {
	overall := percent
	if passes > 1 {
		share := run.runner.opts.FirstPassShare
		if pass <= 1 {
			overall = share * percent
		} else {
			overall = share*100 + (1-share)*percent
		}
	}
	overall = math.Min(100, math.Max(0, overall))
	if overall < run.percent {
		overall = run.percent
	}
	run.percent = overall
	return overall
}

func (run *jobRun) validateOutput(ctx context.Context, source ffprobe.VideoInfo) *failure {
	r := run.runner
	info, err := r.fs.Stat(run.job.Output)
	if err != nil {
		return fail(KindEncodingFailure, "output missing", err)
	}
	if info.Size() == 0 {
		return fail(KindEncodingFailure, "output empty", nil)
	}
	run.job.setOutputSize(info.Size())

	if !r.opts.VerifyDuration || source.Duration <= 0 {
		return nil
	}
	out, err := r.prober.Probe(ctx, run.job.Output)
	if ctx.Err() != nil {
		return errCancelled
	}
	if err != nil {
		return fail(KindEncodingFailure, "output unreadable", err)
	}
	tolerance := r.opts.DurationTolerance.Seconds()
	if math.Abs(out.Duration-source.Duration) > tolerance {
		run.logger.Warn("output duration mismatch",
			logging.Alert("duration_mismatch"),
			logging.Float64("input_seconds", source.Duration),
			logging.Float64("output_seconds", out.Duration),
			logging.Duration("tolerance", r.opts.DurationTolerance),
		)
		return fail(KindEncodingFailure, fmt.Sprintf("output duration %.1fs differs from input %.1fs", out.Duration, source.Duration), nil)
	}
	return nil
}

func (run *jobRun) removePartialOutput() {
	if !run.outputTouched {
		return
	}
	err := run.runner.fs.Remove(run.job.Output)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(run.logger, "partial output not removed", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the partial file manually"),
			logging.String(logging.FieldImpact, "an incomplete file remains next to the output"),
		)
		return
	}
	run.job.setOutputSize(0)
}

// cleanupPassLogs removes every file whose name starts with the pass log
// prefix. Directory listing is used instead of globbing so file names with
// pattern characters are matched literally.
func (run *jobRun) cleanupPassLogs(prefix string) {
	dir, base := filepath.Split(prefix)
	if dir == "" {
		dir = "."
	}
	entries, err := run.runner.fs.ReadDir(dir)
	if err != nil {
		run.logger.Debug("list pass logs", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), base) {
			continue
		}
		if err := run.runner.fs.Remove(filepath.Join(dir, entry.Name())); err != nil {
			run.logger.Debug("remove pass log", logging.String("path", entry.Name()), logging.Error(err))
		}
	}
}

func (run *jobRun) finish(state State, kind Kind, reason string) {
	if err := run.job.transition(state, kind, reason); err != nil {
		run.logger.Warn("job state transition rejected", logging.Error(err))
		return
	}
	run.emitState(state, kind, reason)
}

func (run *jobRun) event(kind EventKind) Event {
	return Event{
		Kind:   kind,
		JobID:  run.job.ID,
		Input:  run.job.Input,
		Output: run.job.Output,
		Time:   time.Now(),
	}
}

func (run *jobRun) emitState(state State, kind Kind, reason string) {
	if run.sink == nil {
		return
	}
	ev := run.event(EventState)
	ev.State = state
	ev.Failure = kind
	ev.Reason = reason
	ev.Percent = run.percent
	ev.Snapshot = run.job.Snapshot()
	run.sink <- ev
}

func (run *jobRun) emitProgress(ctx context.Context, progress ffmpeg.ProgressEvent, pass, passes int) {
	if run.sink == nil {
		return
	}
	ev := run.event(EventProgress)
	ev.State = StateRunning
	ev.Progress = progress
	ev.Percent = run.percent
	ev.Pass = pass
	ev.Passes = passes
	select {
	case run.sink <- ev:
	case <-ctx.Done():
	}
}

// rootMessage strips the marker prefixes services.Wrap adds.
func rootMessage(err error) string {
	msg := err.Error()
	for _, marker := range []error{
		services.ErrInvalidSettings,
		services.ErrProbeFailure,
		services.ErrEncoderUnavailable,
		services.ErrEncodingFailure,
	} {
		msg = strings.TrimPrefix(msg, marker.Error()+": ")
	}
	return msg
}

func trimReason(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > maxReasonBytes {
		msg = msg[:maxReasonBytes] + "..."
	}
	return msg
}
