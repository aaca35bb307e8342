package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mkvshrink/internal/batch"
	"mkvshrink/internal/config"
	"mkvshrink/internal/deps"
	"mkvshrink/internal/encoding"
	"mkvshrink/internal/fileutil"
	"mkvshrink/internal/history"
	"mkvshrink/internal/logging"
	"mkvshrink/internal/media/ffprobe"
	"mkvshrink/internal/notifications"
	"mkvshrink/internal/preflight"
	"mkvshrink/internal/services"
	"mkvshrink/internal/services/ffmpeg"
	"mkvshrink/internal/settings"
)

type compressOptions struct {
	settingsFlags

	output       string
	outputDir    string
	recursive    bool
	dryRun       bool
	jobs         int
	failFast     bool
	keepPartial  bool
	overwrite    bool
	skipExisting bool
	verify       bool
	ffmpegPath   string
	jsonOutput   bool
}

func newCompressCommand(ctx *commandContext) *cobra.Command {
	opts := &compressOptions{}

	cmd := &cobra.Command{
		Use:   "compress <input>...",
		Short: "Compress video files into MKV",
		Long: `Compress one or more video files with ffmpeg.

Inputs may be files, directories (add --recursive to descend) or glob
patterns. Outputs default to <name>_compressed.mkv next to each input, or in
--output-dir when given. An existing output is never overwritten unless
--overwrite is set; a numbered sibling is written instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompress(cmd, ctx, opts, args)
		},
	}

	opts.settingsFlags.register(cmd)
	fs := cmd.Flags()
	fs.StringVarP(&opts.output, "output", "o", "", "Output file (single input only)")
	fs.StringVarP(&opts.outputDir, "output-dir", "d", "", "Directory for outputs")
	fs.BoolVarP(&opts.recursive, "recursive", "r", false, "Descend into input directories")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the ffmpeg commands without running them")
	fs.IntVarP(&opts.jobs, "jobs", "j", 0, "Files to encode in parallel (default from config)")
	fs.BoolVar(&opts.failFast, "fail-fast", false, "Stop dispatching after the first failure")
	fs.BoolVar(&opts.keepPartial, "keep-partial", false, "Keep partial outputs of cancelled encodes")
	fs.BoolVar(&opts.overwrite, "overwrite", false, "Replace existing outputs")
	fs.BoolVar(&opts.skipExisting, "skip-existing", false, "Skip inputs whose output already exists")
	fs.BoolVar(&opts.verify, "verify", false, "Re-probe outputs and compare durations")
	fs.StringVar(&opts.ffmpegPath, "ffmpeg-path", "", "ffmpeg binary to use")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print the batch summary as JSON")
	cmd.MarkFlagsMutuallyExclusive("output", "output-dir")
	cmd.MarkFlagsMutuallyExclusive("overwrite", "skip-existing")

	return cmd
}

func runCompress(cmd *cobra.Command, ctx *commandContext, opts *compressOptions, args []string) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	s, err := ctx.resolveSettings(cmd, &opts.settingsFlags)
	if err != nil {
		return err
	}

	inputs, err := fileutil.DiscoverInputs(args, opts.recursive)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no video files found (recognized extensions: %s)", strings.Join(fileutil.VideoExtensions(), " "))
	}
	pairs, err := planPairs(cfg, opts, inputs)
	if err != nil {
		return err
	}

	ffmpegPath := strings.TrimSpace(opts.ffmpegPath)
	if ffmpegPath == "" {
		ffmpegPath = cfg.Encoder.FFmpegPath
	}
	prober := ffprobe.Prober{Binary: cfg.FFprobeBinary()}

	if opts.dryRun {
		return printDryRun(cmd, pairs, s, opts.overwrite, ffmpegPath, prober)
	}

	logger, err := ctx.loggerFor(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	warnDiskSpace(cmd.ErrOrStderr(), logger, cfg, s, pairs)

	locks, err := lockOutputDirs(cfg.Paths.StateDir, pairs)
	if err != nil {
		return err
	}
	defer releaseLocks(locks)

	runnerOpts := encoding.DefaultOptions()
	runnerOpts.CancelGrace = cfg.CancelGrace()
	runnerOpts.DiscardPartialOnCancel = cfg.Batch.DiscardPartialOnCancel && !opts.keepPartial
	runnerOpts.FirstPassShare = cfg.Batch.FirstPassShare
	runnerOpts.VerifyDuration = cfg.Validation.VerifyDuration || opts.verify
	runnerOpts.DurationTolerance = cfg.DurationTolerance()
	runner := encoding.NewRunner(encoding.Dependencies{
		Prober:  prober,
		Locator: deps.NewLocator(ffmpegPath),
		Logger:  logger,
	}, runnerOpts)

	batchOpts := batch.DefaultOptions()
	batchOpts.Concurrency = cfg.Batch.Concurrency
	if opts.jobs > 0 {
		batchOpts.Concurrency = opts.jobs
	}
	batchOpts.ContinueOnError = cfg.Batch.ContinueOnError && !opts.failFast
	batchOpts.Overwrite = cfg.Batch.Overwrite || opts.overwrite
	batchOpts.SkipExisting = (cfg.Batch.SkipExisting || opts.skipExisting) && !opts.overwrite
	coord := batch.New(runner, nil, batchOpts, logger)

	notifier := notifications.NewService(cfg)
	runCtx := cmd.Context()
	b, err := coord.Submit(runCtx, pairs, s)
	if err != nil {
		return err
	}

	view := newProgressView(cmd.ErrOrStderr(), pairs, opts.jsonOutput || ctx.flags.quiet)
	stream, unsubscribe := b.Subscribe(0)
	for env := range stream {
		view.handle(env.Value)
	}
	unsubscribe()
	result := b.Wait()
	view.finish()

	recordHistory(runCtx, cfg, logger, result, s)
	sendNotifications(runCtx, cfg, logger, notifier, result)

	if opts.jsonOutput {
		if err := writeJSON(cmd, newCompressReport(result, s.String())); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), result, s.String())
	}

	if err := runCtx.Err(); err != nil {
		return fmt.Errorf("compression interrupted: %w", err)
	}
	if failed := result.Count(batch.OutcomeFailed); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, result.Len())
	}
	if cancelled := result.Count(batch.OutcomeCancelled); cancelled > 0 {
		return fmt.Errorf("%d of %d files were not compressed", cancelled, result.Len())
	}
	return nil
}

// planPairs maps inputs to their requested outputs before collision
// resolution.
func planPairs(cfg *config.Config, opts *compressOptions, inputs []string) ([]batch.Pair, error) {
	if output := strings.TrimSpace(opts.output); output != "" {
		if len(inputs) != 1 {
			return nil, fmt.Errorf("--output needs exactly one input, got %d (use --output-dir)", len(inputs))
		}
		expanded, err := config.ExpandPath(output)
		if err != nil {
			return nil, err
		}
		return []batch.Pair{{Input: inputs[0], Output: fileutil.EnsureMKV(expanded)}}, nil
	}

	dir := cfg.Paths.OutputDir
	if flagDir := strings.TrimSpace(opts.outputDir); flagDir != "" {
		expanded, err := config.ExpandPath(flagDir)
		if err != nil {
			return nil, err
		}
		dir = expanded
	}
	pairs := make([]batch.Pair, 0, len(inputs))
	for _, input := range inputs {
		pairs = append(pairs, batch.Pair{
			Input:  input,
			Output: fileutil.DefaultOutputPath(input, dir, cfg.Batch.OutputSuffix),
		})
	}
	return pairs, nil
}

func printDryRun(cmd *cobra.Command, pairs []batch.Pair, s settings.Settings, overwrite bool, ffmpegPath string, prober ffprobe.Prober) error {
	binary, err := deps.LocateFFmpeg(ffmpegPath)
	if err != nil {
		binary = "ffmpeg"
	}
	out := cmd.OutOrStdout()
	resolver := fileutil.NewPathResolver(nil)
	for _, p := range pairs {
		resolver.Reserve(p.Input)
	}
	for _, p := range pairs {
		output, err := resolver.Claim(p.Output, overwrite)
		if err != nil {
			return err
		}
		var duration float64
		if s.TargetSizeBytes() > 0 {
			if info, err := prober.Probe(cmd.Context(), p.Input); err == nil {
				duration = info.Duration
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s: duration unknown, target size ignored: %v\n", p.Input, err)
			}
		}
		inv, err := ffmpeg.BuildInvocation(ffmpeg.BuildRequest{
			Input:           p.Input,
			Output:          output,
			Settings:        s,
			DurationSeconds: duration,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, inv.CommandLine(binary))
	}
	return nil
}

func warnDiskSpace(w io.Writer, logger *slog.Logger, cfg *config.Config, s settings.Settings, pairs []batch.Pair) {
	targets := make([]preflight.Target, 0, len(pairs))
	for _, p := range pairs {
		var size int64
		if info, err := os.Stat(p.Input); err == nil {
			size = info.Size()
		}
		targets = append(targets, preflight.Target{
			Output:   p.Output,
			Estimate: settings.EstimateOutputSize(s, size, 0, 0, 0),
		})
	}
	for _, r := range preflight.Failed(preflight.CheckOutputs(targets, cfg.Validation.MinFreeSpaceMB<<20)) {
		fmt.Fprintf(w, "Warning: %s: %s\n", r.Name, r.Detail)
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "encodes may fail part way"),
		)
	}
}

// lockOutputDirs takes one lock per output directory so two invocations
// never write into the same directory at once. Lock files live in the state
// directory, keyed by the directory path.
func lockOutputDirs(stateDir string, pairs []batch.Pair) ([]*flock.Flock, error) {
	lockDir := filepath.Join(stateDir, "locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	seen := make(map[string]struct{})
	var locks []*flock.Flock
	for _, p := range pairs {
		dir, err := filepath.Abs(filepath.Dir(p.Output))
		if err != nil {
			releaseLocks(locks)
			return nil, err
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		name := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+dir)).String() + ".lock"
		lock := flock.New(filepath.Join(lockDir, name))
		locked, err := lock.TryLock()
		if err != nil {
			releaseLocks(locks)
			return nil, fmt.Errorf("lock output directory %s: %w", dir, err)
		}
		if !locked {
			releaseLocks(locks)
			return nil, services.Wrap(services.ErrValidation, "compress", "lock", fmt.Sprintf("another mkvshrink batch is writing to %s", dir), nil)
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

func releaseLocks(locks []*flock.Flock) {
	for _, lock := range locks {
		_ = lock.Unlock()
	}
}

func recordHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger, result batch.Result, s settings.Settings) {
	if !cfg.History.Enabled {
		return
	}
	ctx = context.WithoutCancel(ctx)
	store, err := history.Open(cfg)
	if err != nil {
		logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "batch is not recorded in history"),
		)
		return
	}
	defer store.Close()
	if _, err := store.Record(ctx, result, s.String()); err != nil {
		logging.WarnWithContext(logger, "history write failed", "history_record_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "batch is not recorded in history"),
		)
	}
}

// sendNotifications reports each failed entry and then the batch. It runs
// once the event stream is drained so a slow ntfy server never stalls
// the coordinator.
func sendNotifications(ctx context.Context, cfg *config.Config, logger *slog.Logger, notifier notifications.Service, result batch.Result) {
	for _, e := range result.Entries() {
		if e.Outcome != batch.OutcomeFailed {
			continue
		}
		notify(ctx, cfg, logger, func(ctx context.Context) error {
			return notifier.NotifyJobFailed(ctx, e.Input, e.Reason)
		})
	}
	notify(ctx, cfg, logger, func(ctx context.Context) error {
		return notifier.NotifyBatchCompleted(ctx, batchSummary(result))
	})
}

func notify(ctx context.Context, cfg *config.Config, logger *slog.Logger, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.NotificationTimeout())
	defer cancel()
	if err := send(ctx); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func batchSummary(result batch.Result) notifications.BatchSummary {
	saved := int64(0)
	for _, e := range result.Entries() {
		saved += e.SpaceSaved()
	}
	return notifications.BatchSummary{
		Succeeded:  result.Count(batch.OutcomeSucceeded),
		Failed:     result.Count(batch.OutcomeFailed),
		Cancelled:  result.Count(batch.OutcomeCancelled),
		Skipped:    result.Count(batch.OutcomeSkipped),
		SpaceSaved: saved,
		Elapsed:    result.Elapsed(),
	}
}
