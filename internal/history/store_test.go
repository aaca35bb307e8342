package history_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"mkvshrink/internal/batch"
	"mkvshrink/internal/config"
	"mkvshrink/internal/encoding"
	"mkvshrink/internal/history"
	"mkvshrink/internal/testsupport"
)

func openStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()
	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(batchID string, n int) batch.Result {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := make([]batch.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, batch.Entry{
			Input:      fmt.Sprintf("/videos/%s-%d.mp4", batchID, i),
			Output:     fmt.Sprintf("/videos/%s-%d_compressed.mkv", batchID, i),
			JobID:      fmt.Sprintf("%s-job-%d", batchID, i),
			Outcome:    batch.OutcomeSucceeded,
			InputSize:  1000,
			OutputSize: 400,
			Duration:   1500 * time.Millisecond,
		})
	}
	return batch.NewResult(batchID, start, start.Add(time.Minute), entries...)
}

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openStore(t, cfg)
	ctx := context.Background()

	res := batch.NewResult("b1", time.Now().Add(-time.Minute), time.Now(),
		batch.Entry{Input: "/in/a.mp4", Output: "/in/a_compressed.mkv", JobID: "j1", Outcome: batch.OutcomeSucceeded, InputSize: 1000, OutputSize: 250, Duration: 2 * time.Second},
		batch.Entry{Input: "/in/b.mp4", Output: "/in/b_compressed.mkv", JobID: "j2", Outcome: batch.OutcomeFailed, Kind: encoding.KindProbeFailure, Reason: "probe failed: moov atom not found", InputSize: 10},
		batch.Entry{Input: "/in/c.mp4", Output: "/in/c_compressed.mkv", Outcome: batch.OutcomeSkipped, Reason: "output exists"},
	)
	written, err := store.Record(ctx, res, "h264 crf=23 medium")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if written != 3 {
		t.Fatalf("expected 3 rows written, got %d", written)
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Input != "/in/c.mp4" || entries[2].Input != "/in/a.mp4" {
		t.Fatalf("expected newest first, got %q .. %q", entries[0].Input, entries[2].Input)
	}

	first := entries[2]
	if first.BatchID != "b1" || first.JobID != "j1" || first.Outcome != "succeeded" {
		t.Fatalf("unexpected entry: %+v", first)
	}
	if first.Duration != 2*time.Second || first.Settings != "h264 crf=23 medium" {
		t.Fatalf("unexpected duration/settings: %+v", first)
	}
	if first.SpaceSaved() != 750 || first.Ratio() != 0.25 {
		t.Fatalf("unexpected comparison: saved=%d ratio=%v", first.SpaceSaved(), first.Ratio())
	}
	if first.RecordedAt.IsZero() {
		t.Fatal("expected recorded_at to be parsed")
	}

	failed := entries[1]
	if failed.Kind != string(encoding.KindProbeFailure) || failed.Reason == "" {
		t.Fatalf("failure not preserved: %+v", failed)
	}
	if failed.SpaceSaved() != 0 || failed.Ratio() != 0 {
		t.Fatalf("failed entry should not report savings: %+v", failed)
	}
	if entries[0].JobID != "" {
		t.Fatalf("skipped entry should have no job id, got %q", entries[0].JobID)
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries with limit, got %d", len(limited))
	}

	byBatch, err := store.Batch(ctx, "b1")
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(byBatch) != 3 || byBatch[0].Input != "/in/a.mp4" {
		t.Fatalf("unexpected batch listing: %+v", byBatch)
	}
}

func TestRecordPrunesToMaxEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.History.MaxEntries = 5
	store := openStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Record(ctx, sampleResult(fmt.Sprintf("batch%d", i), 3), ""); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 entries after pruning, got %d", count)
	}
	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries[0].Input != "/videos/batch2-2.mp4" || entries[4].Input != "/videos/batch1-1.mp4" {
		t.Fatalf("oldest entries should be pruned, got %q .. %q", entries[0].Input, entries[4].Input)
	}
}

func TestResultRebuildsRecordedBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openStore(t, cfg)
	ctx := context.Background()

	finished := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	res := batch.NewResult("b9", finished.Add(-time.Minute), finished,
		batch.Entry{Input: "/in/a.mp4", Output: "/in/a_compressed.mkv", JobID: "j1", Outcome: batch.OutcomeSucceeded, InputSize: 1000, OutputSize: 250, Duration: 2 * time.Second},
		batch.Entry{Input: "/in/b.mp4", Output: "/in/b_compressed.mkv", JobID: "j2", Outcome: batch.OutcomeFailed, Kind: encoding.KindProbeFailure, Reason: "probe failed", InputSize: 10},
	)
	if _, err := store.Record(ctx, res, "h265 crf 28"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, label, err := store.Result(ctx, "b9")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if label != "h265 crf 28" {
		t.Fatalf("settings label = %q", label)
	}
	if diff := cmp.Diff(res.Entries(), got.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if !got.FinishedAt.Equal(finished) || got.Elapsed() != 0 {
		t.Fatalf("finished = %s elapsed = %s", got.FinishedAt, got.Elapsed())
	}

	if _, _, err := store.Result(ctx, "missing"); !errors.Is(err, history.ErrUnknownBatch) {
		t.Fatalf("expected ErrUnknownBatch, got %v", err)
	}
}

func TestRecordEmptyResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openStore(t, cfg)

	written, err := store.Record(context.Background(), batch.NewResult("empty", time.Now(), time.Now()), "")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if written != 0 {
		t.Fatalf("expected nothing written, got %d", written)
	}
}

func TestClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := openStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Record(ctx, sampleResult("b", 4), ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 removed, got %d", removed)
	}
	if count, _ := store.Count(ctx); count != 0 {
		t.Fatalf("expected empty history, got %d", count)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "history.db")
	store, err := history.OpenPath(path, 10)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := store.Record(context.Background(), sampleResult("persist", 2), ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := history.OpenPath(path, 10)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	count, err := reopened.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", count)
	}
}

func TestWriteLockRespectsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := history.OpenPath(path, 10)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer first.Close()

	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := first.Clear(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error while lock is held, got %v", err)
	}
}
