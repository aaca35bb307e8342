package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"mkvshrink/internal/batch"
)

func printSummary(w io.Writer, result batch.Result, settingsLabel string) {
	rows := make([][]string, 0, result.Len())
	var saved int64
	for _, e := range result.Entries() {
		saved += e.SpaceSaved()
		row := []string{filepath.Base(e.Input), string(e.Outcome), "-", "-", "-", "-", "-"}
		if e.InputSize > 0 {
			row[2] = formatBytes(e.InputSize)
		}
		if e.Outcome == batch.OutcomeSucceeded {
			row[3] = formatBytes(e.OutputSize)
			row[4] = formatRatio(e.Ratio())
			row[5] = formatSaved(e.SpaceSaved())
		}
		if e.Duration > 0 {
			row[6] = formatElapsed(e.Duration)
		}
		rows = append(rows, row)
	}

	fmt.Fprintln(w, renderTable(
		[]string{"File", "Result", "Input", "Output", "Ratio", "Saved", "Time"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	))

	in, out := result.Totals()
	succeeded := result.Count(batch.OutcomeSucceeded)
	if elapsed := result.Elapsed(); elapsed > 0 {
		fmt.Fprintln(w, printer.Sprintf("%d of %d files compressed in %s with %s",
			succeeded, result.Len(), formatElapsed(elapsed), settingsLabel))
	} else {
		fmt.Fprintln(w, printer.Sprintf("%d of %d files compressed with %s", succeeded, result.Len(), settingsLabel))
	}
	if succeeded > 0 {
		fmt.Fprintln(w, printer.Sprintf("Total: %s -> %s, saved %s (%d bytes)",
			formatBytes(in), formatBytes(out), formatSaved(saved), saved))
	}
	if n := result.Count(batch.OutcomeFailed); n > 0 {
		fmt.Fprintf(w, "%d failed\n", n)
	}
	if n := result.Count(batch.OutcomeSkipped); n > 0 {
		fmt.Fprintf(w, "%d skipped\n", n)
	}
	if n := result.Count(batch.OutcomeCancelled); n > 0 {
		fmt.Fprintf(w, "%d cancelled\n", n)
	}
}

type compressReport struct {
	BatchID     string        `json:"batch_id"`
	Settings    string        `json:"settings"`
	StartedAt   string        `json:"started_at"`
	FinishedAt  string        `json:"finished_at"`
	ElapsedMS   int64         `json:"elapsed_ms"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Cancelled   int           `json:"cancelled"`
	Skipped     int           `json:"skipped"`
	InputBytes  int64         `json:"input_bytes"`
	OutputBytes int64         `json:"output_bytes"`
	Entries     []entryReport `json:"entries"`
}

type entryReport struct {
	Input      string  `json:"input"`
	Output     string  `json:"output"`
	JobID      string  `json:"job_id,omitempty"`
	Outcome    string  `json:"outcome"`
	Kind       string  `json:"kind,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	InputSize  int64   `json:"input_size"`
	OutputSize int64   `json:"output_size"`
	Ratio      float64 `json:"ratio"`
	SpaceSaved int64   `json:"space_saved"`
	DurationMS int64   `json:"duration_ms"`
}

func newCompressReport(result batch.Result, settingsLabel string) compressReport {
	in, out := result.Totals()
	report := compressReport{
		BatchID:     result.BatchID,
		Settings:    settingsLabel,
		StartedAt:   result.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:  result.FinishedAt.UTC().Format(time.RFC3339),
		ElapsedMS:   result.Elapsed().Milliseconds(),
		Succeeded:   result.Count(batch.OutcomeSucceeded),
		Failed:      result.Count(batch.OutcomeFailed),
		Cancelled:   result.Count(batch.OutcomeCancelled),
		Skipped:     result.Count(batch.OutcomeSkipped),
		InputBytes:  in,
		OutputBytes: out,
	}
	for _, e := range result.Entries() {
		report.Entries = append(report.Entries, entryReport{
			Input:      e.Input,
			Output:     e.Output,
			JobID:      e.JobID,
			Outcome:    string(e.Outcome),
			Kind:       string(e.Kind),
			Reason:     e.Reason,
			InputSize:  e.InputSize,
			OutputSize: e.OutputSize,
			Ratio:      e.Ratio(),
			SpaceSaved: e.SpaceSaved(),
			DurationMS: e.Duration.Milliseconds(),
		})
	}
	return report
}
