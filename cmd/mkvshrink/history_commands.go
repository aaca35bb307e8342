package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mkvshrink/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the record of past compressions",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				entries, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, historyJSON(entries))
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No history yet")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					detail := e.Reason
					if e.Outcome == "succeeded" {
						detail = fmt.Sprintf("%s -> %s (%s)", formatBytes(e.InputSize), formatBytes(e.OutputSize), formatRatio(e.Ratio()))
					}
					rows = append(rows, []string{
						humanize.Time(e.RecordedAt),
						filepath.Base(e.Input),
						e.Outcome,
						detail,
						formatElapsed(e.Duration),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"When", "File", "Result", "Detail", "Time"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show the summary of one recorded batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				result, label, err := store.Result(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, newCompressReport(result, label))
				}
				printSummary(cmd.OutOrStdout(), result, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every history entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), printer.Sprintf("Cleared %d history entries", removed))
				return nil
			})
		},
	}
}

type historyEntryJSON struct {
	ID         int64   `json:"id"`
	BatchID    string  `json:"batch_id"`
	JobID      string  `json:"job_id,omitempty"`
	Input      string  `json:"input"`
	Output     string  `json:"output"`
	Outcome    string  `json:"outcome"`
	Kind       string  `json:"kind,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	InputSize  int64   `json:"input_size"`
	OutputSize int64   `json:"output_size"`
	Ratio      float64 `json:"ratio"`
	DurationMS int64   `json:"duration_ms"`
	Settings   string  `json:"settings,omitempty"`
	RecordedAt string  `json:"recorded_at"`
}

func historyJSON(entries []history.Entry) []historyEntryJSON {
	out := make([]historyEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryJSON{
			ID:         e.ID,
			BatchID:    e.BatchID,
			JobID:      e.JobID,
			Input:      e.Input,
			Output:     e.Output,
			Outcome:    e.Outcome,
			Kind:       e.Kind,
			Reason:     e.Reason,
			InputSize:  e.InputSize,
			OutputSize: e.OutputSize,
			Ratio:      e.Ratio(),
			DurationMS: e.Duration.Milliseconds(),
			Settings:   e.Settings,
			RecordedAt: e.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
