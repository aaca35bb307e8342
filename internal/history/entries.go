package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mkvshrink/internal/batch"
	"mkvshrink/internal/encoding"
)

// ErrUnknownBatch reports a batch id with no recorded entries.
var ErrUnknownBatch = errors.New("no history for batch")

const entryColumns = "id, batch_id, job_id, input_path, output_path, outcome, failure_kind, reason, input_size, output_size, duration_ms, settings, recorded_at"

// Entry is one recorded batch entry.
type Entry struct {
	ID         int64
	BatchID    string
	JobID      string
	Input      string
	Output     string
	Outcome    string
	Kind       string
	Reason     string
	InputSize  int64
	OutputSize int64
	Duration   time.Duration
	Settings   string
	RecordedAt time.Time
}

// SpaceSaved is the byte difference between input and output.
func (e Entry) SpaceSaved() int64 {
	if e.Outcome != string(batch.OutcomeSucceeded) || e.OutputSize <= 0 {
		return 0
	}
	return e.InputSize - e.OutputSize
}

// Ratio is output over input size for succeeded entries.
func (e Entry) Ratio() float64 {
	if e.Outcome != string(batch.OutcomeSucceeded) || e.InputSize <= 0 {
		return 0
	}
	return float64(e.OutputSize) / float64(e.InputSize)
}

// Record stores every entry of res, labelled with the settings summary, then
// prunes the table to the configured maximum. It returns the rows written.
func (s *Store) Record(ctx context.Context, res batch.Result, settingsSummary string) (int, error) {
	ctx = ensureContext(ctx)
	entries := res.Entries()
	if len(entries) == 0 {
		return 0, nil
	}
	recordedAt := res.FinishedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	err := s.withWriteLock(ctx, func() error {
		return retryOnBusy(ctx, func() error {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback() }()

			stmt, err := tx.PrepareContext(ctx, `INSERT INTO history_entries
				(batch_id, job_id, input_path, output_path, outcome, failure_kind, reason, input_size, output_size, duration_ms, settings, recorded_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, e := range entries {
				if _, err := stmt.ExecContext(ctx,
					res.BatchID,
					nullableString(e.JobID),
					e.Input,
					e.Output,
					string(e.Outcome),
					nullableString(string(e.Kind)),
					nullableString(e.Reason),
					e.InputSize,
					e.OutputSize,
					e.Duration.Milliseconds(),
					nullableString(settingsSummary),
					recordedAt.UTC().Format(time.RFC3339Nano),
				); err != nil {
					return err
				}
			}
			return tx.Commit()
		})
	})
	if err != nil {
		return 0, fmt.Errorf("record history: %w", err)
	}

	if _, err := s.prune(ctx); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

// prune keeps only the newest maxEntries rows.
func (s *Store) prune(ctx context.Context) (int64, error) {
	if s.maxEntries <= 0 {
		return 0, nil
	}
	var removed int64
	err := s.withWriteLock(ctx, func() error {
		res, err := s.execWithRetry(ctx,
			`DELETE FROM history_entries WHERE id NOT IN (SELECT id FROM history_entries ORDER BY id DESC LIMIT ?)`,
			s.maxEntries)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return removed, nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + entryColumns + " FROM history_entries ORDER BY id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Batch returns the entries recorded for one batch in insertion order.
func (s *Store) Batch(ctx context.Context, batchID string) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM history_entries WHERE batch_id = ? ORDER BY id", batchID)
	if err != nil {
		return nil, fmt.Errorf("batch history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Result rebuilds the recorded batch and returns it with its settings
// summary. Only the finish time is stored, so the result has no elapsed time.
func (s *Store) Result(ctx context.Context, batchID string) (batch.Result, string, error) {
	rows, err := s.Batch(ctx, batchID)
	if err != nil {
		return batch.Result{}, "", err
	}
	if len(rows) == 0 {
		return batch.Result{}, "", fmt.Errorf("batch %s: %w", batchID, ErrUnknownBatch)
	}
	entries := make([]batch.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, batch.Entry{
			Input:      row.Input,
			Output:     row.Output,
			JobID:      row.JobID,
			Outcome:    batch.Outcome(row.Outcome),
			Kind:       encoding.Kind(row.Kind),
			Reason:     row.Reason,
			InputSize:  row.InputSize,
			OutputSize: row.OutputSize,
			Duration:   row.Duration,
		})
	}
	finished := rows[0].RecordedAt
	return batch.NewResult(batchID, finished, finished, entries...), rows[0].Settings, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM history_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return count, nil
}

// Clear removes every entry and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := s.withWriteLock(ctx, func() error {
		res, err := s.execWithRetry(ctx, "DELETE FROM history_entries")
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return removed, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry       Entry
		jobID       sql.NullString
		failureKind sql.NullString
		reason      sql.NullString
		settings    sql.NullString
		durationMS  int64
		recordedRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.BatchID,
		&jobID,
		&entry.Input,
		&entry.Output,
		&entry.Outcome,
		&failureKind,
		&reason,
		&entry.InputSize,
		&entry.OutputSize,
		&durationMS,
		&settings,
		&recordedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.JobID = jobID.String
	entry.Kind = failureKind.String
	entry.Reason = reason.String
	entry.Settings = settings.String
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	if recorded, err := parseTimeString(recordedRaw); err == nil {
		entry.RecordedAt = recorded
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
