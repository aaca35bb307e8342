package logging

import (
	"context"
	"log/slog"

	"mkvshrink/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldBatchID is the standardized structured logging key for batch identifiers.
	FieldBatchID = "batch_id"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for job stages (probe, pass 1, pass 2).
	FieldStage = "stage"
	// FieldInput is the standardized structured logging key for source media paths.
	FieldInput = "input"
	// FieldOutput is the standardized structured logging key for compressed output paths.
	FieldOutput = "output"
	// FieldEventType classifies a log line for filtering (e.g. job_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision recorded by DecisionAttrs.
	FieldDecisionType   = "decision_type"
	FieldDecisionResult = "decision_result"
	FieldDecisionReason = "decision_reason"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// WithContext tags logger with the batch id, job id and stage carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	logger = orDiscard(logger)
	if ctx == nil {
		return logger
	}
	var fields []Attr
	if id, ok := services.BatchIDFromContext(ctx); ok {
		fields = append(fields, String(FieldBatchID, id))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, String(FieldJobID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, String(FieldStage, stage))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
