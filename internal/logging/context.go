package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one pipeline run.
	FieldRunID = "run_id"
	// FieldSessionKey identifies the race session being processed.
	FieldSessionKey = "session_key"
	// FieldDriver is the driver number a line refers to.
	FieldDriver = "driver"
	// FieldEventType is a stable machine-readable name for the logged event.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	runIDKey      contextKey = "run_id"
	sessionKeyKey contextKey = "session_key"
)

// WithRunID annotates ctx with the pipeline run id.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// WithSessionKey annotates ctx with the session key.
func WithSessionKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKeyKey, key)
}

// WithContext returns logger tagged with the run id and session key carried
// by ctx. The console handler shows them as a "[session run]" prefix.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	fields := make([]Attr, 0, 2)
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if key, ok := ctx.Value(sessionKeyKey).(string); ok && key != "" {
		fields = append(fields, slog.String(FieldSessionKey, key))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
