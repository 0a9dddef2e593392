package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	stageKey     contextKey = "stage"
	phaseKey     contextKey = "phase"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with the task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withString(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, taskIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithPhase annotates context with the analysis phase name.
func WithPhase(ctx context.Context, phase string) context.Context {
	return withString(ctx, phaseKey, phase)
}

// PhaseFromContext returns the analysis phase name if present.
func PhaseFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, phaseKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
