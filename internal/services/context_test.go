package services_test

import (
	"context"
	"testing"

	"minutes/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTaskID(ctx, "task_20260101_120000_abcdef12")
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithPhase(ctx, "actions")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TaskIDFromContext(ctx); !ok || id != "task_20260101_120000_abcdef12" {
		t.Fatalf("unexpected task id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcribe" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if phase, ok := services.PhaseFromContext(ctx); !ok || phase != "actions" {
		t.Fatalf("unexpected phase: %v %v", phase, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	ctx = services.WithTaskID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.TaskIDFromContext(ctx); ok {
		t.Fatal("expected no task id value")
	}
}
