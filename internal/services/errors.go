package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Markers classify failures across the system. Wrap tags an error with one of
// them so callers can branch with errors.Is without parsing messages.
var (
	// ErrValidation marks an input rejected before any model work ran.
	ErrValidation = errors.New("validation error")
	// ErrStageFailure marks a fatal pipeline stage error.
	ErrStageFailure = errors.New("stage failure")
	// ErrPhaseFailure marks a failed analysis phase. It never aborts a run.
	ErrPhaseFailure = errors.New("phase failure")
	// ErrPersistence marks a failed write to the result or history store.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotFound marks a lookup for an unknown task or result.
	ErrNotFound      = errors.New("not found")
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a short stable label for the marker carried by err. It is used
// for metric labels and API error payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrPhaseFailure):
		return "phase_failure"
	case errors.Is(err, ErrStageFailure):
		return "stage_failure"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
