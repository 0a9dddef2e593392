package pipeline

import (
	"fmt"

	"minutes/internal/services"
)

// StageError reports the stage that ended a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap exposes both the stage failure marker and the underlying cause.
func (e *StageError) Unwrap() []error {
	return []error{services.ErrStageFailure, e.Err}
}
