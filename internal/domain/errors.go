package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrTemplateNotFound      = errors.New("workflow template not found")
	ErrInvalidSlot           = errors.New("workflow template slot invalid")
	ErrSubmissionRejected    = errors.New("compute submission rejected")
	ErrRemoteExecution       = errors.New("remote execution failed")
	ErrTimeout               = errors.New("timed out waiting for compute job")
	ErrInconsistentFrameSize = errors.New("inconsistent frame size")
	ErrBatchTooLarge         = errors.New("batch too large")
)

// GenerationError is the single outward failure shape of the coordinator.
// Reason is a short stable string suitable for persistence; Detail carries
// the human-readable cause. It unwraps to the underlying sentinel so callers
// can still classify with errors.Is.
type GenerationError struct {
	Reason string
	Detail string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("generation failed (%s)", e.Reason)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Reason, e.Detail)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError wraps err with a stable reason tag.
func NewGenerationError(reason string, err error) *GenerationError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &GenerationError{Reason: reason, Detail: detail, Err: err}
}
