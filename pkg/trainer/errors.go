package trainer

import (
	"errors"
	"fmt"
)

// ErrWeightsNotFound indicates an explicitly requested weight file is missing.
var ErrWeightsNotFound = errors.New("weight file not found")

// ExitError reports a trainer process that ran and exited unsuccessfully.
// It is distinct from errors raised while preparing the run.
type ExitError struct {
	// Code is the trainer's exit status, or -1 if it was killed by a signal.
	Code    int
	Command string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("trainer terminated: %v", e.Err)
	}
	return fmt.Sprintf("trainer exited with status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// IsExitError returns true if err came from the trainer process itself.
func IsExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}
