package orchestrator

import (
	"errors"
	"fmt"
)

// ErrTimeout is wrapped by the error of a run whose client didn't exit in time.
var ErrTimeout = errors.New("TIMEOUT")

// OrchestrationError means the stack could not be prepared, started or observed, as opposed to
// an endpoint misbehaving.
type OrchestrationError struct {
	Op  string
	Err error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed during %s: %s", e.Op, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

// ExitError reports an endpoint that exited with a failure code.
type ExitError struct {
	Role string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Role, e.Code)
}
