package trace

import "fmt"

// AssertionError reports a protocol invariant that the captured packets do not satisfy.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return e.Message }

// Violation builds an AssertionError from a format string.
func Violation(format string, args ...interface{}) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}
