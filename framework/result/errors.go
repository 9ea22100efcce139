package result

import "errors"

// ErrUnsupported marks an attempt in which an endpoint signalled that it does not implement the
// requested test case. Wrap it to add which endpoint said so.
var ErrUnsupported = errors.New("test case not supported")

// SkipError explains why a cell was recorded without being executed.
type SkipError struct {
	Reason string
}

func (e SkipError) Error() string { return e.Reason }

// TransferFailedSkip is recorded for every measurement of a pair whose Transfer test failed.
var TransferFailedSkip = SkipError{Reason: "Test skipped because the transfer test failed."} //nolint:gochecknoglobals

// Classify maps the error returned for one attempt to its Result and a human-readable detail.
// A nil error is a success. Endpoint refusals and skips are UNSUPPORTED; everything else,
// including internal errors, timeouts and trace violations, is FAILED.
func Classify(err error) (Result, string) {
	if err == nil {
		return Succeeded, ""
	}
	var skip SkipError
	if errors.Is(err, ErrUnsupported) || errors.As(err, &skip) {
		return Unsupported, err.Error()
	}
	return Failed, err.Error()
}
