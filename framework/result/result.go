// Package result defines the classified outcome of one (server, client, test case) triple and
// the append-only matrix that collects outcomes for a whole interop run.
package result

import "fmt"

// Result is the terminal classification of one triple.
type Result string

const (
	Succeeded   Result = "succeeded"
	Failed      Result = "failed"
	Unsupported Result = "unsupported"
)

// Symbol is the single-character form used in rendered grids.
func (r Result) Symbol() string {
	switch r {
	case Succeeded:
		return "✓"
	case Failed:
		return "✕"
	case Unsupported:
		return "?"
	default:
		return "!"
	}
}

// Valid returns true for the three defined results.
func (r Result) Valid() bool {
	return r == Succeeded || r == Failed || r == Unsupported
}

// MeasurementResult is the outcome of a measurement. Details holds the formatted value or
// summary on success, or an explanation when the measurement was skipped.
type MeasurementResult struct {
	Result  Result
	Details string
}

// Key identifies one cell of the matrix.
type Key struct {
	Server string
	Client string
	Test   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Server, k.Client, k.Test)
}
