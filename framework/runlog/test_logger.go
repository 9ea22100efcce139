package runlog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/quic-interop/interop-harness/framework"
	"github.com/quic-interop/interop-harness/framework/result"
)

var consoleTestErrorColor = color.New(color.FgYellow)              //nolint:gochecknoglobals
var consoleTestFailedColor = color.New(color.FgRed)                //nolint:gochecknoglobals
var consoleTestSkippedColor = color.New(color.Faint, color.FgBlue) //nolint:gochecknoglobals
var consoleUnsupportedColor = color.New(color.FgCyan)              //nolint:gochecknoglobals
var consoleDebugOutputColor = color.New(color.Faint)               //nolint:gochecknoglobals
var allTestsPassedColor = color.New(color.FgGreen)                 //nolint:gochecknoglobals

// TestLogger receives progress information about every triple of the run.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, r result.Result, details string, debugOutput framework.CapturedOutput)
	TestSkipped(id TestID, reason string)
	EndLog(m *result.Matrix) error
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID)                                                 {}
func (n nullTestLogger) TestError(TestID, error)                                            {}
func (n nullTestLogger) TestFinished(TestID, result.Result, string, framework.CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestID, string)                                         {}
func (n nullTestLogger) EndLog(*result.Matrix) error                                        { return nil }

// NullTestLogger discards everything.
func NullTestLogger() TestLogger { return nullTestLogger{} }

// ConsoleTestLogger prints one line per triple, plus the captured debug output of the attempt
// depending on the debug options.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Printf("[%s]\n", id)
}

func (c ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = consoleTestErrorColor.Printf("  %s\n", line)
	}
}

func (c ConsoleTestLogger) TestFinished(
	id TestID,
	r result.Result,
	details string,
	debugOutput framework.CapturedOutput,
) {
	switch r {
	case result.Failed:
		_, _ = consoleTestFailedColor.Printf("  FAILED: %s\n", id)
	case result.Unsupported:
		if details == "" {
			_, _ = consoleUnsupportedColor.Printf("  UNSUPPORTED: %s\n", id)
		} else {
			_, _ = consoleUnsupportedColor.Printf("  UNSUPPORTED: %s (%s)\n", id, details)
		}
	default:
		if details != "" {
			fmt.Printf("  %s\n", details)
		}
	}
	failed := r == result.Failed
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		_, _ = consoleDebugOutputColor.Println(debugOutput.ToString("    DEBUG "))
	}
}

func (c ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		_, _ = consoleTestSkippedColor.Printf("  SKIPPED: %s\n", id)
	} else {
		_, _ = consoleTestSkippedColor.Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}

func (c ConsoleTestLogger) EndLog(m *result.Matrix) error {
	PrintResults(os.Stdout, m)
	return nil
}

// MultiTestLogger fans every call out to several loggers.
type MultiTestLogger struct {
	Loggers []TestLogger
}

func (m *MultiTestLogger) TestStarted(id TestID) {
	for _, l := range m.Loggers {
		l.TestStarted(id)
	}
}

func (m *MultiTestLogger) TestError(id TestID, err error) {
	for _, l := range m.Loggers {
		l.TestError(id, err)
	}
}

func (m *MultiTestLogger) TestFinished(
	id TestID,
	r result.Result,
	details string,
	debugOutput framework.CapturedOutput,
) {
	for _, l := range m.Loggers {
		l.TestFinished(id, r, details, debugOutput)
	}
}

func (m *MultiTestLogger) TestSkipped(id TestID, reason string) {
	for _, l := range m.Loggers {
		l.TestSkipped(id, reason)
	}
}

// EndLog calls every logger even if one of them fails.
func (m *MultiTestLogger) EndLog(matrix *result.Matrix) error {
	var errs *multierror.Error
	for _, l := range m.Loggers {
		if err := l.EndLog(matrix); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// PrintResults writes the summary line, or the list of failed triples.
func PrintResults(out io.Writer, m *result.Matrix) {
	failures := m.Failures()
	if len(failures) == 0 {
		_, _ = allTestsPassedColor.Fprintln(out, "No test case failed")
		return
	}
	_, _ = consoleTestFailedColor.Fprintf(out, "FAILED TEST CASES (%d):\n", len(failures))
	for _, k := range failures {
		_, _ = consoleTestFailedColor.Fprintf(out, "  * %s\n", k)
	}
}
