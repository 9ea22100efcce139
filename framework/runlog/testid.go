// Package runlog reports the progress of an interop run: it names each (server, client, test)
// triple with a TestID, selects triples with regex filters, and sends start/finish events to
// TestLogger implementations for the console and for JUnit XML.
package runlog

import (
	"strings"

	"github.com/quic-interop/interop-harness/framework/result"
)

// TestID is the path-like name of a triple: server, client, test case.
type TestID []string

// IDFor builds the TestID of a matrix cell.
func IDFor(key result.Key) TestID {
	return TestID{key.Server, key.Client, key.Test}
}

func (t TestID) String() string {
	return strings.Join(t, "/")
}

func (t TestID) Plus(name string) TestID {
	return append(append(TestID(nil), t...), name)
}

// Key converts a full three-part TestID back to a matrix key. ok is false for partial IDs.
func (t TestID) Key() (result.Key, bool) {
	if len(t) != 3 {
		return result.Key{}, false
	}
	return result.Key{Server: t[0], Client: t[1], Test: t[2]}, true
}
