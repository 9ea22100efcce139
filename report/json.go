package report

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/testcases"
)

// JSONParams adds run information to the JSON report that the matrix doesn't carry.
type JSONParams struct {
	Implementations []registry.Implementation
	LogDir          string
	QUICVersion     string
}

// JSON renders the report: the run's time span, the servers and clients, their source URLs,
// the legend of test cases, and for every (server, client) pair a list of test results and a
// list of measurement results.
func JSON(m *result.Matrix, catalog []testcases.TestCase, params JSONParams) ([]byte, error) {
	l := LayoutOf(m, catalog)
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("start_time").Int(int(m.StartTime.Unix()))
	obj.Name("end_time").Int(int(m.EndTime.Unix()))
	obj.Maybe("log_dir", params.LogDir != "").String(params.LogDir)
	obj.Maybe("quic_version", params.QUICVersion != "").String(params.QUICVersion)
	writeStrings(obj.Name("servers"), l.Servers)
	writeStrings(obj.Name("clients"), l.Clients)

	urls := obj.Name("urls").Object()
	for _, impl := range params.Implementations {
		if impl.URL != "" {
			urls.Name(impl.Name).String(impl.URL)
		}
	}
	urls.End()

	tests := obj.Name("tests").Object()
	for _, tc := range append(append([]testcases.TestCase(nil), l.Tests...), l.Measurements...) {
		t := tests.Name(tc.Abbreviation).Object()
		t.Name("name").String(tc.Name)
		t.Name("desc").String(tc.Description)
		t.End()
	}
	tests.End()

	results := obj.Name("results").Array()
	for _, server := range l.Servers {
		for _, client := range l.Clients {
			cell := results.Array()
			for _, tc := range l.Tests {
				r, ok := m.Test(result.Key{Server: server, Client: client, Test: tc.Name})
				if !ok {
					continue
				}
				e := cell.Object()
				e.Name("abbr").String(tc.Abbreviation)
				e.Name("name").String(tc.Name)
				e.Name("result").String(string(r))
				e.End()
			}
			cell.End()
		}
	}
	results.End()

	measurements := obj.Name("measurements").Array()
	for _, server := range l.Servers {
		for _, client := range l.Clients {
			cell := measurements.Array()
			for _, tc := range l.Measurements {
				r, ok := m.Measurement(result.Key{Server: server, Client: client, Test: tc.Name})
				if !ok {
					continue
				}
				e := cell.Object()
				e.Name("abbr").String(tc.Abbreviation)
				e.Name("name").String(tc.Name)
				e.Name("result").String(string(r.Result))
				e.Name("details").String(r.Details)
				e.End()
			}
			cell.End()
		}
	}
	measurements.End()

	obj.End()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func writeStrings(w *jwriter.Writer, values []string) {
	arr := w.Array()
	for _, v := range values {
		arr.String(v)
	}
	arr.End()
}
