// Package report renders a results matrix as a text grid, as Markdown, or as a JSON document.
// Rendering is a pure function of the matrix and the catalog; nothing here runs tests.
package report

import (
	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/testcases"
)

// Layout is the shape of a grid: the servers and clients that appear in the matrix, in the
// order they were run, and the catalog entries that have at least one cell.
type Layout struct {
	Servers      []string
	Clients      []string
	Tests        []testcases.TestCase
	Measurements []testcases.TestCase
}

// LayoutOf derives the grid shape of m. Catalog entries without any cell are left out.
func LayoutOf(m *result.Matrix, catalog []testcases.TestCase) Layout {
	var l Layout
	seenServer, seenClient, seenTest := map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, k := range m.Keys() {
		if !seenServer[k.Server] {
			seenServer[k.Server] = true
			l.Servers = append(l.Servers, k.Server)
		}
		if !seenClient[k.Client] {
			seenClient[k.Client] = true
			l.Clients = append(l.Clients, k.Client)
		}
		seenTest[k.Test] = true
	}
	for _, tc := range catalog {
		if !seenTest[tc.Name] {
			continue
		}
		if tc.IsMeasurement() {
			l.Measurements = append(l.Measurements, tc)
		} else {
			l.Tests = append(l.Tests, tc)
		}
	}
	return l
}

// testCell groups the abbreviations of one pair's tests by result.
type testCell map[result.Result][]string

func (l Layout) testCell(m *result.Matrix, server, client string) (testCell, bool) {
	cell := testCell{}
	found := false
	for _, tc := range l.Tests {
		r, ok := m.Test(result.Key{Server: server, Client: client, Test: tc.Name})
		if !ok {
			continue
		}
		found = true
		cell[r] = append(cell[r], tc.Abbreviation)
	}
	return cell, found
}

type measurementLine struct {
	abbreviation string
	result       result.MeasurementResult
}

func (l Layout) measurementCell(m *result.Matrix, server, client string) []measurementLine {
	var ret []measurementLine
	for _, tc := range l.Measurements {
		r, ok := m.Measurement(result.Key{Server: server, Client: client, Test: tc.Name})
		if ok {
			ret = append(ret, measurementLine{tc.Abbreviation, r})
		}
	}
	return ret
}

var resultOrder = []result.Result{result.Succeeded, result.Unsupported, result.Failed} //nolint:gochecknoglobals
