package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/testcases"
)

// WriteMarkdown writes the grids as Markdown tables followed by a legend of abbreviations.
func WriteMarkdown(w io.Writer, m *result.Matrix, catalog []testcases.TestCase) {
	l := LayoutOf(m, catalog)
	if len(l.Tests) > 0 {
		fmt.Fprintln(w, "## Test cases")
		fmt.Fprintln(w)
		writeMarkdownTable(w, l, func(server, client string) string {
			cell, ok := l.testCell(m, server, client)
			if !ok {
				return ""
			}
			var parts []string
			for _, r := range resultOrder {
				if abbrs := cell[r]; len(abbrs) > 0 {
					parts = append(parts, r.Symbol()+"("+strings.Join(abbrs, ",")+")")
				}
			}
			return strings.Join(parts, "<br>")
		})
	}
	if len(l.Measurements) > 0 {
		fmt.Fprintln(w, "## Measurements")
		fmt.Fprintln(w)
		writeMarkdownTable(w, l, func(server, client string) string {
			var parts []string
			for _, ml := range l.measurementCell(m, server, client) {
				if ml.result.Result == result.Succeeded {
					parts = append(parts, ml.abbreviation+": "+ml.result.Details)
				} else {
					parts = append(parts, ml.abbreviation+": "+ml.result.Result.Symbol())
				}
			}
			return strings.Join(parts, "<br>")
		})
	}
	for _, tc := range append(append([]testcases.TestCase(nil), l.Tests...), l.Measurements...) {
		fmt.Fprintf(w, "* **%s** (%s): %s\n", tc.Abbreviation, tc.Name, tc.Description)
	}
}

func writeMarkdownTable(w io.Writer, l Layout, cellFn func(server, client string) string) {
	fmt.Fprint(w, "| |")
	for _, s := range l.Servers {
		fmt.Fprintf(w, " %s |", escapeMarkdown(s))
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, "|---|")
	for range l.Servers {
		fmt.Fprint(w, "---|")
	}
	fmt.Fprintln(w)
	for _, c := range l.Clients {
		fmt.Fprintf(w, "| **%s** |", escapeMarkdown(c))
		for _, s := range l.Servers {
			fmt.Fprintf(w, " %s |", cellFn(s, c))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
