package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/testcases"
)

var resultColors = map[result.Result]*color.Color{ //nolint:gochecknoglobals
	result.Succeeded:   color.New(color.FgGreen),
	result.Failed:      color.New(color.FgRed),
	result.Unsupported: color.New(color.Faint),
}

// WriteText prints the test grid and the measurement grid. Rows are clients, columns are
// servers. A test cell has one line per result listing the abbreviations; a measurement cell
// has one line per measurement.
func WriteText(w io.Writer, m *result.Matrix, catalog []testcases.TestCase) {
	l := LayoutOf(m, catalog)
	if len(l.Tests) > 0 {
		writeGrid(w, l, func(server, client string) []coloredLine {
			cell, ok := l.testCell(m, server, client)
			if !ok {
				return nil
			}
			var lines []coloredLine
			for _, r := range resultOrder {
				if abbrs := cell[r]; len(abbrs) > 0 {
					lines = append(lines, coloredLine{r, r.Symbol() + "(" + strings.Join(abbrs, ",") + ")"})
				}
			}
			return lines
		})
	}
	if len(l.Measurements) > 0 {
		writeGrid(w, l, func(server, client string) []coloredLine {
			var lines []coloredLine
			for _, ml := range l.measurementCell(m, server, client) {
				text := ml.abbreviation + ": " + ml.result.Result.Symbol()
				if ml.result.Result == result.Succeeded {
					text = ml.abbreviation + ": " + ml.result.Details
				}
				lines = append(lines, coloredLine{ml.result.Result, text})
			}
			return lines
		})
	}
}

type coloredLine struct {
	result result.Result
	text   string
}

func writeGrid(w io.Writer, l Layout, cellFn func(server, client string) []coloredLine) {
	cells := make([][][]coloredLine, len(l.Clients))
	widths := make([]int, len(l.Servers)+1)
	for _, c := range l.Clients {
		widths[0] = max(widths[0], utf8.RuneCountInString(c))
	}
	for j, s := range l.Servers {
		widths[j+1] = utf8.RuneCountInString(s)
	}
	for i, c := range l.Clients {
		cells[i] = make([][]coloredLine, len(l.Servers))
		for j, s := range l.Servers {
			cells[i][j] = cellFn(s, c)
			for _, line := range cells[i][j] {
				widths[j+1] = max(widths[j+1], utf8.RuneCountInString(line.text))
			}
		}
	}

	separator := "+"
	for _, width := range widths {
		separator += strings.Repeat("-", width+2) + "+"
	}
	fmt.Fprintln(w, separator)
	header := "| " + pad("", widths[0]) + " |"
	for j, s := range l.Servers {
		header += " " + pad(s, widths[j+1]) + " |"
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, separator)

	for i, c := range l.Clients {
		height := 1
		for _, cell := range cells[i] {
			height = max(height, len(cell))
		}
		for row := 0; row < height; row++ {
			name := ""
			if row == 0 {
				name = c
			}
			fmt.Fprint(w, "| "+pad(name, widths[0])+" |")
			for j, cell := range cells[i] {
				fmt.Fprint(w, " ")
				if row < len(cell) {
					_, _ = resultColors[cell[row].result].Fprint(w, cell[row].text)
					fmt.Fprint(w, strings.Repeat(" ", widths[j+1]-utf8.RuneCountInString(cell[row].text)))
				} else {
					fmt.Fprint(w, strings.Repeat(" ", widths[j+1]))
				}
				fmt.Fprint(w, " |")
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, separator)
	}
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", width-utf8.RuneCountInString(s))
}
