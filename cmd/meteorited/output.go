package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TylerBrock/colorjson"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	cellStyle   = lipgloss.NewStyle()
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
)

const columnGap = 2

// printer writes command results either as colored JSON or as tables.
type printer struct {
	out  io.Writer
	json bool
}

func (p printer) printJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	formatter := colorjson.NewFormatter()
	formatter.Indent = 2
	formatter.DisabledColor = !isTerminal(p.out)
	formatted, err := formatter.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.out, string(formatted))
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// table renders rows under headers with every column padded to its widest
// cell.
func table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var b strings.Builder
	writeRow := func(style lipgloss.Style, cells []string) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			width := widths[i]
			if i < len(widths)-1 {
				width += columnGap
			}
			parts[i] = style.Width(width).Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " "))
		b.WriteByte('\n')
	}
	writeRow(headerStyle, headers)
	for _, row := range rows {
		writeRow(cellStyle, row)
	}
	return b.String()
}

func (p printer) printTable(headers []string, rows [][]string, footer string) error {
	if _, err := io.WriteString(p.out, table(headers, rows)); err != nil {
		return err
	}
	if footer != "" {
		_, err := fmt.Fprintln(p.out, dimStyle.Render(footer))
		return err
	}
	return nil
}
