package main

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7a8599"))
)

// lotTable buffers rows so column widths fit the widest cell before anything is printed.
type lotTable struct {
	headers []string
	rows    [][]string
}

func newLotTable(headers ...string) *lotTable {
	return &lotTable{headers: headers}
}

func (t *lotTable) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *lotTable) render() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	total := len(widths) - 1
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}

	var sb strings.Builder
	t.line(&sb, headerStyle, widths, t.headers)
	sb.WriteString(ruleStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")
	for _, row := range t.rows {
		t.line(&sb, cellStyle, widths, row)
	}
	return sb.String()
}

func (t *lotTable) line(sb *strings.Builder, style lipgloss.Style, widths []int, cells []string) {
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		sb.WriteString(style.Width(widths[i]).Render(cell))
		if i < len(widths)-1 {
			sb.WriteString(ruleStyle.Render("|"))
		}
	}
	sb.WriteString("\n")
}

func (t *lotTable) writeTo(w io.Writer) error {
	_, err := io.WriteString(w, t.render())
	return err
}
