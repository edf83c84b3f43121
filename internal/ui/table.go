package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderTable formats rows as aligned columns. Column widths come from the
// widest cell, measured with lipgloss.Width so styled cells with ANSI escapes
// line up with plain ones. Headers are styled when color is on.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			b.WriteString(cell)
			if i < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		b.WriteString("\n")
	}

	styled := make([]string, len(headers))
	for i, h := range headers {
		styled[i] = RenderHeader(h)
	}
	writeRow(styled)
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// Truncate shortens s to max runes, appending an ellipsis when cut. URIs and
// type names can be arbitrarily long; list output keeps one line per row.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
