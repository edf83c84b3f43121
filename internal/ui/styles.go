// Package ui provides terminal styling for trellis CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette; light and dark variants are picked by the terminal
// background.
var (
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6",
		Dark:  "#59c2ff",
	}
	ColorGood = lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49",
		Dark:  "#ffb454",
	}
	ColorBad = lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	}
)

var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	GoodStyle   = lipgloss.NewStyle().Foreground(ColorGood)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	BadStyle    = lipgloss.NewStyle().Foreground(ColorBad)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	IDStyle     = lipgloss.NewStyle().Bold(true)
)

// stateStyles maps artifact and execution lifecycle states to a style. States
// not listed render unstyled.
var stateStyles = map[string]lipgloss.Style{
	// Artifact states.
	"LIVE":                GoodStyle,
	"PENDING":             WarnStyle,
	"MARKED_FOR_DELETION": BadStyle,
	"DELETED":             MutedStyle,
	"ABANDONED":           MutedStyle,
	"REFERENCE":           MutedStyle,

	// Execution states.
	"COMPLETE": GoodStyle,
	"CACHED":   GoodStyle,
	"RUNNING":  WarnStyle,
	"NEW":      WarnStyle,
	"FAILED":   BadStyle,
	"CANCELED": MutedStyle,
}

// RenderState renders a lifecycle state with its semantic color when color
// output is on.
func RenderState(state string) string {
	if state == "" {
		return ""
	}
	if !ShouldUseColor() {
		return state
	}
	if style, ok := stateStyles[state]; ok {
		return style.Render(state)
	}
	return state
}

// RenderMuted renders s dimmed when color output is on.
func RenderMuted(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return MutedStyle.Render(s)
}

// RenderHeader renders a column or section header.
func RenderHeader(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return HeaderStyle.Render(s)
}
