package ui

import (
	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders markdown with glamour, word-wrapped to the terminal
// width. Returns the input unchanged when color is off or rendering fails,
// so output stays parseable in pipes.
func RenderMarkdown(markdown string) string {
	if !ShouldUseColor() {
		return markdown
	}

	// Wider lines are hard to track; cap well below most terminal widths.
	const maxReadableWidth = 100
	wrapWidth := Width(80)
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
