package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
)

// renderDescription renders a question description as markdown at width
// columns. Falls back to the raw text if glamour fails.
func renderDescription(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// Glamour pads with blank lines; trim for inline use
	return strings.Trim(out, "\n")
}

// fit truncates s to width display columns.
func fit(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
