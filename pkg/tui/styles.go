// Package tui is a terminal front-end for the survey wizard. It drives only
// the wizard.Controller API and renders the active page with Bubble Tea.
package tui

import "github.com/charmbracelet/lipgloss"

// Glyphs convey state without relying on color alone.
const (
	GlyphFocus    = "▸"
	GlyphBlur     = " "
	GlyphChecked  = "■"
	GlyphOpen     = "□"
	GlyphSelected = "●"
	GlyphOption   = "○"
	GlyphRequired = "*"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

// --- Header ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var stepBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// --- Questions ---

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	titleFocusStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	requiredStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	optionActiveStyle = lipgloss.NewStyle().
				Foreground(colorGreen).
				Bold(true)

	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)
)

// --- Key bar ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// --- Completion ---

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorCyan).
	Foreground(colorCyan).
	Bold(true).
	Padding(0, 2).
	Align(lipgloss.Center)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)
