package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds all TUI key bindings.
type keyMap struct {
	Submit key.Binding
	Back   key.Binding
	Next   key.Binding
	Prev   key.Binding
	Left   key.Binding
	Right  key.Binding
	Toggle key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "submit"),
	),
	Back: key.NewBinding(
		key.WithKeys("esc", "ctrl+b"),
		key.WithHelp("esc", "back"),
	),
	Next: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("tab", "next field"),
	),
	Prev: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("shift+tab", "previous field"),
	),
	Left: key.NewBinding(
		key.WithKeys("left"),
		key.WithHelp("←", "previous option"),
	),
	Right: key.NewBinding(
		key.WithKeys("right"),
		key.WithHelp("→", "next option"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "toggle"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func matchKey(msg tea.KeyMsg, b key.Binding) bool {
	return key.Matches(msg, b)
}

func hint(k, desc string) string {
	return keyStyle.Render(k) + keyDescStyle.Render(":"+desc)
}

// keyBarText renders the context-sensitive key hints.
func keyBarText(completed, evaluated bool) string {
	if evaluated {
		return hint("ctrl+c", "quit")
	}
	if completed {
		return hint("enter", "see results") + "  " + hint("ctrl+c", "quit")
	}
	return hint("enter", "submit") + "  " +
		hint("esc", "back") + "  " +
		hint("tab", "field") + "  " +
		hint("←→", "option") + "  " +
		hint("space", "toggle") + "  " +
		hint("ctrl+c", "quit")
}
