package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// field is the input widget for one question on the page.
type field struct {
	q       survey.Question
	input   textinput.Model // free-text kinds
	options []survey.Choice // choice kinds and boolean
	cursor  int             // highlighted option
	picked  []bool          // selected options
	multi   bool
}

func newField(q survey.Question, value string) field {
	f := field{q: q}
	switch q.Kind {
	case survey.KindRadioGroup, survey.KindDropdown, survey.KindCheckbox:
		f.options = q.Choices()
		f.multi = q.Kind == survey.KindCheckbox
	case survey.KindBoolean:
		f.options = []survey.Choice{{Value: "true", Text: "Yes"}, {Value: "false", Text: "No"}}
	case survey.KindHTML:
	default:
		ti := textinput.New()
		ti.CharLimit = 2000
		if q.Kind == survey.KindRating {
			lo, hi := q.RateRange()
			ti.Placeholder = fmt.Sprintf("%d-%d", lo, hi)
		}
		ti.SetValue(value)
		f.input = ti
	}
	f.picked = make([]bool, len(f.options))
	f.restore(value)
	return f
}

// restore marks the options encoded in value.
func (f *field) restore(value string) {
	if len(f.options) == 0 || value == "" {
		return
	}
	var parts []string
	if f.multi {
		for _, p := range strings.Split(value, ",") {
			parts = append(parts, strings.TrimSpace(p))
		}
	} else {
		parts = []string{value}
	}
	for i, o := range f.options {
		if slices.Contains(parts, o.Value) {
			f.picked[i] = true
			f.cursor = i
		}
	}
}

func (f field) hasText() bool { return len(f.options) == 0 && f.q.Kind != survey.KindHTML }

// Value returns the answer text for the question.
func (f field) Value() string {
	if f.hasText() {
		return f.input.Value()
	}
	var vals []string
	for i, o := range f.options {
		if f.picked[i] {
			vals = append(vals, o.Value)
		}
	}
	return strings.Join(vals, ",")
}

func (f *field) focus() tea.Cmd {
	if f.hasText() {
		return f.input.Focus()
	}
	return nil
}

func (f *field) blur() {
	if f.hasText() {
		f.input.Blur()
	}
}

// move shifts the option cursor; single-choice fields select as they move.
func (f *field) move(delta int) {
	if len(f.options) == 0 {
		return
	}
	f.cursor = (f.cursor + delta + len(f.options)) % len(f.options)
	if !f.multi {
		for i := range f.picked {
			f.picked[i] = i == f.cursor
		}
	}
}

func (f *field) toggle() {
	if len(f.options) == 0 {
		return
	}
	if f.multi {
		f.picked[f.cursor] = !f.picked[f.cursor]
		return
	}
	f.move(0)
}

func (f *field) update(msg tea.Msg) tea.Cmd {
	if !f.hasText() {
		return nil
	}
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return cmd
}

func (f field) view(focused bool, width int) string {
	var b strings.Builder
	glyph := GlyphBlur
	style := titleStyle
	if focused {
		glyph = GlyphFocus
		style = titleFocusStyle
	}
	b.WriteString(glyph + " " + style.Render(fit(f.q.Title(), width-4)))
	if f.q.Required() {
		b.WriteString(" " + requiredStyle.Render(GlyphRequired))
	}
	b.WriteString("\n")
	if d := renderDescription(f.q.Description(), width-4); d != "" {
		b.WriteString(d + "\n")
	}

	switch {
	case f.hasText():
		b.WriteString("  " + f.input.View() + "\n")
	case len(f.options) > 0:
		for i, o := range f.options {
			mark := GlyphOption
			if f.multi {
				mark = GlyphOpen
			}
			if f.picked[i] {
				mark = GlyphSelected
				if f.multi {
					mark = GlyphChecked
				}
			}
			line := mark + " " + o.Label()
			if focused && i == f.cursor {
				b.WriteString("  " + optionActiveStyle.Render(line) + "\n")
			} else {
				b.WriteString("  " + optionStyle.Render(line) + "\n")
			}
		}
	}
	return b.String()
}
