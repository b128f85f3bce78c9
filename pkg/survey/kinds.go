package survey

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind is the closed set of question variants a definition may use.
type Kind string

const (
	KindText       Kind = "text"
	KindComment    Kind = "comment"
	KindRadioGroup Kind = "radiogroup"
	KindDropdown   Kind = "dropdown"
	KindCheckbox   Kind = "checkbox"
	KindBoolean    Kind = "boolean"
	KindRating     Kind = "rating"
	KindHTML       Kind = "html"
)

// Kinds lists every known kind in display order.
var Kinds = []Kind{KindText, KindComment, KindRadioGroup, KindDropdown, KindCheckbox, KindBoolean, KindRating, KindHTML}

// ResolveKind maps a raw "type" field to a Kind. An empty type is text.
// Unknown types resolve to a Kind that reports Known() == false.
func ResolveKind(typ string) Kind {
	t := strings.ToLower(strings.TrimSpace(typ))
	if t == "" {
		return KindText
	}
	return Kind(t)
}

// Known reports whether k has an entry in the capability table.
func (k Kind) Known() bool {
	_, ok := capabilities[k]
	return ok
}

var (
	// ErrRequired is returned when a required question has no answer.
	ErrRequired = errors.New("answer required")
	// ErrInvalidAnswer is returned when an answer does not fit the question kind.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Capability is what a kind can do: render a prompt and validate an answer.
type Capability struct {
	Render   func(q Question) string
	Validate func(q Question, value string) error
}

var capabilities = map[Kind]Capability{
	KindText:       {Render: renderPlain, Validate: validateFree},
	KindComment:    {Render: renderPlain, Validate: validateFree},
	KindRadioGroup: {Render: renderChoices, Validate: validateSingleChoice},
	KindDropdown:   {Render: renderChoices, Validate: validateSingleChoice},
	KindCheckbox:   {Render: renderChoices, Validate: validateMultiChoice},
	KindBoolean:    {Render: renderBoolean, Validate: validateBoolean},
	KindRating:     {Render: renderRating, Validate: validateRating},
	KindHTML:       {Render: renderPlain, Validate: func(Question, string) error { return nil }},
}

// CapabilityOf returns the capability entry for k. Unknown kinds behave like text.
func CapabilityOf(k Kind) Capability {
	if c, ok := capabilities[k]; ok {
		return c
	}
	return capabilities[KindText]
}

// Render returns the plain-text prompt for q.
func Render(q Question) string { return CapabilityOf(q.Kind).Render(q) }

// ValidateAnswer checks value against q's kind and required flag.
func ValidateAnswer(q Question, value string) error { return CapabilityOf(q.Kind).Validate(q, value) }

// NeedsAnswer reports whether q collects input at all.
func NeedsAnswer(q Question) bool { return q.Kind != KindHTML }

// --- renderers ---

func renderPlain(q Question) string {
	if q.Required() {
		return q.Title() + " *"
	}
	return q.Title()
}

func renderChoices(q Question) string {
	var b strings.Builder
	b.WriteString(renderPlain(q))
	for i, c := range q.Choices() {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, c.Label())
	}
	return b.String()
}

func renderBoolean(q Question) string {
	return renderPlain(q) + " [true/false]"
}

func renderRating(q Question) string {
	lo, hi := q.RateRange()
	return fmt.Sprintf("%s [%d-%d]", renderPlain(q), lo, hi)
}

// --- validators ---

func checkRequired(q Question, value string) (empty bool, err error) {
	if strings.TrimSpace(value) != "" {
		return false, nil
	}
	if q.Required() {
		return true, fmt.Errorf("%s: %w", q.ID, ErrRequired)
	}
	return true, nil
}

func validateFree(q Question, value string) error {
	_, err := checkRequired(q, value)
	return err
}

func choiceValues(q Question) []string {
	choices := q.Choices()
	values := make([]string, 0, len(choices))
	for _, c := range choices {
		values = append(values, c.Value)
	}
	return values
}

func validateSingleChoice(q Question, value string) error {
	if empty, err := checkRequired(q, value); empty {
		return err
	}
	values := choiceValues(q)
	if len(values) > 0 && !slices.Contains(values, value) {
		return fmt.Errorf("%s: %q is not one of %v: %w", q.ID, value, values, ErrInvalidAnswer)
	}
	return nil
}

func validateMultiChoice(q Question, value string) error {
	if empty, err := checkRequired(q, value); empty {
		return err
	}
	values := choiceValues(q)
	if len(values) == 0 {
		return nil
	}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if !slices.Contains(values, part) {
			return fmt.Errorf("%s: %q is not one of %v: %w", q.ID, part, values, ErrInvalidAnswer)
		}
	}
	return nil
}

func validateBoolean(q Question, value string) error {
	if empty, err := checkRequired(q, value); empty {
		return err
	}
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("%s: %q is not a boolean: %w", q.ID, value, ErrInvalidAnswer)
	}
	return nil
}

func validateRating(q Question, value string) error {
	if empty, err := checkRequired(q, value); empty {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	lo, hi := q.RateRange()
	if err != nil || n < lo || n > hi {
		return fmt.Errorf("%s: rating %q outside %d-%d: %w", q.ID, value, lo, hi, ErrInvalidAnswer)
	}
	return nil
}
