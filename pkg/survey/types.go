// Package survey defines survey definitions: the ordered question list, the
// branch references between questions, the closed set of question kinds and
// the sources definitions are loaded from.
package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Survey is an ordered sequence of questions identified by a survey ID.
// It is treated as immutable once loaded.
type Survey struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions. It is also the completed sentinel position.
func (s *Survey) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Questions)
}

// At returns the question at index i, or false when i is out of range.
func (s *Survey) At(i int) (Question, bool) {
	if s == nil || i < 0 || i >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[i], true
}

// Index returns the position of the question with the given id, or -1.
func (s *Survey) Index(id string) int {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

// Branch is an edge to the question identified by ID.
type Branch struct {
	ID string `json:"id" yaml:"id" jsonschema:"required,minLength=1"`
}

// Question is one record of a survey definition. Only ID and NextQuestions
// are read by the navigation engine; every other field is a display field
// carried through untouched.
type Question struct {
	ID            string
	NextQuestions []Branch
	Type          string // raw "type" field
	Kind          Kind   // resolved from Type at decode time

	fields map[string]json.RawMessage
	raw    json.RawMessage
}

// questionHead holds the fields the engine and the kind table care about.
type questionHead struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	NextQuestions []Branch `json:"next_questions"`
}

// UnmarshalJSON decodes a question record, keeping the original bytes so
// display fields survive a round trip unchanged.
func (q *Question) UnmarshalJSON(data []byte) error {
	var head questionHead
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	q.ID = head.ID
	q.Type = head.Type
	q.Kind = ResolveKind(head.Type)
	q.NextQuestions = head.NextQuestions
	q.fields = fields
	q.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// MarshalJSON returns the original record when the question was decoded,
// or a minimal record otherwise.
func (q Question) MarshalJSON() ([]byte, error) {
	if len(q.raw) > 0 {
		return q.raw, nil
	}
	head := questionHead{ID: q.ID, Type: q.Type, NextQuestions: q.NextQuestions}
	if head.NextQuestions == nil {
		head.NextQuestions = []Branch{}
	}
	return json.Marshal(head)
}

// NewQuestion builds a question from an id, a type, display fields and
// branch targets. Used by tests and by programmatic survey construction.
func NewQuestion(id, typ string, display map[string]any, next ...string) Question {
	rec := make(map[string]any, len(display)+3)
	for k, v := range display {
		rec[k] = v
	}
	rec["id"] = id
	if typ != "" {
		rec["type"] = typ
	}
	branches := make([]Branch, 0, len(next))
	for _, n := range next {
		branches = append(branches, Branch{ID: n})
	}
	rec["next_questions"] = branches

	data, err := json.Marshal(rec)
	if err != nil {
		// display values come from callers building literals; fall back to the head only
		return Question{ID: id, Type: typ, Kind: ResolveKind(typ), NextQuestions: branches}
	}
	var q Question
	if err := q.UnmarshalJSON(data); err != nil {
		return Question{ID: id, Type: typ, Kind: ResolveKind(typ), NextQuestions: branches}
	}
	return q
}

// Field returns the raw JSON of a display field.
func (q Question) Field(name string) (json.RawMessage, bool) {
	v, ok := q.fields[name]
	return v, ok
}

func (q Question) stringField(name string) string {
	raw, ok := q.fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Name returns the SurveyJS "name" field.
func (q Question) Name() string { return q.stringField("name") }

// Title returns the display title, falling back to the name and then the id.
func (q Question) Title() string {
	if t := q.stringField("title"); t != "" {
		return t
	}
	if n := q.Name(); n != "" {
		return n
	}
	return q.ID
}

// Description returns the optional markdown description.
func (q Question) Description() string { return q.stringField("description") }

// Required reports whether the question is marked isRequired.
func (q Question) Required() bool {
	raw, ok := q.fields["isRequired"]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

// Choice is one selectable option. SurveyJS accepts either a bare value or
// an object with value and text.
type Choice struct {
	Value string `json:"value"`
	Text  string `json:"text,omitempty"`
}

// Label returns the text shown for the choice.
func (c Choice) Label() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Value
}

// Choices decodes the "choices" display field.
func (q Question) Choices() []Choice {
	raw, ok := q.fields["choices"]
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	choices := make([]Choice, 0, len(items))
	for _, item := range items {
		var obj struct {
			Value any    `json:"value"`
			Text  string `json:"text"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Value != nil {
			choices = append(choices, Choice{Value: scalarString(obj.Value), Text: obj.Text})
			continue
		}
		var scalar any
		if err := json.Unmarshal(item, &scalar); err == nil && scalar != nil {
			choices = append(choices, Choice{Value: scalarString(scalar)})
		}
	}
	return choices
}

// RateRange returns the inclusive rating bounds (default 1..5).
func (q Question) RateRange() (int, int) {
	lo, hi := 1, 5
	if v, ok := q.intField("rateMin"); ok {
		lo = v
	}
	if v, ok := q.intField("rateMax"); ok {
		hi = v
	}
	return lo, hi
}

func (q Question) intField(name string) (int, bool) {
	raw, ok := q.fields[name]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int(f), true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
