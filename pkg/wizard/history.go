package wizard

import (
	"maps"
	"slices"

	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// Snapshot is what a step needs to be shown again exactly: its questions and
// the values the user entered.
type Snapshot struct {
	Questions []survey.Question `json:"questions"`
	Values    map[string]string `json:"values,omitempty"`
}

// Step is one unit of forward navigation.
type Step struct {
	Index       int      `json:"stepIndex"`
	QuestionIDs []string `json:"questionIds"`
	Snapshot    Snapshot `json:"snapshot"`
}

func newStep(index int, qs []survey.Question) Step {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return Step{
		Index:       index,
		QuestionIDs: ids,
		Snapshot:    Snapshot{Questions: slices.Clone(qs)},
	}
}

// clone returns a copy sharing nothing mutable with s. Questions themselves
// are immutable once decoded.
func (s Step) clone() Step {
	return Step{
		Index:       s.Index,
		QuestionIDs: slices.Clone(s.QuestionIDs),
		Snapshot: Snapshot{
			Questions: slices.Clone(s.Snapshot.Questions),
			Values:    maps.Clone(s.Snapshot.Values),
		},
	}
}

func (s Step) withValues(values map[string]string) Step {
	c := s.clone()
	c.Snapshot.Values = maps.Clone(values)
	return c
}

// History is a stack of steps. Frames are copied on the way in and out, so
// no two frames (or callers) share state.
type History struct {
	steps []Step
}

// Len returns the number of frames.
func (h *History) Len() int { return len(h.steps) }

// Pointer is the index of the active frame, or -1 when empty.
func (h *History) Pointer() int { return len(h.steps) - 1 }

// Push adds a frame.
func (h *History) Push(s Step) { h.steps = append(h.steps, s.clone()) }

// Pop removes and returns the top frame.
func (h *History) Pop() (Step, bool) {
	if len(h.steps) == 0 {
		return Step{}, false
	}
	top := h.steps[len(h.steps)-1]
	h.steps = h.steps[:len(h.steps)-1]
	return top, true
}

// Top returns a copy of the active frame.
func (h *History) Top() (Step, bool) {
	if len(h.steps) == 0 {
		return Step{}, false
	}
	return h.steps[len(h.steps)-1].clone(), true
}

// ReplaceTop swaps the active frame for s.
func (h *History) ReplaceTop(s Step) {
	if len(h.steps) == 0 {
		return
	}
	h.steps[len(h.steps)-1] = s.clone()
}

// Contains reports whether any frame holds questionID.
func (h *History) Contains(questionID string) bool {
	for _, s := range h.steps {
		if slices.Contains(s.QuestionIDs, questionID) {
			return true
		}
	}
	return false
}

// Steps returns copies of all frames, bottom first.
func (h *History) Steps() []Step {
	out := make([]Step, len(h.steps))
	for i, s := range h.steps {
		out[i] = s.clone()
	}
	return out
}

// Reset drops every frame.
func (h *History) Reset() { h.steps = nil }

func historyOf(steps []Step) History {
	var h History
	for _, s := range steps {
		h.Push(s)
	}
	return h
}
