package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/surveyd/pkg/eval"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// ─── Position arithmetic ───────────────────────────────────────────────

// NextPosition is the linear advance over a survey of n questions. Positions
// at or beyond the last index land on the completed sentinel n.
func NextPosition(n, prev int) int {
	if prev < n-1 {
		return prev + 1
	}
	return n
}

// BackPosition steps back one question, clamping at 0.
func BackPosition(prev int) int {
	if prev > 0 {
		return prev - 1
	}
	return 0
}

// ResolveBranch scans every question in survey order and every branch in
// branch order, returning the index of the first question that declares a
// branch targeting answeredID. The search covers the whole survey, not just
// the question at the cursor.
func ResolveBranch(s *survey.Survey, answeredID string) (int, bool) {
	for i, q := range s.Questions {
		for _, b := range q.NextQuestions {
			if b.ID == answeredID {
				return i, true
			}
		}
	}
	return 0, false
}

// AnswerPosition is the position reached once the branch declared at index i
// resolves: the following question, never past the last one.
func AnswerPosition(n, i int) int {
	return min(i+1, n-1)
}

// ─── Engine ─────────────────────────────────────────────────────────────

// SessionInfo is the payload of a successful CreateSession.
type SessionInfo struct {
	SurveyID      string `json:"survey_id"`
	QuestionCount int    `json:"question_count"`
}

// Engine runs the navigation operations against a survey source. Surveys are
// loaded on every call; Evaluator may be nil.
type Engine struct {
	Source    survey.Source
	Evaluator eval.Evaluator
}

// New returns an engine over src and ev.
func New(src survey.Source, ev eval.Evaluator) *Engine {
	return &Engine{Source: src, Evaluator: ev}
}

func (e *Engine) load(ctx context.Context, surveyID string) (*survey.Survey, error) {
	if e.Source == nil {
		return nil, fmt.Errorf("no survey source: %w", survey.ErrNotFound)
	}
	return e.Source.Load(ctx, surveyID)
}

func loadFailure(pos int, err error) Result {
	if errors.Is(err, survey.ErrInvalidID) {
		return NotFound(pos, "invalid survey id")
	}
	return NotFound(pos, "survey not found")
}

// questionAt returns the payload for pos: the question there, or an empty
// page at the completed sentinel.
func questionAt(s *survey.Survey, pos int) []survey.Question {
	if q, ok := s.At(pos); ok {
		return []survey.Question{q}
	}
	return []survey.Question{}
}

// CreateSession checks that surveyID can be loaded and returns position -1.
func (e *Engine) CreateSession(ctx context.Context, surveyID string) Result {
	s, err := e.load(ctx, surveyID)
	if err != nil {
		return loadFailure(NotStarted, err)
	}
	return ok(NotStarted, SessionInfo{SurveyID: surveyID, QuestionCount: s.Len()})
}

// Next advances linearly from pos. The payload is a one-element page, or an
// empty page once the completed sentinel is reached.
func (e *Engine) Next(ctx context.Context, surveyID string, pos int) Result {
	s, err := e.load(ctx, surveyID)
	if err != nil {
		return loadFailure(pos, err)
	}
	next := NextPosition(s.Len(), pos)
	return ok(next, questionAt(s, next))
}

// Back steps back from pos and returns the question there. Back at 0 is a
// no-op that still returns question 0.
func (e *Engine) Back(ctx context.Context, surveyID string, pos int) Result {
	s, err := e.load(ctx, surveyID)
	if err != nil {
		return loadFailure(pos, err)
	}
	prev := BackPosition(pos)
	return ok(prev, questionAt(s, prev))
}

// AdvanceByAnswer resolves answeredID through ResolveBranch and moves to the
// question after the declaring one. When nothing matches the result is 500
// and the position stays at pos.
func (e *Engine) AdvanceByAnswer(ctx context.Context, surveyID string, pos int, answeredID string) Result {
	s, err := e.load(ctx, surveyID)
	if err != nil {
		return loadFailure(pos, err)
	}
	i, found := ResolveBranch(s, answeredID)
	if !found {
		return fail(pos, StatusUnresolvedBranch, fmt.Sprintf("no branch targets %q", answeredID))
	}
	next := AnswerPosition(s.Len(), i)
	return ok(next, questionAt(s, next))
}

// Finish resets the position to -1 whatever pos was and returns the
// evaluation for answers. A missing or failing evaluator yields an empty
// object; Finish never fails.
func (e *Engine) Finish(ctx context.Context, surveyID string, pos int, answers map[string]string) Result {
	if e.Evaluator == nil {
		return ok(NotStarted, map[string]any{})
	}
	out, err := e.Evaluator.Evaluate(ctx, surveyID, answers)
	if err != nil || out == nil {
		return ok(NotStarted, map[string]any{})
	}
	return ok(NotStarted, out)
}
