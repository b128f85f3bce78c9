package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ormasoftchile/surveyd/pkg/survey"
)

func linear3() *survey.Survey {
	return &survey.Survey{ID: "lin", Questions: []survey.Question{
		survey.NewQuestion("q0", "text", nil, "q0"),
		survey.NewQuestion("q1", "text", nil, "q2"),
		survey.NewQuestion("q2", "text", nil),
	}}
}

func newEngine(t *testing.T, ev stubEvaluator, surveys ...*survey.Survey) *Engine {
	t.Helper()
	return New(survey.NewMemorySource(surveys...), ev)
}

type stubEvaluator struct {
	out map[string]any
	err error
}

func (s stubEvaluator) Evaluate(_ context.Context, surveyID string, answers map[string]string) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]any{"survey_id": surveyID, "answered": len(answers)}
	for k, v := range s.out {
		out[k] = v
	}
	return out, nil
}

func page(t *testing.T, r Result) []survey.Question {
	t.Helper()
	qs, ok := r.Payload.([]survey.Question)
	if !ok {
		t.Fatalf("payload = %T, want []survey.Question", r.Payload)
	}
	return qs
}

// ─── Properties ─────────────────────────────────────────────────────────

func TestNextPosition(t *testing.T) {
	for n := 0; n <= 5; n++ {
		for prev := -1; prev <= n; prev++ {
			got := NextPosition(n, prev)
			want := n
			if prev < n-1 {
				want = prev + 1
			}
			if got != want {
				t.Errorf("NextPosition(%d, %d) = %d, want %d", n, prev, got, want)
			}
			if got < -1 || got > n {
				t.Errorf("NextPosition(%d, %d) = %d escapes [-1, %d]", n, prev, got, n)
			}
		}
	}
}

func TestBackPosition(t *testing.T) {
	if got := BackPosition(0); got != 0 {
		t.Errorf("BackPosition(0) = %d, want 0", got)
	}
	if got := BackPosition(-1); got != 0 {
		t.Errorf("BackPosition(-1) = %d, want 0", got)
	}
	for prev := 1; prev < 10; prev++ {
		if got := BackPosition(prev); got != prev-1 {
			t.Errorf("BackPosition(%d) = %d, want %d", prev, got, prev-1)
		}
	}
}

func TestResolveBranch_FirstMatchWins(t *testing.T) {
	s := &survey.Survey{Questions: []survey.Question{
		survey.NewQuestion("a", "", nil, "x", "dup"),
		survey.NewQuestion("b", "", nil, "dup", "y"),
		survey.NewQuestion("c", "", nil, "dup"),
	}}
	i, ok := ResolveBranch(s, "dup")
	if !ok || i != 0 {
		t.Errorf("ResolveBranch(dup) = %d, %v; want 0, true", i, ok)
	}
	i, ok = ResolveBranch(s, "y")
	if !ok || i != 1 {
		t.Errorf("ResolveBranch(y) = %d, %v; want 1, true", i, ok)
	}
	if _, ok := ResolveBranch(s, "ghost"); ok {
		t.Error("ResolveBranch(ghost) should not match")
	}
}

// The search ignores the cursor: a branch declared by a question far from
// the current position still resolves. This pins the whole-survey behavior.
func TestAdvanceByAnswer_SearchesWholeSurveyNotCurrentQuestion(t *testing.T) {
	s := &survey.Survey{ID: "wide", Questions: []survey.Question{
		survey.NewQuestion("q0", "", nil),
		survey.NewQuestion("q1", "", nil),
		survey.NewQuestion("q2", "", nil),
		survey.NewQuestion("q3", "", nil, "q0"),
		survey.NewQuestion("q4", "", nil),
	}}
	e := newEngine(t, stubEvaluator{}, s)
	r := e.AdvanceByAnswer(context.Background(), "wide", 0, "q0")
	if r.StatusCode != StatusOK || r.Position != 4 {
		t.Errorf("AdvanceByAnswer from 0 = (%d, %d), want (4, 200)", r.Position, r.StatusCode)
	}
}

func TestAdvanceByAnswer_ClampsToLastQuestion(t *testing.T) {
	s := &survey.Survey{ID: "c", Questions: []survey.Question{
		survey.NewQuestion("q0", "", nil),
		survey.NewQuestion("q1", "", nil, "q1"),
	}}
	e := newEngine(t, stubEvaluator{}, s)
	r := e.AdvanceByAnswer(context.Background(), "c", 1, "q1")
	if r.Position != 1 {
		t.Errorf("position = %d, want 1 (last index)", r.Position)
	}
	if qs := page(t, r); len(qs) != 1 || qs[0].ID != "q1" {
		t.Errorf("payload = %v, want [q1]", qs)
	}
}

func TestFinish_AlwaysResets(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, linear3())
	for _, pos := range []int{-1, 0, 1, 2, 3, 99} {
		r := e.Finish(context.Background(), "lin", pos, nil)
		if r.Position != NotStarted || r.StatusCode != StatusOK {
			t.Errorf("Finish(%d) = (%d, %d), want (-1, 200)", pos, r.Position, r.StatusCode)
		}
	}
}

func TestFinish_EvaluatorUnavailable(t *testing.T) {
	for name, e := range map[string]*Engine{
		"nil evaluator":     New(survey.NewMemorySource(linear3()), nil),
		"failing evaluator": newEngine(t, stubEvaluator{err: errors.New("boom")}, linear3()),
	} {
		r := e.Finish(context.Background(), "lin", 2, map[string]string{"q0": "x"})
		m, ok := r.Payload.(map[string]any)
		if !ok || len(m) != 0 || r.Position != NotStarted || !r.OK() {
			t.Errorf("%s: Finish = %+v, want empty object at -1", name, r)
		}
	}
}

// ─── Scenarios ──────────────────────────────────────────────────────────

func TestScenarioA_NewSessionThenNext(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, linear3())
	ctx := context.Background()

	r := e.CreateSession(ctx, "lin")
	if !r.OK() || r.Position != -1 {
		t.Fatalf("CreateSession = %+v, want 200 at -1", r)
	}
	info, _ := r.Payload.(SessionInfo)
	if info.QuestionCount != 3 {
		t.Errorf("QuestionCount = %d, want 3", info.QuestionCount)
	}

	r = e.Next(ctx, "lin", r.Position)
	if r.Position != 0 {
		t.Errorf("next(-1) = %d, want 0", r.Position)
	}
	if qs := page(t, r); len(qs) != 1 || qs[0].ID != "q0" {
		t.Errorf("payload = %v, want [q0]", qs)
	}
}

func TestScenarioB_AnswerResolvesDeclaringIndex(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, linear3())
	r := e.AdvanceByAnswer(context.Background(), "lin", 0, "q2")
	if !r.OK() || r.Position != 2 {
		t.Fatalf("AdvanceByAnswer = %+v, want 200 at 2", r)
	}
	if qs := page(t, r); len(qs) != 1 || qs[0].ID != "q2" {
		t.Errorf("payload = %v, want [q2]", qs)
	}
}

func TestScenarioC_NextAtLastReachesSentinel(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, linear3())
	r := e.Next(context.Background(), "lin", 2)
	if !r.OK() || r.Position != 3 {
		t.Fatalf("next(2) = %+v, want 200 at 3", r)
	}
	if qs := page(t, r); len(qs) != 0 {
		t.Errorf("sentinel payload = %v, want empty", qs)
	}
}

func TestScenarioD_BackAtZeroIsNoop(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, linear3())
	r := e.Back(context.Background(), "lin", 0)
	if !r.OK() || r.Position != 0 {
		t.Fatalf("back(0) = %+v, want 200 at 0", r)
	}
	if qs := page(t, r); len(qs) != 1 || qs[0].ID != "q0" {
		t.Errorf("payload = %v, want [q0]", qs)
	}
}

func TestScenarioE_UnresolvedBranch(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, linear3())
	r := e.AdvanceByAnswer(context.Background(), "lin", 1, "nowhere")
	if r.StatusCode != StatusUnresolvedBranch {
		t.Errorf("status = %d, want 500", r.StatusCode)
	}
	if r.Position != 1 {
		t.Errorf("position = %d, want unchanged 1", r.Position)
	}
	if r.Payload != nil {
		t.Errorf("payload = %v, want nil", r.Payload)
	}
}

func TestScenarioF_FinishReturnsEvaluation(t *testing.T) {
	e := newEngine(t, stubEvaluator{out: map[string]any{"verdict": "fine"}}, linear3())
	r := e.Finish(context.Background(), "lin", 2, map[string]string{"q0": "a", "q1": "b"})
	if r.Position != -1 {
		t.Errorf("finish(2) = %d, want -1", r.Position)
	}
	m, _ := r.Payload.(map[string]any)
	if m["verdict"] != "fine" || m["answered"] != 2 {
		t.Errorf("payload = %v", m)
	}
}

// ─── Load failures ──────────────────────────────────────────────────────

func TestMissingSurvey(t *testing.T) {
	e := newEngine(t, stubEvaluator{})
	ctx := context.Background()
	checks := map[string]Result{
		"create":  e.CreateSession(ctx, "nope"),
		"next":    e.Next(ctx, "nope", 1),
		"back":    e.Back(ctx, "nope", 1),
		"advance": e.AdvanceByAnswer(ctx, "nope", 1, "q"),
	}
	for name, r := range checks {
		if r.StatusCode != StatusNotFound {
			t.Errorf("%s: status = %d, want 404", name, r.StatusCode)
		}
	}
	if checks["next"].Position != 1 {
		t.Errorf("next on missing survey moved position to %d", checks["next"].Position)
	}
}

func TestEmptySurveyCompletesImmediately(t *testing.T) {
	e := newEngine(t, stubEvaluator{}, &survey.Survey{ID: "empty"})
	r := e.Next(context.Background(), "empty", -1)
	if !r.OK() || r.Position != 0 {
		t.Fatalf("next(-1) on empty survey = %+v, want sentinel 0", r)
	}
	if qs := page(t, r); len(qs) != 0 {
		t.Errorf("payload = %v, want empty", qs)
	}
}
