package wizard

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/ormasoftchile/surveyd/pkg/survey"
)

func pageIDs(t *testing.T, c *Controller) []string {
	t.Helper()
	step, ok := c.Page()
	if !ok {
		t.Fatal("no active page")
	}
	return step.QuestionIDs
}

func started(t *testing.T, f *fakeTransport, store Store) *Controller {
	t.Helper()
	c := New(f, store)
	if err := c.Start(context.Background(), "s"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return c
}

func TestStart_Fresh(t *testing.T) {
	f := &fakeTransport{first: qs(q("a"))}
	store := &MemoryStore{}
	c := started(t, f, store)

	if c.State() != AwaitingAnswer {
		t.Errorf("state = %s, want awaiting_answer", c.State())
	}
	if c.StepPointer() != 0 {
		t.Errorf("StepPointer = %d, want 0", c.StepPointer())
	}
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("page = %v, want [a]", got)
	}
	if got := f.Calls(); !reflect.DeepEqual(got, []string{"newsession s", "next"}) {
		t.Errorf("calls = %v", got)
	}
	p, _ := store.Load(context.Background())
	if p == nil || p.SessionID != "s|1" || p.StepPointer != 0 || len(p.History) != 1 {
		t.Errorf("persisted = %+v", p)
	}
}

func TestStart_EmptySurveyCompletes(t *testing.T) {
	c := started(t, &fakeTransport{}, nil)
	if c.State() != Completed {
		t.Errorf("state = %s, want completed", c.State())
	}
	if c.StepPointer() != -1 {
		t.Errorf("StepPointer = %d, want -1", c.StepPointer())
	}
}

func TestSubmit_RequiredIsLocal(t *testing.T) {
	f := &fakeTransport{first: qs(q("a", "isRequired", true), q("b"))}
	c := started(t, f, nil)

	err := c.Submit(context.Background(), map[string]string{"b": "x"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Submit = %v, want *ValidationError", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0].QuestionID != "a" {
		t.Errorf("fields = %+v, want [a]", ve.Fields)
	}
	if !errors.Is(err, survey.ErrRequired) {
		t.Error("ValidationError should unwrap to survey.ErrRequired")
	}
	if c.State() != AwaitingAnswer {
		t.Errorf("state = %s after validation failure", c.State())
	}
	for _, call := range f.Calls() {
		if call != "newsession s" && call != "next" {
			t.Errorf("validation failure reached the server: %s", call)
		}
	}
}

func TestSubmit_SendsEveryAnswerInOrder(t *testing.T) {
	f := &fakeTransport{
		first: qs(q("a"), q("b"), q("c")),
		replies: map[string][]survey.Question{
			"a": qs(q("ignored")),
			"c": qs(q("d")),
		},
	}
	c := started(t, f, nil)
	if err := c.Submit(context.Background(), map[string]string{"a": "1", "c": "3:three"}); err != nil {
		t.Fatal(err)
	}
	calls := f.Calls()[2:]
	want := []string{"answer a:1", "answer b:", "answer c:3:three"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"d"}) {
		t.Errorf("page = %v, want [d] from the last reply", got)
	}
	if c.StepPointer() != 1 {
		t.Errorf("StepPointer = %d, want 1", c.StepPointer())
	}
}

func TestSubmit_DeduplicatesAgainstHistory(t *testing.T) {
	f := &fakeTransport{
		first: qs(q("a")),
		replies: map[string][]survey.Question{
			"a": qs(q("b")),
			"b": qs(q("a"), q("c"), q("b"), q("c")),
		},
	}
	c := started(t, f, nil)
	ctx := context.Background()
	c.Submit(ctx, map[string]string{"a": "1"})
	if err := c.Submit(ctx, map[string]string{"b": "2"}); err != nil {
		t.Fatal(err)
	}
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("page = %v, want [c]", got)
	}
}

func TestSubmit_EmptyOrOnlySeenCompletes(t *testing.T) {
	for name, reply := range map[string][]survey.Question{
		"empty reply":  nil,
		"only repeats": qs(q("a")),
	} {
		t.Run(name, func(t *testing.T) {
			f := &fakeTransport{first: qs(q("a")), replies: map[string][]survey.Question{"a": reply}}
			c := started(t, f, nil)
			if err := c.Submit(context.Background(), map[string]string{"a": "x"}); err != nil {
				t.Fatal(err)
			}
			if c.State() != Completed {
				t.Errorf("state = %s, want completed", c.State())
			}
			if err := c.Submit(context.Background(), nil); !errors.Is(err, ErrCompleted) {
				t.Errorf("Submit after completion = %v, want ErrCompleted", err)
			}
			if err := c.Back(context.Background()); !errors.Is(err, ErrCompleted) {
				t.Errorf("Back after completion = %v, want ErrCompleted", err)
			}
		})
	}
}

func TestSubmit_UnresolvedBranchFails(t *testing.T) {
	f := &fakeTransport{
		first:    qs(q("a")),
		failures: map[string]error{"a": &StatusError{Code: http.StatusInternalServerError, Status: "no branch"}},
	}
	c := started(t, f, nil)
	ctx := context.Background()

	err := c.Submit(ctx, map[string]string{"a": "x"})
	if !errors.Is(err, ErrUnresolvedBranch) {
		t.Fatalf("Submit = %v, want ErrUnresolvedBranch", err)
	}
	if c.State() != Failed || c.Err() == nil {
		t.Errorf("state = %s err = %v, want failed", c.State(), c.Err())
	}
	if err := c.Submit(ctx, map[string]string{"a": "x"}); !errors.Is(err, ErrNotReady) {
		t.Errorf("Submit in failed = %v, want ErrNotReady", err)
	}
	if err := c.Back(ctx); err != nil {
		t.Fatal(err)
	}
	if c.State() != AwaitingAnswer || c.Err() != nil {
		t.Errorf("after Back: state = %s err = %v", c.State(), c.Err())
	}
}

func TestSubmit_TransportErrorIsRecoverable(t *testing.T) {
	f := &fakeTransport{
		first:    qs(q("a")),
		failures: map[string]error{"a": errors.New("connection refused")},
	}
	c := started(t, f, nil)
	if err := c.Submit(context.Background(), map[string]string{"a": "x"}); err == nil {
		t.Fatal("Submit should fail")
	}
	if c.State() != AwaitingAnswer {
		t.Errorf("state = %s, want awaiting_answer", c.State())
	}
	if c.StepPointer() != 0 {
		t.Errorf("StepPointer = %d, want 0", c.StepPointer())
	}
}

func TestBack(t *testing.T) {
	f := &fakeTransport{
		first: qs(q("a")),
		replies: map[string][]survey.Question{
			"a": qs(q("b"), q("c")),
		},
	}
	store := &MemoryStore{}
	c := started(t, f, store)
	ctx := context.Background()

	if err := c.Back(ctx); err != nil {
		t.Fatalf("Back at step 0: %v", err)
	}
	if len(f.Calls()) != 2 {
		t.Errorf("Back at step 0 made calls: %v", f.Calls()[2:])
	}

	c.Submit(ctx, map[string]string{"a": "first"})
	if err := c.Back(ctx); err != nil {
		t.Fatal(err)
	}
	calls := f.Calls()
	if got := calls[len(calls)-2:]; !reflect.DeepEqual(got, []string{"delete b", "delete c"}) {
		t.Errorf("delete calls = %v, want [delete b, delete c]", got)
	}
	step, _ := c.Page()
	if !reflect.DeepEqual(step.QuestionIDs, []string{"a"}) || step.Snapshot.Values["a"] != "first" {
		t.Errorf("restored frame = %+v", step)
	}
	if c.StepPointer() != 0 || c.State() != AwaitingAnswer {
		t.Errorf("pointer = %d state = %s", c.StepPointer(), c.State())
	}
	p, _ := store.Load(ctx)
	if p.StepPointer != 0 || len(p.History) != 1 {
		t.Errorf("persisted after back = %+v", p)
	}

	// Popped questions are no longer history, so they come back on resubmit.
	c.Submit(ctx, map[string]string{"a": "second"})
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("page after resubmit = %v", got)
	}
}

func TestPageIsACopy(t *testing.T) {
	f := &fakeTransport{first: qs(q("a")), replies: map[string][]survey.Question{"a": qs(q("b"))}}
	c := started(t, f, nil)
	ctx := context.Background()
	values := map[string]string{"a": "orig"}
	c.Submit(ctx, values)
	values["a"] = "mutated"

	hist := c.History()
	hist[0].Snapshot.Values["a"] = "also mutated"
	hist[0].QuestionIDs[0] = "zzz"

	c.Back(ctx)
	step, _ := c.Page()
	if step.Snapshot.Values["a"] != "orig" || step.QuestionIDs[0] != "a" {
		t.Errorf("frame shared state with callers: %+v", step)
	}
}

func TestSingleFlightGuard(t *testing.T) {
	f := &fakeTransport{
		first:   qs(q("a")),
		replies: map[string][]survey.Question{"a": qs(q("b"))},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := started(t, f, nil)
	ctx := context.Background()

	done := c.SubmitAsync(ctx, map[string]string{"a": "x"})
	<-f.entered

	if c.State() != Submitting {
		t.Errorf("state in flight = %s, want submitting", c.State())
	}
	if err := c.Submit(ctx, map[string]string{"a": "y"}); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Submit = %v, want ErrBusy", err)
	}
	if err := <-c.BackAsync(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent BackAsync = %v, want ErrBusy", err)
	}
	if _, err := c.Evaluate(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Evaluate = %v, want ErrBusy", err)
	}

	close(f.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SubmitAsync: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SubmitAsync did not finish")
	}
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("page = %v, want [b]", got)
	}
	if n := len(f.Calls()); n != 3 {
		t.Errorf("calls = %v, want exactly one answer sent", f.Calls())
	}
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	store := &MemoryStore{}
	store.Save(ctx, &Persisted{
		SurveyID:  "s",
		SessionID: "s|42",
		History: []Step{
			newStep(0, qs(q("a"))).withValues(map[string]string{"a": "1"}),
			newStep(1, qs(q("b"))),
		},
		StepPointer: 1,
	})

	f := &fakeTransport{first: qs(q("should-not-load"))}
	c := started(t, f, store)
	if len(f.Calls()) != 0 {
		t.Errorf("resume contacted the server: %v", f.Calls())
	}
	if c.SessionID() != "s|42" || c.StepPointer() != 1 {
		t.Errorf("resumed session %q pointer %d", c.SessionID(), c.StepPointer())
	}
	if got := pageIDs(t, c); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("page = %v", got)
	}
	c.Back(ctx)
	if step, _ := c.Page(); step.Snapshot.Values["a"] != "1" {
		t.Errorf("restored values = %v", step.Snapshot.Values)
	}
}

func TestResume_StaleBlobDiscarded(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		blob *Persisted
	}{
		{"other survey", &Persisted{SurveyID: "other", SessionID: "other|1", History: []Step{newStep(0, qs(q("x")))}}},
		{"no session id", &Persisted{SurveyID: "s", History: []Step{newStep(0, qs(q("x")))}}},
		{"completed", &Persisted{SurveyID: "s", SessionID: "s|9", History: []Step{newStep(0, qs(q("x")))}, Completed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MemoryStore{}
			store.Save(ctx, tt.blob)
			f := &fakeTransport{first: qs(q("a"))}
			c := started(t, f, store)
			if got := f.Calls(); len(got) == 0 || got[0] != "newsession s" {
				t.Errorf("calls = %v, want a fresh session", got)
			}
			if got := pageIDs(t, c); !slices.Equal(got, []string{"a"}) {
				t.Errorf("page = %v", got)
			}
			if c.State() != AwaitingAnswer {
				t.Errorf("state = %s, want awaiting_answer", c.State())
			}
			p, _ := store.Load(ctx)
			if p.SurveyID != "s" || p.SessionID != "s|1" || p.Completed {
				t.Errorf("blob not replaced: %+v", p)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	f := &fakeTransport{first: qs(q("a")), analysis: map[string]any{"verdict": "ok"}}
	store := &MemoryStore{}
	c := started(t, f, store)
	ctx := context.Background()

	if _, err := c.Evaluate(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("Evaluate before completion = %v, want ErrNotReady", err)
	}
	c.Submit(ctx, map[string]string{"a": "x"})
	out, err := c.Evaluate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out["verdict"] != "ok" {
		t.Errorf("evaluation = %v", out)
	}
	if p, _ := store.Load(ctx); p != nil {
		t.Errorf("persisted state not cleared: %+v", p)
	}
}

func TestStateHook(t *testing.T) {
	var seen []State
	f := &fakeTransport{first: qs(q("a"))}
	c := New(f, nil, WithStateHook(func(s State) { seen = append(seen, s) }))
	c.Start(context.Background(), "s")
	c.Submit(context.Background(), map[string]string{"a": "x"})
	want := []State{AwaitingAnswer, Submitting, Completed}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}
