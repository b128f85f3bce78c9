package wizard

import (
	"context"
	"fmt"
	"sync"

	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// fakeTransport replies from fixed tables and records every call.
type fakeTransport struct {
	mu    sync.Mutex
	calls []string

	token    string
	first    []survey.Question
	replies  map[string][]survey.Question // by answered question id
	failures map[string]error             // by answered question id
	analysis map[string]any

	// When set, UpdateAnswer signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeTransport) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) NewSession(_ context.Context, surveyID string) (string, error) {
	f.record("newsession %s", surveyID)
	if f.token == "" {
		return surveyID + "|1", nil
	}
	return f.token, nil
}

func (f *fakeTransport) NextQuestion(_ context.Context, sessionID string) ([]survey.Question, error) {
	f.record("next")
	return f.first, nil
}

func (f *fakeTransport) UpdateAnswer(_ context.Context, _ string, a Answer) ([]survey.Question, error) {
	f.record("answer %s", a)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if err := f.failures[a.QuestionID]; err != nil {
		return nil, err
	}
	return f.replies[a.QuestionID], nil
}

func (f *fakeTransport) DeleteAnswer(_ context.Context, _ string, questionID string) ([]survey.Question, error) {
	f.record("delete %s", questionID)
	return nil, nil
}

func (f *fakeTransport) Analyse(context.Context, string) (map[string]any, error) {
	f.record("analyse")
	if f.analysis == nil {
		return map[string]any{}, nil
	}
	return f.analysis, nil
}

func q(id string, display ...any) survey.Question {
	fields := map[string]any{}
	for i := 0; i+1 < len(display); i += 2 {
		fields[display[i].(string)] = display[i+1]
	}
	return survey.NewQuestion(id, "text", fields, id)
}

func qs(items ...survey.Question) []survey.Question { return items }
