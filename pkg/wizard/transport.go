// Package wizard is the client-side mirror of a survey session. A Controller
// turns server responses into pages, keeps an undoable stack of steps and
// issues the matching delete calls when the user goes back.
package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/service"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// Answer is one collected value. It travels as "questionId:value".
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

func (a Answer) String() string { return a.QuestionID + service.AnswerSeparator + a.Value }

// Transport is the server protocol. Implementations own timeouts; the
// controller never retries.
type Transport interface {
	NewSession(ctx context.Context, surveyID string) (string, error)
	NextQuestion(ctx context.Context, sessionID string) ([]survey.Question, error)
	UpdateAnswer(ctx context.Context, sessionID string, a Answer) ([]survey.Question, error)
	DeleteAnswer(ctx context.Context, sessionID, questionID string) ([]survey.Question, error)
	Analyse(ctx context.Context, sessionID string) (map[string]any, error)
}

// StatusError is a non-200 reply from the server.
type StatusError struct {
	Code     int    `json:"-"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

func (e *StatusError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// ─── HTTP ───────────────────────────────────────────────────────────────

// HTTPTransport speaks the surveyd HTTP protocol.
type HTTPTransport struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPTransport returns a transport with a 30s client timeout.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// doGet performs a GET and returns the body of a 200 reply.
func (t *HTTPTransport) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	uri := strings.TrimRight(t.BaseURL, "/") + path
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		se := &StatusError{Code: resp.StatusCode}
		if json.Unmarshal(body, se) != nil {
			se.Status = truncate(body, 200)
		}
		return nil, se
	}
	return body, nil
}

func (t *HTTPTransport) questions(ctx context.Context, path string, params url.Values) ([]survey.Question, error) {
	body, err := t.doGet(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var qs []survey.Question
	if err := json.Unmarshal(body, &qs); err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", path, err)
	}
	return qs, nil
}

// NewSession implements Transport.
func (t *HTTPTransport) NewSession(ctx context.Context, surveyID string) (string, error) {
	body, err := t.doGet(ctx, "/newsession", url.Values{"surveyid": {surveyID}})
	if err != nil {
		return "", fmt.Errorf("/newsession: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

// NextQuestion implements Transport.
func (t *HTTPTransport) NextQuestion(ctx context.Context, sessionID string) ([]survey.Question, error) {
	return t.questions(ctx, "/nextquestion", url.Values{"sessionid": {sessionID}})
}

// UpdateAnswer implements Transport.
func (t *HTTPTransport) UpdateAnswer(ctx context.Context, sessionID string, a Answer) ([]survey.Question, error) {
	return t.questions(ctx, "/updateanswer", url.Values{"sessionid": {sessionID}, "answer": {a.String()}})
}

// DeleteAnswer implements Transport.
func (t *HTTPTransport) DeleteAnswer(ctx context.Context, sessionID, questionID string) ([]survey.Question, error) {
	return t.questions(ctx, "/delanswer", url.Values{"sessionid": {sessionID}, "questionid": {questionID}})
}

// Analyse implements Transport.
func (t *HTTPTransport) Analyse(ctx context.Context, sessionID string) (map[string]any, error) {
	body, err := t.doGet(ctx, "/analyse", url.Values{"sessionid": {sessionID}})
	if err != nil {
		return nil, fmt.Errorf("/analyse: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("/analyse: parse response: %w", err)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ─── In-process ─────────────────────────────────────────────────────────

// LocalTransport drives a service.Service in the same process.
type LocalTransport struct {
	Service *service.Service
}

func resultErr(res engine.Result) error {
	if res.OK() {
		return nil
	}
	return &StatusError{Code: res.StatusCode, Status: res.StatusText, Position: res.Position}
}

func resultQuestions(res engine.Result) ([]survey.Question, error) {
	if err := resultErr(res); err != nil {
		return nil, err
	}
	qs, _ := res.Payload.([]survey.Question)
	return qs, nil
}

// NewSession implements Transport.
func (t LocalTransport) NewSession(ctx context.Context, surveyID string) (string, error) {
	res := t.Service.NewSession(ctx, surveyID)
	if err := resultErr(res); err != nil {
		return "", err
	}
	token, _ := res.Payload.(string)
	return token, nil
}

// NextQuestion implements Transport.
func (t LocalTransport) NextQuestion(ctx context.Context, sessionID string) ([]survey.Question, error) {
	return resultQuestions(t.Service.Next(ctx, sessionID))
}

// UpdateAnswer implements Transport.
func (t LocalTransport) UpdateAnswer(ctx context.Context, sessionID string, a Answer) ([]survey.Question, error) {
	return resultQuestions(t.Service.Answer(ctx, sessionID, a.String()))
}

// DeleteAnswer implements Transport.
func (t LocalTransport) DeleteAnswer(ctx context.Context, sessionID, questionID string) ([]survey.Question, error) {
	return resultQuestions(t.Service.Delete(ctx, sessionID, questionID))
}

// Analyse implements Transport.
func (t LocalTransport) Analyse(ctx context.Context, sessionID string) (map[string]any, error) {
	res := t.Service.Analyse(ctx, sessionID)
	if err := resultErr(res); err != nil {
		return nil, err
	}
	out, _ := res.Payload.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
