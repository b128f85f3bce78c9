// Package service binds session tokens to the navigation engine. Every
// token-bound call loads the session, runs one engine operation and writes
// the new cursor inside a single Registry.Update, so requests for the same
// token never interleave.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/surveyd/pkg/engine"
	"github.com/ormasoftchile/surveyd/pkg/session"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// AnswerSeparator splits questionId from value in a serialized answer.
const AnswerSeparator = ":"

// Service is the request orchestration layer shared by the HTTP and MCP
// surfaces.
type Service struct {
	Engine   *engine.Engine
	Registry *session.Registry
}

// New returns a service over e and r.
func New(e *engine.Engine, r *session.Registry) *Service {
	return &Service{Engine: e, Registry: r}
}

// ParseAnswer splits "questionId:value" at the first separator. Values may
// themselves contain the separator.
func ParseAnswer(raw string) (questionID, value string, err error) {
	id, val, found := strings.Cut(raw, AnswerSeparator)
	if !found || id == "" {
		return "", "", fmt.Errorf("malformed answer %q: want questionId%svalue", raw, AnswerSeparator)
	}
	return id, val, nil
}

// NewSession creates a session for surveyID. The payload of a successful
// result is the token.
func (s *Service) NewSession(ctx context.Context, surveyID string) engine.Result {
	if err := survey.CheckID(surveyID); err != nil || strings.Contains(surveyID, session.Delimiter) {
		return engine.NotFound(engine.NotStarted, "invalid survey id")
	}
	res := s.Engine.CreateSession(ctx, surveyID)
	if !res.OK() {
		return res
	}
	sess, err := s.Registry.Create(ctx, surveyID)
	if err != nil {
		return errorResult(engine.NotStarted, err)
	}
	res.Payload = sess.Token
	return res
}

// step runs op against the token's session. The cursor is written back only
// when op returns 200; apply may record further state alongside it.
func (s *Service) step(ctx context.Context, token string, op func(*session.Session) engine.Result, apply func(*session.Session)) engine.Result {
	var res engine.Result
	_, err := s.Registry.Update(ctx, token, func(sess *session.Session) error {
		res = op(sess)
		if !res.OK() {
			return session.ErrNoChange
		}
		if apply != nil {
			apply(sess)
		}
		sess.Position = res.Position
		return nil
	})
	if err != nil {
		return errorResult(engine.NotStarted, err)
	}
	return res
}

// Next advances the session linearly.
func (s *Service) Next(ctx context.Context, token string) engine.Result {
	return s.step(ctx, token, func(sess *session.Session) engine.Result {
		return s.Engine.Next(ctx, sess.SurveyID, sess.Position)
	}, nil)
}

// Answer resolves a serialized answer and records it when the branch
// resolves. A malformed answer is rejected before the session is touched.
func (s *Service) Answer(ctx context.Context, token, raw string) engine.Result {
	qid, value, err := ParseAnswer(raw)
	if err != nil {
		pos := engine.NotStarted
		if sess, gerr := s.Registry.Get(ctx, token); gerr == nil {
			pos = sess.Position
		} else {
			return errorResult(pos, gerr)
		}
		return engine.BadRequest(pos, err.Error())
	}
	return s.step(ctx, token, func(sess *session.Session) engine.Result {
		return s.Engine.AdvanceByAnswer(ctx, sess.SurveyID, sess.Position, qid)
	}, func(sess *session.Session) {
		sess.Answer(qid, value)
	})
}

// Delete drops the answer for questionID and steps the cursor back.
func (s *Service) Delete(ctx context.Context, token, questionID string) engine.Result {
	return s.step(ctx, token, func(sess *session.Session) engine.Result {
		return s.Engine.Back(ctx, sess.SurveyID, sess.Position)
	}, func(sess *session.Session) {
		if questionID != "" {
			sess.Forget(questionID)
		}
	})
}

// Analyse evaluates the recorded answers and resets the session to -1. The
// token stays valid.
func (s *Service) Analyse(ctx context.Context, token string) engine.Result {
	var res engine.Result
	_, err := s.Registry.Update(ctx, token, func(sess *session.Session) error {
		res = s.Engine.Finish(ctx, sess.SurveyID, sess.Position, sess.Answers)
		sess.Reset()
		return nil
	})
	if err != nil {
		return errorResult(engine.NotStarted, err)
	}
	return res
}

// Session returns the current state of a token.
func (s *Service) Session(ctx context.Context, token string) (*session.Session, error) {
	return s.Registry.Get(ctx, token)
}

func errorResult(pos int, err error) engine.Result {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return engine.NotFound(pos, "session not found")
	case errors.Is(err, session.ErrInvalidSurveyID):
		return engine.NotFound(pos, "invalid survey id")
	default:
		return engine.Unavailable(pos)
	}
}
