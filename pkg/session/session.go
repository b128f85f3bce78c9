// Package session issues session tokens and owns the per-session cursor.
// Each token's state is mutated through Update, which a Store serializes per
// token; distinct tokens share nothing.
package session

import (
	"errors"
	"maps"
	"time"
)

var (
	// ErrNotFound is returned for tokens with no live session.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidSurveyID is returned when a survey ID cannot be embedded in a token.
	ErrInvalidSurveyID = errors.New("invalid survey id for session")
	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("session update conflict")
	// ErrExists is returned by Store.Create when the token is taken.
	ErrExists = errors.New("session token exists")
	// ErrNoChange may be returned by an update func to leave the stored
	// session untouched; Update then reports success.
	ErrNoChange = errors.New("no change")
)

// Session is the server-side state bound to a token.
type Session struct {
	Token     string            `json:"token"`
	SurveyID  string            `json:"survey_id"`
	Position  int               `json:"position"`
	Answers   map[string]string `json:"answers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Answers = maps.Clone(s.Answers)
	return &c
}

// Answer records value for questionID.
func (s *Session) Answer(questionID, value string) {
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	s.Answers[questionID] = value
}

// Forget drops the answer for questionID.
func (s *Session) Forget(questionID string) {
	delete(s.Answers, questionID)
}

// Reset returns the session to the not-started position with no answers.
func (s *Session) Reset() {
	s.Position = -1
	s.Answers = nil
}
