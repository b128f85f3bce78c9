package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/surveyd/pkg/logging"
)

// maxTokenAttempts bounds the timestamp bumps tried when a token collides.
const maxTokenAttempts = 1024

// Registry issues tokens and mediates every read and write of session state.
type Registry struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used for tokens and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger. nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = logging.OrNop(l) }
}

// NewRegistry returns a registry over store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Store returns the underlying store.
func (r *Registry) Store() Store { return r.store }

// Create starts a session for surveyID at position -1 and returns it. When
// the token for the current instant is taken, the timestamp is bumped by one
// nanosecond until a free token is found.
func (r *Registry) Create(ctx context.Context, surveyID string) (*Session, error) {
	if surveyID == "" || strings.Contains(surveyID, Delimiter) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSurveyID, surveyID)
	}
	now := r.now()
	for i := 0; i < maxTokenAttempts; i++ {
		stamp := now.Add(time.Duration(i))
		s := &Session{
			Token:     NewToken(surveyID, stamp),
			SurveyID:  surveyID,
			Position:  -1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := r.store.Create(ctx, s)
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			r.log.Error("session create failed", zap.String("survey_id", surveyID), zap.Error(err))
			return nil, err
		}
		r.log.Debug("session created", zap.String("token", s.Token), zap.String("survey_id", surveyID))
		return s, nil
	}
	return nil, fmt.Errorf("%w: no free token for %q", ErrConflict, surveyID)
}

// Get resolves a token.
func (r *Registry) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrNotFound)
	}
	return r.store.Get(ctx, token)
}

// Set moves a session's cursor.
func (r *Registry) Set(ctx context.Context, token string, position int) error {
	_, err := r.Update(ctx, token, func(s *Session) error {
		s.Position = position
		return nil
	})
	return err
}

// Update runs fn with exclusive access to the token's session and stores the
// result unless fn fails. UpdatedAt is stamped on every write.
func (r *Registry) Update(ctx context.Context, token string, fn func(*Session) error) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrNotFound)
	}
	s, err := r.store.Update(ctx, token, func(s *Session) error {
		if err := fn(s); err != nil {
			return err
		}
		s.UpdatedAt = r.now()
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
		case errors.Is(err, ErrConflict):
			r.log.Warn("session update conflict", zap.String("token", token))
		default:
			r.log.Error("session update failed", zap.String("token", token), zap.Error(err))
		}
		return nil, err
	}
	return s, nil
}

// Delete removes a session.
func (r *Registry) Delete(ctx context.Context, token string) error {
	return r.store.Delete(ctx, token)
}
