package survey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when no definition exists for a survey ID.
	ErrNotFound = errors.New("survey not found")
	// ErrInvalidID is returned for survey IDs that cannot name a definition.
	ErrInvalidID = errors.New("invalid survey id")
	// ErrInvalidDefinition is returned when a definition decodes but breaks
	// a domain rule such as a reserved character in a question ID.
	ErrInvalidDefinition = errors.New("invalid survey definition")
)

// Source loads survey definitions by ID. Implementations read storage on every
// call; callers must not rely on caching.
type Source interface {
	Load(ctx context.Context, surveyID string) (*Survey, error)
}

// Lister is implemented by sources that can enumerate their surveys.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// CheckID rejects IDs that are empty, contain the session token delimiter,
// or could escape a directory.
func CheckID(surveyID string) error {
	if surveyID == "" || strings.ContainsAny(surveyID, `|/\`) || strings.Contains(surveyID, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, surveyID)
	}
	return nil
}

// checkDomain rejects surveys with error-severity domain findings.
func checkDomain(s *Survey) error {
	var msgs []string
	for _, e := range ValidateDomain(s) {
		if e.Severity == "error" {
			msgs = append(msgs, e.Path+": "+e.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %s", ErrInvalidDefinition, s.ID, strings.Join(msgs, "; "))
}

// DirSource loads <Dir>/<surveyID>.{json,yaml,yml}.
type DirSource struct {
	Dir string
}

var dirExtensions = []string{".json", ".yaml", ".yml"}

// Load implements Source.
func (d DirSource) Load(ctx context.Context, surveyID string) (*Survey, error) {
	if err := CheckID(surveyID); err != nil {
		return nil, err
	}
	for _, ext := range dirExtensions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(d.Dir, surveyID+ext)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat survey %q: %w", surveyID, err)
		}
		s, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load survey %q: %w", surveyID, err)
		}
		if err := checkDomain(s); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, surveyID)
}

// List returns the survey IDs present in the directory.
func (d DirSource) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	var ids []string
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatOf(e.Name()); err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MemorySource serves definitions held in memory.
type MemorySource struct {
	mu      sync.RWMutex
	surveys map[string]*Survey
}

// NewMemorySource returns a source holding the given surveys keyed by ID.
func NewMemorySource(surveys ...*Survey) *MemorySource {
	m := &MemorySource{surveys: make(map[string]*Survey, len(surveys))}
	for _, s := range surveys {
		m.surveys[s.ID] = s
	}
	return m
}

// Put adds or replaces a survey.
func (m *MemorySource) Put(s *Survey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveys[s.ID] = s
}

// Remove deletes a survey.
func (m *MemorySource) Remove(surveyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.surveys, surveyID)
}

// Load implements Source.
func (m *MemorySource) Load(_ context.Context, surveyID string) (*Survey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surveys[surveyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, surveyID)
	}
	return s, nil
}
