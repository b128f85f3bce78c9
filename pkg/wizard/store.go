package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persisted is the resume blob.
type Persisted struct {
	SurveyID    string `json:"surveyID"`
	SessionID   string `json:"sessionID"`
	History     []Step `json:"history"`
	StepPointer int    `json:"stepPointer"`
	Completed   bool   `json:"completed,omitempty"`
}

// Resumable reports whether p may continue a run of surveyID. A completed
// run is never resumed.
func (p *Persisted) Resumable(surveyID string) bool {
	return p != nil && !p.Completed && p.SurveyID == surveyID && p.SessionID != ""
}

// Store is the client's key-value slot for the resume blob. Each Save
// replaces the whole blob atomically. Load returns nil, nil when empty.
type Store interface {
	Load(ctx context.Context) (*Persisted, error)
	Save(ctx context.Context, p *Persisted) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the blob encoded in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// Load implements Store.
func (m *MemoryStore) Load(context.Context) (*Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	var p Persisted
	if err := json.Unmarshal(m.data, &p); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &p, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, p *Persisted) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

// FileStore keeps the blob in a JSON file, written through a temp file and
// rename.
type FileStore struct {
	Path string
}

// Load implements Store.
func (f FileStore) Load(context.Context) (*Persisted, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", f.Path, err)
	}
	return &p, nil
}

// Save implements Store.
func (f FileStore) Save(_ context.Context, p *Persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".wizard-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Clear implements Store.
func (f FileStore) Clear(context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}
