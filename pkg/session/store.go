package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Store persists sessions. Update must run fn with exclusive access to the
// token's session: no other Update for the same token may interleave.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Update(ctx context.Context, token string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, token string) error
}

// Pinger is implemented by stores backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ─── Memory store ───────────────────────────────────────────────────────

type memEntry struct {
	mu      sync.Mutex
	s       *Session
	deleted bool
}

// MemoryStore keeps sessions in process memory with one lock per token.
// The map lock is held only to find or insert an entry, never across fn.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

func (m *MemoryStore) entry(token string) (*memEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[token]
	return e, ok
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[s.Token]; ok {
		return fmt.Errorf("%w: %q", ErrExists, s.Token)
	}
	m.entries[s.Token] = &memEntry{s: s.Clone()}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	e, ok := m.entry(token)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	return e.s.Clone(), nil
}

// Update implements Store. fn works on a copy that replaces the stored
// session only when fn returns nil.
func (m *MemoryStore) Update(ctx context.Context, token string, fn func(*Session) error) (*Session, error) {
	e, ok := m.entry(token)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	work := e.s.Clone()
	if err := fn(work); err != nil {
		if errors.Is(err, ErrNoChange) {
			return e.s.Clone(), nil
		}
		return nil, err
	}
	e.s = work
	return work.Clone(), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	e, ok := m.entries[token]
	delete(m.entries, token)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, token)
	}
	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
