package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when no live session matches the id.
var ErrNotFound = errors.New("session not found")

// Store abstracts session persistence so the in-memory implementation can be
// swapped for an external store without touching the orchestrator.
type Store interface {
	// GetOrCreate returns the live session for id, or allocates a new one.
	// An empty id always allocates, assigning a fresh unique id. A lookup
	// miss on an explicit id is treated as "create with that id".
	GetOrCreate(ctx context.Context, id string) (*Session, error)

	// Get returns the live session for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Save persists the session after the orchestrator mutated it.
	Save(ctx context.Context, s *Session) error
}

// MemoryStore keeps sessions in process memory. Writes go through the
// orchestrator only, one call sequence per session at a time.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory session store. A zero ttl disables
// expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok && !m.expired(s) {
			s.LastActivity = time.Now().UTC()
			return s, nil
		}
	}

	s := New(id)
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || m.expired(s) {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s
	return nil
}

// CleanupExpired removes sessions idle longer than the TTL and returns how
// many were removed. Call periodically to bound memory.
func (m *MemoryStore) CleanupExpired() int {
	if m.ttl <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-m.ttl)
	var removed int
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryStore) expired(s *Session) bool {
	if m.ttl <= 0 {
		return false
	}
	return time.Since(s.LastActivity) > m.ttl
}
