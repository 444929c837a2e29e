package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/walletauth/ports"
)

type memoryEntry struct {
	session   ports.StoredSession
	expiresAt time.Time // Zero means no expiry
}

// MemoryStore is an in-memory implementation of ports.RefreshStore
type MemoryStore struct {
	sessions map[string]memoryEntry
	mu       sync.RWMutex
	now      func() time.Time
}

var _ ports.RefreshStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

// Save stores session under key. A non-positive ttl keeps it until deleted.
func (s *MemoryStore) Save(ctx context.Context, key string, session ports.StoredSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{session: session}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.sessions[key] = entry
	return nil
}

// Load returns the session stored under key
func (s *MemoryStore) Load(ctx context.Context, key string) (ports.StoredSession, error) {
	s.mu.RLock()
	entry, ok := s.sessions[key]
	s.mu.RUnlock()

	if !ok {
		return ports.StoredSession{}, ports.ErrNotFound
	}

	// Expired entries are dropped lazily
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.sessions[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.sessions, key)
		}
		s.mu.Unlock()
		return ports.StoredSession{}, ports.ErrNotFound
	}

	return entry.session, nil
}

// Delete removes the session stored under key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}
