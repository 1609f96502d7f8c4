package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-node
// deployments. Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	personID  string
	expiresAt time.Time
}

// NewMemoryStore constructs an empty store. A nil clock defaults to
// time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) Add(_ context.Context, tokenID, personID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		// A token past its own expiry needs no blacklist entry.
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, id)
		}
	}
	s.entries[tokenID] = memoryEntry{personID: personID, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Contains(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports live entries; expired ones still pending lazy cleanup are
// excluded.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, e := range s.entries {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n
}
