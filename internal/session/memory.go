package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	pending   PendingImage
	expiresAt time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, id string, pending PendingImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.entries[id] = memoryEntry{pending: pending, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (PendingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id)
}

func (s *MemoryStore) Take(_ context.Context, id string) (PendingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.lookup(id)
	delete(s.entries, id)
	return pending, err
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) lookup(id string) (PendingImage, error) {
	e, ok := s.entries[id]
	if !ok || !s.now().Before(e.expiresAt) {
		return PendingImage{}, ErrNotFound
	}
	return e.pending, nil
}
