package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps keys in process memory. Used by tests and dry runs.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[Key]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[Key]struct{})}
}

func (s *MemoryStore) Exists(_ context.Context, k Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[k]
	return ok, nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, k Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; ok {
		return false, nil
	}
	s.keys[k] = struct{}{}
	return true, nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *MemoryStore) Close() error { return nil }
