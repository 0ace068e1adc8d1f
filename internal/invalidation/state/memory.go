package state

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryEntries = 1024

type memoryStore struct {
	mu      sync.Mutex
	entries *expirable.LRU[string, State]
}

// NewMemory returns a process-local Store. State does not survive restarts.
func NewMemory(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &memoryStore{entries: expirable.NewLRU[string, State](defaultMemoryEntries, nil, ttl)}
}

func (s *memoryStore) Get(_ context.Context, key string) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries.Get(key)
	if !ok {
		return State{}, false, nil
	}
	return current.Clone(), true, nil
}

func (s *memoryStore) CompareAndSet(_ context.Context, key string, expected int64, next State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var revision int64
	if current, ok := s.entries.Get(key); ok {
		revision = current.Revision
	}
	if revision != expected {
		return false, nil
	}
	stored := next.Clone()
	stored.Revision = expected + 1
	s.entries.Add(key, stored)
	return true, nil
}

func (s *memoryStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Purge()
	return nil
}
