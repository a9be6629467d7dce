package swrcache

import (
	"context"
	"sync"
)

// InMemoryStore is a thread-safe, in-process Store. It is the default
// backend for tests and single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]Entry),
	}
}

// Read returns the current entry for key.
func (s *InMemoryStore) Read(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Write stores value under key, bumping the entry version.
func (s *InMemoryStore) Write(_ context.Context, key string, value any) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{Value: value, Version: s.entries[key].Version + 1}
	s.entries[key] = entry
	return entry, nil
}

// CompareAndSwap replaces the value only if the current version matches.
func (s *InMemoryStore) CompareAndSwap(_ context.Context, key string, expect int64, value any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok || current.Version != expect {
		return false, nil
	}
	s.entries[key] = Entry{Value: value, Version: current.Version + 1}
	return true, nil
}

// CompareAndDelete removes the entry only if the current version matches.
func (s *InMemoryStore) CompareAndDelete(_ context.Context, key string, expect int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entries[key]
	if !ok || current.Version != expect {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Invalidate marks the entry stale. The value and version are untouched so
// in-flight rollbacks still pair up correctly.
func (s *InMemoryStore) Invalidate(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		entry.Stale = true
		s.entries[key] = entry
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
