package store

import (
	"context"
	"sync"
)

// MemoryStorage is an in-process Storage backend. It is the default for
// single-instance deployments and for tests.
type MemoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

// NewMemoryStorage creates an empty in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stores: make(map[string]*memoryStore),
	}
}

// Open returns the named store, creating it if absent.
func (s *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.stores[name]; ok {
		return st, nil
	}
	st := &memoryStore{entries: make(map[string]*Entry)}
	s.stores[name] = st
	return st, nil
}

// Names lists the names of all existing stores.
func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	return names, nil
}

// Remove deletes a store and all of its entries.
func (s *MemoryStorage) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, name)
	return nil
}

// memoryStore is a map guarded by a RWMutex. Put and Get are atomic per
// key, which is the only guarantee the worker relies on.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func (s *memoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

func (s *memoryStore) Put(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry.Clone()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *memoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
