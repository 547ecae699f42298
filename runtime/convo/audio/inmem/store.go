// Package inmem provides an in-memory audio.ObjectStore for tests and local
// development.
package inmem

import (
	"context"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// Store is an in-memory audio.ObjectStore. URLs use the memory:// scheme.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Put implements audio.ObjectStore.
func (s *Store) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return "memory://" + key, nil
}

// Get implements audio.ObjectStore.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[key]; !ok {
		return "", false, nil
	}
	return "memory://" + key, true, nil
}

// Bytes returns the stored object payload, for test assertions.
func (s *Store) Bytes(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
