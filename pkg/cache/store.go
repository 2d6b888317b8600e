package cache

import (
	"strings"
	"sync"
)

// store holds the cache entries behind a read/write mutex. Reads are the
// hot path under concurrent ingestion; writes only happen on first sight
// of a partition or metric mapping.
type store[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

func newStore[V any]() *store[V] {
	return &store[V]{items: make(map[string]V)}
}

func (s *store[V]) get(key string) (V, bool) {
	s.mu.RLock()
	value, exists := s.items[key]
	s.mu.RUnlock()
	return value, exists
}

func (s *store[V]) set(key string, value V) (created bool, size int) {
	s.mu.Lock()
	_, exists := s.items[key]
	s.items[key] = value
	size = len(s.items)
	s.mu.Unlock()
	return !exists, size
}

func (s *store[V]) delete(key string) (deleted bool, size int) {
	s.mu.Lock()
	_, exists := s.items[key]
	delete(s.items, key)
	size = len(s.items)
	s.mu.Unlock()
	return exists, size
}

func (s *store[V]) deletePrefix(prefix string) (removed, size int) {
	s.mu.Lock()
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
			removed++
		}
	}
	size = len(s.items)
	s.mu.Unlock()
	return removed, size
}

func (s *store[V]) clear() {
	s.mu.Lock()
	s.items = make(map[string]V)
	s.mu.Unlock()
}

func (s *store[V]) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *store[V]) keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	return keys
}
