package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/TristanCP/kapua/errors"
)

// MemBackend is an in-memory Backend for tests and embedded use. All
// operations are guarded by a single mutex; Create is therefore an atomic
// check-and-set, matching the single-creator guarantee of the KV backend.
type MemBackend struct {
	mu    sync.RWMutex
	items map[string]memEntry
}

type memEntry struct {
	value    []byte
	revision uint64
}

// NewMemBackend creates an empty in-memory backend
func NewMemBackend() *MemBackend {
	return &MemBackend{items: make(map[string]memEntry)}
}

// Create implements Backend
func (b *MemBackend) Create(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "Create", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.items[key]; exists {
		return errors.ErrAlreadyExists
	}
	b.items[key] = memEntry{value: cloneBytes(value), revision: 1}
	return nil
}

// Put implements Backend
func (b *MemBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "Put", key)
	}

	b.mu.Lock()
	b.items[key] = memEntry{value: cloneBytes(value), revision: b.items[key].revision + 1}
	b.mu.Unlock()
	return nil
}

// Get implements Backend
func (b *MemBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "Get", key)
	}

	b.mu.RLock()
	entry, exists := b.items[key]
	b.mu.RUnlock()
	if !exists {
		return nil, errors.ErrNotFound
	}
	return cloneBytes(entry.value), nil
}

// GetEntry implements Backend
func (b *MemBackend) GetEntry(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "GetEntry", key)
	}

	b.mu.RLock()
	entry, exists := b.items[key]
	b.mu.RUnlock()
	if !exists {
		return nil, errors.ErrNotFound
	}
	return &Entry{Value: cloneBytes(entry.value), Revision: entry.revision}, nil
}

// Update implements Backend
func (b *MemBackend) Update(ctx context.Context, key string, value []byte, revision uint64) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "Update", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	entry, exists := b.items[key]
	if !exists {
		return errors.ErrNotFound
	}
	if entry.revision != revision {
		return errors.ErrAlreadyExists
	}
	b.items[key] = memEntry{value: cloneBytes(value), revision: entry.revision + 1}
	return nil
}

// Delete implements Backend
func (b *MemBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "Delete", key)
	}

	b.mu.Lock()
	delete(b.items, key)
	b.mu.Unlock()
	return nil
}

// Keys implements Backend
func (b *MemBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(errors.ErrStoreUnavailable, "MemBackend", "Keys", prefix)
	}

	b.mu.RLock()
	var keys []string
	for key := range b.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	b.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Size returns the number of stored documents
func (b *MemBackend) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}

// Ensure MemBackend implements Backend
var _ Backend = (*MemBackend)(nil)
