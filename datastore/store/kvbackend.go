package store

import (
	"context"
	"strings"

	"github.com/TristanCP/kapua/natsclient"
)

// KVBackend implements Backend over a NATS JetStream KeyValue bucket.
//
// Compare-and-create maps directly onto the KV Create operation, which the
// server arbitrates: concurrent creators race there and exactly one wins.
// Per-operation timeouts are applied by the underlying KVStore.
type KVBackend struct {
	kv *natsclient.KVStore
}

// NewKVBackend wraps a KV store as a document backend
func NewKVBackend(kv *natsclient.KVStore) *KVBackend {
	return &KVBackend{kv: kv}
}

// Create implements Backend
func (b *KVBackend) Create(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Create(ctx, key, value)
	return err
}

// Put implements Backend
func (b *KVBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

// Get implements Backend
func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// GetEntry implements Backend
func (b *KVBackend) GetEntry(ctx context.Context, key string) (*Entry, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Entry{Value: entry.Value, Revision: entry.Revision}, nil
}

// Update implements Backend
func (b *KVBackend) Update(ctx context.Context, key string, value []byte, revision uint64) error {
	_, err := b.kv.Update(ctx, key, value, revision)
	return err
}

// Delete implements Backend
func (b *KVBackend) Delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, key)
}

// Keys implements Backend
func (b *KVBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	filter := ">"
	if prefix != "" {
		filter = strings.TrimSuffix(prefix, ".") + ".>"
	}

	keys, err := b.kv.Keys(ctx, filter)
	if err != nil {
		return nil, err
	}

	// The subject filter already walks token boundaries; re-check the raw
	// prefix so callers get exactly what Backend promises.
	out := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

// Ensure KVBackend implements Backend
var _ Backend = (*KVBackend)(nil)
