package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/TristanCP/kapua/errors"
)

// KVEntry wraps a KV entry with its revision for CAS operations
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operations behavior
type KVOptions struct {
	Timeout      time.Duration // Per-operation timeout
	MaxValueSize int           // Maximum size for values
}

// DefaultKVOptions returns sensible defaults for datastore buckets
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024, // 1MB
	}
}

// KVStore provides KV operations with per-call timeouts and
// compare-and-create semantics for single-creator guarantees.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore creates a KV store over the given bucket
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
		logger:  c.logger,
	}
}

// applyTimeout applies the configured timeout to the context if set
func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves the entry for a key. Returns errors.ErrNotFound if absent.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, errors.ErrNotFound
		}
		return nil, classifyKVError(err, "Get", key)
	}

	return &KVEntry{
		Key:      entry.Key(),
		Value:    entry.Value(),
		Revision: entry.Revision(),
	}, nil
}

// Put stores a value regardless of prior state
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(errors.ErrInvalidInput, "KVStore", "Put", "value exceeds max size")
	}

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, classifyKVError(err, "Put", key)
	}
	return rev, nil
}

// Create stores a value only if the key does not exist yet. Concurrent
// creators race at the server; exactly one wins, the rest get
// errors.ErrAlreadyExists.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(errors.ErrInvalidInput, "KVStore", "Create", "value exceeds max size")
	}

	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, errors.ErrAlreadyExists
		}
		return 0, classifyKVError(err, "Create", key)
	}
	return rev, nil
}

// Update stores a value only if the current revision matches
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, errors.ErrAlreadyExists
		}
		return 0, classifyKVError(err, "Update", key)
	}
	return rev, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if IsKVNotFoundError(err) {
			return nil
		}
		return classifyKVError(err, "Delete", key)
	}
	return nil
}

// Keys lists keys matching a subject filter (e.g. "scope1.>").
// Returns an empty slice when nothing matches.
func (kv *KVStore) Keys(ctx context.Context, filter string) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	lister, err := kv.bucket.ListKeysFiltered(ctx, filter)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, nil
		}
		return nil, classifyKVError(err, "Keys", filter)
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// classifyKVError maps jetstream failures onto the datastore taxonomy.
// Timeouts and connectivity problems surface as store unavailability so
// callers can retry with backoff.
func classifyKVError(err error, op, key string) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "KVStore", op, key)
	}
	return errors.WrapTransient(err, "KVStore", op, key)
}

// IsKVNotFoundError checks if an error indicates an absent key or bucket
func IsKVNotFoundError(err error) bool {
	return stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrBucketNotFound) ||
		stderrors.Is(err, jetstream.ErrNoKeysFound)
}

// IsKVConflictError checks if an error indicates a create or revision conflict
func IsKVConflictError(err error) bool {
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	// Revision mismatch on Update surfaces as a "wrong last sequence" API error.
	return err != nil && strings.Contains(err.Error(), "wrong last sequence")
}
