// Package store defines the pluggable document-store backend the
// datastore facades and schema synchronizer write through.
//
// A Backend is scoped to one bucket (one entity kind): each facade owns
// its backend instance, mirroring how storage components each own their
// store. Keys are dot-separated paths beginning with the scope id, so a
// scope's documents always share a key prefix.
package store

import "context"

// Entry is a stored document together with the revision that wrote it,
// the token Update needs for compare-and-swap.
type Entry struct {
	Value    []byte
	Revision uint64
}

// Backend is the bucket-scoped document store interface.
//
// Implementations must be safe for concurrent use and must honor context
// deadlines on every call, surfacing timeouts as store unavailability
// rather than hanging.
type Backend interface {
	// Create stores the value only if the key does not exist yet. Under
	// concurrent creation exactly one caller succeeds; the rest receive
	// errors.ErrAlreadyExists. This is the single-creator primitive the
	// schema synchronizer builds on.
	Create(ctx context.Context, key string, value []byte) error

	// Put stores the value regardless of prior state.
	Put(ctx context.Context, key string, value []byte) error

	// Get retrieves the value for a key. Returns errors.ErrNotFound if
	// the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetEntry retrieves the value together with its revision, for use
	// with Update. Returns errors.ErrNotFound if the key is absent.
	GetEntry(ctx context.Context, key string) (*Entry, error)

	// Update stores the value only if the key's current revision still
	// matches. A write that slipped in between surfaces as
	// errors.ErrAlreadyExists, so callers re-read and merge again.
	Update(ctx context.Context, key string, value []byte, revision uint64) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys starting with the given prefix, which must end on
	// a token boundary (a trailing dot) or be empty for all keys.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
