package datastore

import "context"

// The mediator talks to its collaborators through narrow capability
// interfaces so each facade can be substituted independently in tests.
// The registry package provides the store-backed implementations.

// MessageStore persists raw telemetry messages in per-partition indexes.
type MessageStore interface {
	// Store persists the message in the given partition and returns the
	// store-assigned identifier.
	Store(ctx context.Context, partition *Partition, msg *Message) (StorableID, error)
	Find(ctx context.Context, scope ScopeID, id StorableID) (*Message, error)
	Delete(ctx context.Context, scope ScopeID, id StorableID) error
	DeleteByQuery(ctx context.Context, q Query) (int, error)
	Count(ctx context.Context, q Query) (int, error)
}

// ClientInfoRegistry stores per-client first-seen records.
type ClientInfoRegistry interface {
	Upsert(ctx context.Context, info *ClientInfo) (StorableID, error)
	Find(ctx context.Context, scope ScopeID, id StorableID) (*ClientInfo, error)
	Delete(ctx context.Context, scope ScopeID, id StorableID) error
	DeleteByQuery(ctx context.Context, q Query) (int, error)
	Count(ctx context.Context, q Query) (int, error)
}

// ChannelInfoRegistry stores per-channel first-seen records.
type ChannelInfoRegistry interface {
	Upsert(ctx context.Context, info *ChannelInfo) (StorableID, error)
	Find(ctx context.Context, scope ScopeID, id StorableID) (*ChannelInfo, error)
	Delete(ctx context.Context, scope ScopeID, id StorableID) error
	DeleteByQuery(ctx context.Context, q Query) (int, error)
	Count(ctx context.Context, q Query) (int, error)
}

// MetricInfoRegistry stores per-metric first-seen records, batched per
// message on the write path.
type MetricInfoRegistry interface {
	Upsert(ctx context.Context, info *MetricInfo) (StorableID, error)
	UpsertMany(ctx context.Context, infos []*MetricInfo) ([]StorableID, error)
	Find(ctx context.Context, scope ScopeID, id StorableID) (*MetricInfo, error)
	Delete(ctx context.Context, scope ScopeID, id StorableID) error
	DeleteByQuery(ctx context.Context, q Query) (int, error)
	Count(ctx context.Context, q Query) (int, error)
}

// SchemaSynchronizer keeps the store's per-partition field mapping
// consistent with the metric types actually being written.
type SchemaSynchronizer interface {
	// Metadata resolves (creating if absent) the partition for this scope
	// covering the given timestamp. Concurrent callers observe a single
	// creation.
	Metadata(ctx context.Context, scope ScopeID, indexedOn int64) (*Partition, error)
	// EnsureMetricMapping registers the (name, type) mapping for the
	// partition unless already known. A name mapped to a different type
	// fails with a MappingConflictError.
	EnsureMetricMapping(ctx context.Context, partition *Partition, name string, t MetricType) error
}
