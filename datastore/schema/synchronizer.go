// Package schema keeps the document store's per-partition metric mappings
// consistent with the types actually being written, minimizing store
// round-trips under concurrent ingestion.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/TristanCP/kapua/datastore"
	"github.com/TristanCP/kapua/datastore/store"
	"github.com/TristanCP/kapua/errors"
	"github.com/TristanCP/kapua/metric"
	"github.com/TristanCP/kapua/pkg/cache"
	"github.com/TristanCP/kapua/pkg/timestamp"
)

// mappingDoc is the stored registration of one metric mapping.
type mappingDoc struct {
	Name string               `json:"name"`
	Type datastore.MetricType `json:"type"`
}

// Synchronizer implements datastore.SchemaSynchronizer over a bucket-scoped
// backend.
//
// Its caches are a pure performance optimization over the store's
// authoritative state: they may be stale in the harmless direction (a
// redundant Create against the store is safe and idempotent) but an entry
// is only cached after the store has acknowledged the registration, so a
// registration the store has not seen is never suppressed.
type Synchronizer struct {
	backend    store.Backend
	partitions *cache.Cache[*datastore.Partition]
	mappings   *cache.Cache[datastore.MetricType]
	logger     *slog.Logger
}

// Option configures a Synchronizer
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metricsReg *metric.MetricsRegistry
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics exposes cache statistics as Prometheus metrics
func WithMetrics(reg *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.metricsReg = reg
	}
}

// NewSynchronizer creates a synchronizer over the schema bucket
func NewSynchronizer(backend store.Backend, opts ...Option) (*Synchronizer, error) {
	if backend == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidInput, "Synchronizer", "NewSynchronizer", "nil backend")
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var cacheOpts []cache.Option
	var mappingCacheOpts []cache.Option
	if o.metricsReg != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(o.metricsReg, "schema_partitions"))
		mappingCacheOpts = append(mappingCacheOpts, cache.WithMetrics(o.metricsReg, "schema_mappings"))
	}

	partitions, err := cache.New[*datastore.Partition](cacheOpts...)
	if err != nil {
		return nil, err
	}
	mappings, err := cache.New[datastore.MetricType](mappingCacheOpts...)
	if err != nil {
		return nil, err
	}

	return &Synchronizer{
		backend:    backend,
		partitions: partitions,
		mappings:   mappings,
		logger:     o.logger,
	}, nil
}

// Metadata resolves (creating if absent) the time partition for this scope
// covering the given timestamp.
//
// Creation uses the backend's compare-and-create: under concurrent first
// use exactly one caller stores the partition document and every caller
// converges on the same handle.
func (s *Synchronizer) Metadata(ctx context.Context, scope datastore.ScopeID, indexedOn int64) (*datastore.Partition, error) {
	if scope == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidInput, "Synchronizer", "Metadata", "empty scope")
	}
	if indexedOn == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidInput, "Synchronizer", "Metadata", "zero timestamp")
	}

	partition := &datastore.Partition{
		Scope:  scope,
		Window: timestamp.Week(indexedOn),
		Start:  timestamp.WeekStart(indexedOn),
		End:    timestamp.WeekEnd(indexedOn),
	}
	key := partition.Key()

	if cached, ok := s.partitions.Get(key); ok {
		return cached, nil
	}

	doc, err := json.Marshal(partition)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Synchronizer", "Metadata", "encode partition")
	}

	if err := s.backend.Create(ctx, key, doc); err != nil {
		if !errors.Is(err, errors.ErrAlreadyExists) {
			return nil, errors.Wrap(err, "Synchronizer", "Metadata", "create partition")
		}
		// Lost the creation race or found an existing partition; both
		// converge on the same handle.
	} else {
		s.logger.Debug("created index partition", "partition", partition.Name())
	}

	if _, err := s.partitions.Set(key, partition); err != nil {
		return nil, err
	}
	return partition, nil
}

// EnsureMetricMapping registers the (name, type) mapping for the partition
// unless it is already known.
//
// A cache hit on the same pair returns immediately with no store call. A
// name already mapped to a different type fails with MappingConflictError;
// that single metric write is rejected while the rest of the message's
// metrics proceed independently.
func (s *Synchronizer) EnsureMetricMapping(ctx context.Context, partition *datastore.Partition, name string, t datastore.MetricType) error {
	if partition == nil {
		return errors.WrapInvalid(errors.ErrInvalidInput, "Synchronizer", "EnsureMetricMapping", "nil partition")
	}
	if name == "" || t == "" {
		return errors.WrapInvalid(errors.ErrInvalidInput, "Synchronizer", "EnsureMetricMapping", "empty name or type")
	}

	// Metric names are free-form; key them by derived id so arbitrary
	// names stay valid store and cache keys.
	key := fmt.Sprintf("%s.%s", partition.Key(), datastore.DeriveID(name))

	if existing, ok := s.mappings.Get(key); ok {
		if existing == t {
			return nil
		}
		return &errors.MappingConflictError{Name: name, Existing: string(existing), Requested: string(t)}
	}

	doc, err := json.Marshal(mappingDoc{Name: name, Type: t})
	if err != nil {
		return errors.WrapInvalid(err, "Synchronizer", "EnsureMetricMapping", "encode mapping")
	}

	createErr := s.backend.Create(ctx, key, doc)
	if createErr == nil {
		_, err = s.mappings.Set(key, t)
		return err
	}
	if !errors.Is(createErr, errors.ErrAlreadyExists) {
		return errors.Wrap(createErr, "Synchronizer", "EnsureMetricMapping", "register mapping")
	}

	// Another writer registered this name first; the store is
	// authoritative on which type won.
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return errors.Wrap(err, "Synchronizer", "EnsureMetricMapping", "read existing mapping")
	}
	var existing mappingDoc
	if err := json.Unmarshal(data, &existing); err != nil {
		return errors.WrapFatal(err, "Synchronizer", "EnsureMetricMapping", "decode existing mapping")
	}

	if existing.Type == t {
		_, err = s.mappings.Set(key, t)
		return err
	}
	return &errors.MappingConflictError{Name: name, Existing: string(existing.Type), Requested: string(t)}
}

// InvalidateScope drops all cached state for a scope, forcing the next
// writes to re-read the store's authoritative mappings.
func (s *Synchronizer) InvalidateScope(scope datastore.ScopeID) {
	prefix := string(scope) + "."
	s.partitions.DeletePrefix(prefix)
	s.mappings.DeletePrefix(prefix)
}

// Ensure Synchronizer implements the mediator's contract
var _ datastore.SchemaSynchronizer = (*Synchronizer)(nil)
