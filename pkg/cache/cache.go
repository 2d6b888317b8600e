// Package cache provides a generic, thread-safe in-memory cache with
// built-in statistics and optional Prometheus metrics.
//
// The cache has no eviction policy: entries live until explicitly deleted
// or cleared. The schema synchronizer uses it for known metric mappings,
// which are a pure performance optimization over the store's authoritative
// state and are bounded by the number of distinct metrics per scope.
package cache

import (
	"strings"

	"github.com/TristanCP/kapua/errors"
	"github.com/TristanCP/kapua/metric"
)

// Cache is a thread-safe cache parameterized by value type V.
type Cache[V any] struct {
	entries *store[V]
	stats   *Statistics
	metrics *cacheMetrics
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMetrics exposes cache statistics as Prometheus metrics under the
// given component prefix.
func WithMetrics(reg *metric.MetricsRegistry, prefix string) Option {
	return func(o *options) {
		o.metricsReg = reg
		o.metricsPrefix = prefix
	}
}

// New creates a cache. Returns an error if metrics registration fails.
func New[V any](opts ...Option) (*Cache[V], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var metrics *cacheMetrics
	if o.metricsReg != nil && o.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(o.metricsReg, o.metricsPrefix)
		if err != nil {
			return nil, errors.Wrap(err, "cache", "New", "metrics registration")
		}
	}

	return &Cache[V]{
		entries: newStore[V](),
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// Get retrieves a value by key.
func (c *Cache[V]) Get(key string) (V, bool) {
	value, exists := c.entries.get(key)

	if exists {
		c.stats.Hit()
		if c.metrics != nil {
			c.metrics.recordHit()
		}
	} else {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
	}

	return value, exists
}

// Set stores a value with the given key. Returns true if a new entry was
// created, false if an existing one was updated.
func (c *Cache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	created, size := c.entries.set(key, value)

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}

	return created, nil
}

// Delete removes an entry by key. Returns true if the key existed.
func (c *Cache[V]) Delete(key string) bool {
	deleted, size := c.entries.delete(key)
	if deleted {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(size)
		}
	}
	return deleted
}

// DeletePrefix removes every entry whose key starts with prefix and
// returns the number of entries removed.
func (c *Cache[V]) DeletePrefix(prefix string) int {
	removed, size := c.entries.deletePrefix(prefix)
	for i := 0; i < removed; i++ {
		c.stats.Delete()
		if c.metrics != nil {
			c.metrics.recordDelete()
		}
	}
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.updateSize(size)
	}
	return removed
}

// Clear removes all entries from the cache.
func (c *Cache[V]) Clear() {
	c.entries.clear()
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
}

// Size returns the current number of entries in the cache.
func (c *Cache[V]) Size() int {
	return c.entries.size()
}

// Keys returns a slice of all keys currently in the cache.
func (c *Cache[V]) Keys() []string {
	return c.entries.keys()
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() *Statistics {
	return c.stats
}

// validateKey rejects keys that cannot round-trip through stores and logs.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidInput, "cache", "Set", "empty key")
	}
	if strings.ContainsAny(key, " \t\n") {
		return errors.WrapInvalid(errors.ErrInvalidInput, "cache", "Set", "whitespace in key")
	}
	return nil
}
