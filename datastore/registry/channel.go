package registry

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/TristanCP/kapua/datastore"
	"github.com/TristanCP/kapua/datastore/store"
	"github.com/TristanCP/kapua/errors"
	"github.com/TristanCP/kapua/pkg/retry"
)

// ChannelInfoRegistry stores per-channel first-seen records, one document
// per (scope, client, channel) triple keyed by derived id.
type ChannelInfoRegistry struct {
	backend store.Backend
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Config
}

// NewChannelInfoRegistry creates a facade over the channel info bucket
func NewChannelInfoRegistry(backend store.Backend, opts ...Option) *ChannelInfoRegistry {
	o := newOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ChannelInfoRegistry{
		backend: backend,
		logger:  o.logger,
		metrics: o.metrics,
		retry:   o.retry,
	}
}

// Upsert writes the record unless one already exists under its derived
// id. A record that is already present keeps its first-write fields and
// the call is a no-op.
func (r *ChannelInfoRegistry) Upsert(ctx context.Context, info *datastore.ChannelInfo) (datastore.StorableID, error) {
	if err := info.Validate(); err != nil {
		r.metrics.record("channel_info", "upsert", err)
		return "", err
	}
	if info.ID == "" {
		info.ID = info.DeriveID()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", errors.WrapInvalid(err, "ChannelInfoRegistry", "Upsert", "encode record")
	}

	err = retry.Do(ctx, r.retry, func() error {
		createErr := r.backend.Create(ctx, infoKey(info.ScopeID, info.ID), data)
		if errors.Is(createErr, errors.ErrAlreadyExists) {
			return nil
		}
		return createErr
	})
	r.metrics.record("channel_info", "upsert", err)
	if err != nil {
		return "", errors.Wrap(err, "ChannelInfoRegistry", "Upsert", "write record")
	}
	return info.ID, nil
}

// Find retrieves a record by scope and id
func (r *ChannelInfoRegistry) Find(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) (*datastore.ChannelInfo, error) {
	data, err := r.backend.Get(ctx, infoKey(scope, id))
	r.metrics.record("channel_info", "find", err)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, "ChannelInfoRegistry", "Find", "read record")
	}

	var info datastore.ChannelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.WrapFatal(err, "ChannelInfoRegistry", "Find", "decode record")
	}
	return &info, nil
}

// Delete removes a record by scope and id. Returns errors.ErrNotFound if
// no such record exists.
func (r *ChannelInfoRegistry) Delete(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) error {
	key := infoKey(scope, id)
	if _, err := r.backend.Get(ctx, key); err != nil {
		r.metrics.record("channel_info", "delete", err)
		if errors.IsNotFound(err) {
			return errors.ErrNotFound
		}
		return errors.Wrap(err, "ChannelInfoRegistry", "Delete", "read record")
	}

	err := retry.Do(ctx, r.retry, func() error {
		return r.backend.Delete(ctx, key)
	})
	r.metrics.record("channel_info", "delete", err)
	if err != nil {
		return errors.Wrap(err, "ChannelInfoRegistry", "Delete", "delete record")
	}
	return nil
}

// DeleteByQuery removes every record matching the query and reports the
// number deleted
func (r *ChannelInfoRegistry) DeleteByQuery(ctx context.Context, q datastore.Query) (int, error) {
	deleted := 0
	err := r.scan(ctx, q, func(key string, info *datastore.ChannelInfo) error {
		if err := r.backend.Delete(ctx, key); err != nil {
			return err
		}
		deleted++
		return nil
	})
	r.metrics.record("channel_info", "delete_by_query", err)
	return deleted, err
}

// Count reports the number of records matching the query
func (r *ChannelInfoRegistry) Count(ctx context.Context, q datastore.Query) (int, error) {
	count := 0
	err := r.scan(ctx, q, func(string, *datastore.ChannelInfo) error {
		count++
		return nil
	})
	r.metrics.record("channel_info", "count", err)
	return count, err
}

func (r *ChannelInfoRegistry) scan(ctx context.Context, q datastore.Query, visit func(string, *datastore.ChannelInfo) error) error {
	if err := q.Validate(); err != nil {
		return err
	}

	keys, err := r.backend.Keys(ctx, scopePrefix(q.Scope))
	if err != nil {
		return errors.Wrap(err, "ChannelInfoRegistry", "scan", "list keys")
	}

	for _, key := range keys {
		data, err := r.backend.Get(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return errors.Wrap(err, "ChannelInfoRegistry", "scan", "read record")
		}

		var info datastore.ChannelInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return errors.WrapFatal(err, "ChannelInfoRegistry", "scan", "decode record")
		}
		if !q.MatchesChannelInfo(&info) {
			continue
		}
		if err := visit(key, &info); err != nil {
			return err
		}
	}
	return nil
}

var _ datastore.ChannelInfoRegistry = (*ChannelInfoRegistry)(nil)
