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

// ClientInfoRegistry stores per-client first-seen records, one document
// per (scope, client) pair keyed by derived id.
type ClientInfoRegistry struct {
	backend store.Backend
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Config
}

// NewClientInfoRegistry creates a facade over the client info bucket
func NewClientInfoRegistry(backend store.Backend, opts ...Option) *ClientInfoRegistry {
	o := newOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ClientInfoRegistry{
		backend: backend,
		logger:  o.logger,
		metrics: o.metrics,
		retry:   o.retry,
	}
}

// Upsert writes the record unless one already exists under its derived
// id. First-write fields are never overwritten: a lost creation race or a
// pre-existing record means the first observation is already on record,
// and the call is a no-op.
func (r *ClientInfoRegistry) Upsert(ctx context.Context, info *datastore.ClientInfo) (datastore.StorableID, error) {
	if err := info.Validate(); err != nil {
		r.metrics.record("client_info", "upsert", err)
		return "", err
	}
	if info.ID == "" {
		info.ID = info.DeriveID()
	}

	data, err := json.Marshal(info)
	if err != nil {
		return "", errors.WrapInvalid(err, "ClientInfoRegistry", "Upsert", "encode record")
	}

	err = retry.Do(ctx, r.retry, func() error {
		createErr := r.backend.Create(ctx, infoKey(info.ScopeID, info.ID), data)
		if errors.Is(createErr, errors.ErrAlreadyExists) {
			return nil
		}
		return createErr
	})
	r.metrics.record("client_info", "upsert", err)
	if err != nil {
		return "", errors.Wrap(err, "ClientInfoRegistry", "Upsert", "write record")
	}
	return info.ID, nil
}

// Find retrieves a record by scope and id
func (r *ClientInfoRegistry) Find(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) (*datastore.ClientInfo, error) {
	data, err := r.backend.Get(ctx, infoKey(scope, id))
	r.metrics.record("client_info", "find", err)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, "ClientInfoRegistry", "Find", "read record")
	}

	var info datastore.ClientInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.WrapFatal(err, "ClientInfoRegistry", "Find", "decode record")
	}
	return &info, nil
}

// Delete removes a record by scope and id. Returns errors.ErrNotFound if
// no such record exists.
func (r *ClientInfoRegistry) Delete(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) error {
	key := infoKey(scope, id)
	if _, err := r.backend.Get(ctx, key); err != nil {
		r.metrics.record("client_info", "delete", err)
		if errors.IsNotFound(err) {
			return errors.ErrNotFound
		}
		return errors.Wrap(err, "ClientInfoRegistry", "Delete", "read record")
	}

	err := retry.Do(ctx, r.retry, func() error {
		return r.backend.Delete(ctx, key)
	})
	r.metrics.record("client_info", "delete", err)
	if err != nil {
		return errors.Wrap(err, "ClientInfoRegistry", "Delete", "delete record")
	}
	return nil
}

// DeleteByQuery removes every record matching the query and reports the
// number deleted. An empty result is zero deletions, not an error.
func (r *ClientInfoRegistry) DeleteByQuery(ctx context.Context, q datastore.Query) (int, error) {
	deleted := 0
	err := r.scan(ctx, q, func(key string, info *datastore.ClientInfo) error {
		if err := r.backend.Delete(ctx, key); err != nil {
			return err
		}
		deleted++
		return nil
	})
	r.metrics.record("client_info", "delete_by_query", err)
	return deleted, err
}

// Count reports the number of records matching the query
func (r *ClientInfoRegistry) Count(ctx context.Context, q datastore.Query) (int, error) {
	count := 0
	err := r.scan(ctx, q, func(string, *datastore.ClientInfo) error {
		count++
		return nil
	})
	r.metrics.record("client_info", "count", err)
	return count, err
}

// scan visits every record in the query's scope that matches it
func (r *ClientInfoRegistry) scan(ctx context.Context, q datastore.Query, visit func(string, *datastore.ClientInfo) error) error {
	if err := q.Validate(); err != nil {
		return err
	}

	keys, err := r.backend.Keys(ctx, scopePrefix(q.Scope))
	if err != nil {
		return errors.Wrap(err, "ClientInfoRegistry", "scan", "list keys")
	}

	for _, key := range keys {
		data, err := r.backend.Get(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				// Deleted since listing; skip.
				continue
			}
			return errors.Wrap(err, "ClientInfoRegistry", "scan", "read record")
		}

		var info datastore.ClientInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return errors.WrapFatal(err, "ClientInfoRegistry", "scan", "decode record")
		}
		if !q.MatchesClientInfo(&info) {
			continue
		}
		if err := visit(key, &info); err != nil {
			return err
		}
	}
	return nil
}

// Ensure ClientInfoRegistry implements the mediator's contract
var _ datastore.ClientInfoRegistry = (*ClientInfoRegistry)(nil)
