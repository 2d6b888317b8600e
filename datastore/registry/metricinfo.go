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

// MetricInfoRegistry stores per-metric first-seen records, one document
// per (scope, client, channel, name, type) tuple keyed by derived id.
// Unlike the other info registries it carries a mutable tail: the most
// recent observed value is refreshed on every upsert while the
// first-observation fields stay fixed.
type MetricInfoRegistry struct {
	backend store.Backend
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Config
}

// NewMetricInfoRegistry creates a facade over the metric info bucket
func NewMetricInfoRegistry(backend store.Backend, opts ...Option) *MetricInfoRegistry {
	o := newOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MetricInfoRegistry{
		backend: backend,
		logger:  o.logger,
		metrics: o.metrics,
		retry:   o.retry,
	}
}

// Upsert writes the record under its derived id. The first writer fixes
// the first-observation fields; later writers only refresh LastValue.
// Two racing creators converge because the loser re-reads the winner's
// document and swaps in the mutable tail against that revision; a write
// that slips in between fails the swap and the merge runs again.
func (r *MetricInfoRegistry) Upsert(ctx context.Context, info *datastore.MetricInfo) (datastore.StorableID, error) {
	if err := info.Validate(); err != nil {
		r.metrics.record("metric_info", "upsert", err)
		return "", err
	}
	if info.ID == "" {
		info.ID = info.DeriveID()
	}
	key := infoKey(info.ScopeID, info.ID)

	data, err := json.Marshal(info)
	if err != nil {
		return "", errors.WrapInvalid(err, "MetricInfoRegistry", "Upsert", "encode record")
	}

	err = retry.Do(ctx, r.retry, func() error {
		createErr := r.backend.Create(ctx, key, data)
		if createErr == nil || !errors.Is(createErr, errors.ErrAlreadyExists) {
			return createErr
		}

		existing, getErr := r.backend.GetEntry(ctx, key)
		if getErr != nil {
			if errors.IsNotFound(getErr) {
				// Deleted between Create and GetEntry; retry the create.
				return errors.WrapTransient(getErr, "MetricInfoRegistry", "Upsert", "reread record")
			}
			return getErr
		}

		var current datastore.MetricInfo
		if decErr := json.Unmarshal(existing.Value, &current); decErr != nil {
			return errors.WrapFatal(decErr, "MetricInfoRegistry", "Upsert", "decode record")
		}
		current.LastValue = info.LastValue

		updated, encErr := json.Marshal(&current)
		if encErr != nil {
			return errors.WrapFatal(encErr, "MetricInfoRegistry", "Upsert", "encode record")
		}

		updateErr := r.backend.Update(ctx, key, updated, existing.Revision)
		if errors.Is(updateErr, errors.ErrAlreadyExists) || errors.IsNotFound(updateErr) {
			// Lost the swap to a concurrent writer or deleter; run the
			// create-or-merge again.
			return errors.WrapTransient(updateErr, "MetricInfoRegistry", "Upsert", "revision conflict")
		}
		return updateErr
	})
	r.metrics.record("metric_info", "upsert", err)
	if err != nil {
		return "", errors.Wrap(err, "MetricInfoRegistry", "Upsert", "write record")
	}
	return info.ID, nil
}

// UpsertMany upserts a batch of records derived from one message and
// returns their ids in input order. The batch fails on the first store
// error; records already written stay written.
func (r *MetricInfoRegistry) UpsertMany(ctx context.Context, infos []*datastore.MetricInfo) ([]datastore.StorableID, error) {
	ids := make([]datastore.StorableID, 0, len(infos))
	for _, info := range infos {
		id, err := r.Upsert(ctx, info)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Find retrieves a record by scope and id
func (r *MetricInfoRegistry) Find(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) (*datastore.MetricInfo, error) {
	data, err := r.backend.Get(ctx, infoKey(scope, id))
	r.metrics.record("metric_info", "find", err)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, "MetricInfoRegistry", "Find", "read record")
	}

	var info datastore.MetricInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.WrapFatal(err, "MetricInfoRegistry", "Find", "decode record")
	}
	return &info, nil
}

// Delete removes a record by scope and id. Returns errors.ErrNotFound if
// no such record exists.
func (r *MetricInfoRegistry) Delete(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) error {
	key := infoKey(scope, id)
	if _, err := r.backend.Get(ctx, key); err != nil {
		r.metrics.record("metric_info", "delete", err)
		if errors.IsNotFound(err) {
			return errors.ErrNotFound
		}
		return errors.Wrap(err, "MetricInfoRegistry", "Delete", "read record")
	}

	err := retry.Do(ctx, r.retry, func() error {
		return r.backend.Delete(ctx, key)
	})
	r.metrics.record("metric_info", "delete", err)
	if err != nil {
		return errors.Wrap(err, "MetricInfoRegistry", "Delete", "delete record")
	}
	return nil
}

// DeleteByQuery removes every record matching the query and reports the
// number deleted
func (r *MetricInfoRegistry) DeleteByQuery(ctx context.Context, q datastore.Query) (int, error) {
	deleted := 0
	err := r.scan(ctx, q, func(key string, info *datastore.MetricInfo) error {
		if err := r.backend.Delete(ctx, key); err != nil {
			return err
		}
		deleted++
		return nil
	})
	r.metrics.record("metric_info", "delete_by_query", err)
	return deleted, err
}

// Count reports the number of records matching the query
func (r *MetricInfoRegistry) Count(ctx context.Context, q datastore.Query) (int, error) {
	count := 0
	err := r.scan(ctx, q, func(string, *datastore.MetricInfo) error {
		count++
		return nil
	})
	r.metrics.record("metric_info", "count", err)
	return count, err
}

func (r *MetricInfoRegistry) scan(ctx context.Context, q datastore.Query, visit func(string, *datastore.MetricInfo) error) error {
	if err := q.Validate(); err != nil {
		return err
	}

	keys, err := r.backend.Keys(ctx, scopePrefix(q.Scope))
	if err != nil {
		return errors.Wrap(err, "MetricInfoRegistry", "scan", "list keys")
	}

	for _, key := range keys {
		data, err := r.backend.Get(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return errors.Wrap(err, "MetricInfoRegistry", "scan", "read record")
		}

		var info datastore.MetricInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return errors.WrapFatal(err, "MetricInfoRegistry", "scan", "decode record")
		}
		if !q.MatchesMetricInfo(&info) {
			continue
		}
		if err := visit(key, &info); err != nil {
			return err
		}
	}
	return nil
}

var _ datastore.MetricInfoRegistry = (*MetricInfoRegistry)(nil)
