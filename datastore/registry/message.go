package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/TristanCP/kapua/datastore"
	"github.com/TristanCP/kapua/datastore/store"
	"github.com/TristanCP/kapua/errors"
	"github.com/TristanCP/kapua/pkg/retry"
)

// MessageStore persists telemetry messages in weekly index partitions.
// Keys embed the partition window, "<scope>.<window>.<id>", so a scan of
// the scope prefix covers every partition and dropping a partition is a
// prefix delete.
type MessageStore struct {
	backend store.Backend
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Config
}

// NewMessageStore creates a facade over the message bucket
func NewMessageStore(backend store.Backend, opts ...Option) *MessageStore {
	o := newOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MessageStore{
		backend: backend,
		logger:  o.logger,
		metrics: o.metrics,
		retry:   o.retry,
	}
}

// messageKey builds the store key for a message, "<scope>.<window>.<id>"
func messageKey(p *datastore.Partition, id datastore.StorableID) string {
	return fmt.Sprintf("%s.%s", p.Key(), id)
}

// Store persists the message in the given partition and returns the
// newly assigned identifier. Messages are immutable, so ids are unique
// per call rather than derived from content.
func (s *MessageStore) Store(ctx context.Context, partition *datastore.Partition, msg *datastore.Message) (datastore.StorableID, error) {
	if err := msg.Validate(); err != nil {
		s.metrics.record("message", "store", err)
		return "", err
	}
	if partition == nil || partition.Scope != msg.ScopeID {
		err := errors.WrapInvalid(errors.ErrInvalidInput, "MessageStore", "Store", "partition does not cover message scope")
		s.metrics.record("message", "store", err)
		return "", err
	}

	msg.ID = datastore.StorableID(ulid.Make().String())
	data, err := json.Marshal(msg)
	if err != nil {
		return "", errors.WrapInvalid(err, "MessageStore", "Store", "encode message")
	}

	err = retry.Do(ctx, s.retry, func() error {
		return s.backend.Create(ctx, messageKey(partition, msg.ID), data)
	})
	s.metrics.record("message", "store", err)
	if err != nil {
		return "", errors.Wrap(err, "MessageStore", "Store", "write message")
	}
	return msg.ID, nil
}

// Find retrieves a message by scope and id, scanning the scope's
// partitions for the key carrying the id.
func (s *MessageStore) Find(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) (*datastore.Message, error) {
	key, err := s.resolve(ctx, scope, id)
	if err != nil {
		s.metrics.record("message", "find", err)
		return nil, err
	}

	data, err := s.backend.Get(ctx, key)
	s.metrics.record("message", "find", err)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, "MessageStore", "Find", "read message")
	}

	var msg datastore.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.WrapFatal(err, "MessageStore", "Find", "decode message")
	}
	return &msg, nil
}

// Delete removes a message by scope and id. Returns errors.ErrNotFound
// if no such message exists.
func (s *MessageStore) Delete(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) error {
	key, err := s.resolve(ctx, scope, id)
	if err != nil {
		s.metrics.record("message", "delete", err)
		return err
	}

	err = retry.Do(ctx, s.retry, func() error {
		return s.backend.Delete(ctx, key)
	})
	s.metrics.record("message", "delete", err)
	if err != nil {
		return errors.Wrap(err, "MessageStore", "Delete", "delete message")
	}
	return nil
}

// DeleteByQuery removes every message matching the query and reports the
// number deleted. An empty result is zero deletions, not an error.
func (s *MessageStore) DeleteByQuery(ctx context.Context, q datastore.Query) (int, error) {
	deleted := 0
	err := s.scan(ctx, q, func(key string, msg *datastore.Message) error {
		if err := s.backend.Delete(ctx, key); err != nil {
			return err
		}
		deleted++
		return nil
	})
	s.metrics.record("message", "delete_by_query", err)
	return deleted, err
}

// Count reports the number of messages matching the query
func (s *MessageStore) Count(ctx context.Context, q datastore.Query) (int, error) {
	count := 0
	err := s.scan(ctx, q, func(string, *datastore.Message) error {
		count++
		return nil
	})
	s.metrics.record("message", "count", err)
	return count, err
}

// resolve finds the full partitioned key carrying the given message id
func (s *MessageStore) resolve(ctx context.Context, scope datastore.ScopeID, id datastore.StorableID) (string, error) {
	if scope == "" || id == "" {
		return "", errors.WrapInvalid(errors.ErrInvalidInput, "MessageStore", "resolve", "empty scope or id")
	}

	keys, err := s.backend.Keys(ctx, scopePrefix(scope))
	if err != nil {
		return "", errors.Wrap(err, "MessageStore", "resolve", "list keys")
	}
	suffix := "." + string(id)
	for _, key := range keys {
		if strings.HasSuffix(key, suffix) {
			return key, nil
		}
	}
	return "", errors.ErrNotFound
}

// scan visits every message in the query's scope that matches it
func (s *MessageStore) scan(ctx context.Context, q datastore.Query, visit func(string, *datastore.Message) error) error {
	if err := q.Validate(); err != nil {
		return err
	}

	keys, err := s.backend.Keys(ctx, scopePrefix(q.Scope))
	if err != nil {
		return errors.Wrap(err, "MessageStore", "scan", "list keys")
	}

	for _, key := range keys {
		data, err := s.backend.Get(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return errors.Wrap(err, "MessageStore", "scan", "read message")
		}

		var msg datastore.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return errors.WrapFatal(err, "MessageStore", "scan", "decode message")
		}
		if !q.MatchesMessage(&msg) {
			continue
		}
		if err := visit(key, &msg); err != nil {
			return err
		}
	}
	return nil
}

var _ datastore.MessageStore = (*MessageStore)(nil)
