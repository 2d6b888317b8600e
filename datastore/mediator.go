package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/TristanCP/kapua/errors"
)

// IngestState tracks a message through the ingestion state machine.
type IngestState int

// Ingestion states. MetadataUpserted and PartiallyFailed are terminal.
const (
	StateReceived IngestState = iota
	StateMessagePersisted
	StateMetadataDerived
	StateMetadataUpserted
	StatePartiallyFailed
)

// String returns the string representation of IngestState
func (s IngestState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateMessagePersisted:
		return "message_persisted"
	case StateMetadataDerived:
		return "metadata_derived"
	case StateMetadataUpserted:
		return "metadata_upserted"
	case StatePartiallyFailed:
		return "partially_failed"
	default:
		return "unknown"
	}
}

// Cascade names the outcome of a delete hook. Hooks with no follow-up
// work return CascadeNone explicitly so the cascade table stays
// exhaustive and reviewable.
type Cascade int

// Cascade outcomes
const (
	CascadeNone Cascade = iota
	CascadeApplied
)

// String returns the string representation of Cascade
func (c Cascade) String() string {
	switch c {
	case CascadeNone:
		return "none"
	case CascadeApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// SkippedProperty records a payload property whose metadata write was
// skipped during ingestion, and why.
type SkippedProperty struct {
	Name   string
	Reason error
}

// IngestResult reports the outcome of one message's ingestion.
type IngestResult struct {
	MessageID StorableID
	State     IngestState
	Skipped   []SkippedProperty
}

// Dependencies wires the mediator's collaborators.
type Dependencies struct {
	Messages MessageStore
	Clients  ClientInfoRegistry
	Channels ChannelInfoRegistry
	Metrics  MetricInfoRegistry
	Schema   SchemaSynchronizer
	Logger   *slog.Logger
}

// Validate checks that all required collaborators are present
func (d Dependencies) Validate() error {
	missing := ""
	switch {
	case d.Messages == nil:
		missing = "message store"
	case d.Clients == nil:
		missing = "client info registry"
	case d.Channels == nil:
		missing = "channel info registry"
	case d.Metrics == nil:
		missing = "metric info registry"
	case d.Schema == nil:
		missing = "schema synchronizer"
	}
	if missing != "" {
		return errors.WrapInvalid(errors.ErrInvalidInput, "Mediator", "Validate", "missing "+missing)
	}
	return nil
}

// Mediator orchestrates metadata upkeep around message writes and deletes.
//
// On each stored message it derives and upserts the per-client,
// per-channel and per-metric first-seen records, consulting the schema
// synchronizer before each metric write. On metadata deletions it cascades
// the deletion to dependent records.
//
// The mediator is immutable after construction and safe for concurrent
// use by multiple ingestion workers.
type Mediator struct {
	messages MessageStore
	clients  ClientInfoRegistry
	channels ChannelInfoRegistry
	metrics  MetricInfoRegistry
	schema   SchemaSynchronizer
	logger   *slog.Logger
	counters *MediatorMetrics
}

// MediatorOption configures a Mediator
type MediatorOption func(*Mediator)

// WithMediatorMetrics registers ingestion and cascade counters
func WithMediatorMetrics(m *MediatorMetrics) MediatorOption {
	return func(med *Mediator) {
		med.counters = m
	}
}

// NewMediator creates a fully-wired mediator
func NewMediator(deps Dependencies, opts ...MediatorOption) (*Mediator, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Mediator{
		messages: deps.Messages,
		clients:  deps.Clients,
		channels: deps.Channels,
		metrics:  deps.Metrics,
		schema:   deps.Schema,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StoreMessage persists a message and maintains its derived metadata.
//
// The message write is the source of truth: once it succeeds it is never
// rolled back. Metadata failures downstream degrade to a PartiallyFailed
// result with the error reported, repairable by later reprocessing.
func (m *Mediator) StoreMessage(ctx context.Context, msg *Message) (*IngestResult, error) {
	if err := msg.Validate(); err != nil {
		return &IngestResult{State: StateReceived}, err
	}

	partition, err := m.schema.Metadata(ctx, msg.ScopeID, msg.Timestamp)
	if err != nil {
		return &IngestResult{State: StateReceived},
			errors.Wrap(err, "Mediator", "StoreMessage", "resolve partition")
	}

	id, err := m.messages.Store(ctx, partition, msg)
	if err != nil {
		return &IngestResult{State: StateReceived},
			errors.Wrap(err, "Mediator", "StoreMessage", "persist message")
	}
	msg.ID = id
	if m.counters != nil {
		m.counters.messagesStored.Inc()
	}

	return m.OnAfterMessageStore(ctx, msg)
}

// OnAfterMessageStore derives and upserts the metadata records for an
// already-persisted message document.
//
// A per-property mapping conflict or unsupported type skips that single
// property and continues; any other error aborts the remaining metadata
// work and surfaces as PartiallyFailed without retracting the message.
func (m *Mediator) OnAfterMessageStore(ctx context.Context, msg *Message) (*IngestResult, error) {
	result := &IngestResult{MessageID: msg.ID, State: StateMessagePersisted}

	clientInfo := &ClientInfo{
		ScopeID:        msg.ScopeID,
		ClientID:       msg.ClientID,
		FirstMessageID: msg.ID,
		FirstMessageOn: msg.Timestamp,
	}
	clientInfo.ID = clientInfo.DeriveID()
	if _, err := m.clients.Upsert(ctx, clientInfo); err != nil {
		return m.partialFailure(result, err, "upsert client info")
	}

	channelInfo := &ChannelInfo{
		ScopeID:        msg.ScopeID,
		ClientID:       msg.ClientID,
		Channel:        msg.Channel,
		FirstMessageID: msg.ID,
		FirstMessageOn: msg.Timestamp,
	}
	channelInfo.ID = channelInfo.DeriveID()
	if _, err := m.channels.Upsert(ctx, channelInfo); err != nil {
		return m.partialFailure(result, err, "upsert channel info")
	}

	staged, err := m.deriveMetricInfos(ctx, msg, result)
	if err != nil {
		return m.partialFailure(result, err, "derive metric infos")
	}
	result.State = StateMetadataDerived

	if len(staged) > 0 {
		if _, err := m.metrics.UpsertMany(ctx, staged); err != nil {
			return m.partialFailure(result, err, "upsert metric infos")
		}
	}

	result.State = StateMetadataUpserted
	return result, nil
}

// deriveMetricInfos infers types and registers mappings for every payload
// property, staging one MetricInfo per property that survives.
func (m *Mediator) deriveMetricInfos(ctx context.Context, msg *Message, result *IngestResult) ([]*MetricInfo, error) {
	if len(msg.Payload) == 0 {
		return nil, nil
	}

	partition, err := m.schema.Metadata(ctx, msg.ScopeID, msg.Timestamp)
	if err != nil {
		return nil, err
	}

	// Deterministic order keeps logs and partial failures reproducible.
	names := make([]string, 0, len(msg.Payload))
	for name := range msg.Payload {
		names = append(names, name)
	}
	sort.Strings(names)

	staged := make([]*MetricInfo, 0, len(names))
	for _, name := range names {
		value := msg.Payload[name]

		metricType, err := InferType(value)
		if err != nil {
			m.logger.Warn("skipping payload property with no storable type",
				"scope", msg.ScopeID, "client_id", msg.ClientID,
				"channel", msg.Channel, "property", name, "value_type", fmt.Sprintf("%T", value))
			result.Skipped = append(result.Skipped, SkippedProperty{Name: name, Reason: err})
			if m.counters != nil {
				m.counters.propertiesSkipped.WithLabelValues("unsupported_type").Inc()
			}
			continue
		}

		if err := m.schema.EnsureMetricMapping(ctx, partition, name, metricType); err != nil {
			if errors.IsMappingConflict(err) {
				m.logger.Warn("skipping metric with conflicting mapping",
					"scope", msg.ScopeID, "partition", partition.Name(),
					"metric", name, "requested_type", metricType, "error", err)
				result.Skipped = append(result.Skipped, SkippedProperty{Name: name, Reason: err})
				if m.counters != nil {
					m.counters.propertiesSkipped.WithLabelValues("mapping_conflict").Inc()
				}
				continue
			}
			return nil, err
		}

		info := &MetricInfo{
			ScopeID:        msg.ScopeID,
			ClientID:       msg.ClientID,
			Channel:        msg.Channel,
			Name:           name,
			Type:           metricType,
			FirstMessageID: msg.ID,
			FirstMessageOn: msg.Timestamp,
			LastValue:      value,
		}
		info.ID = info.DeriveID()
		staged = append(staged, info)
	}

	return staged, nil
}

func (m *Mediator) partialFailure(result *IngestResult, err error, action string) (*IngestResult, error) {
	result.State = StatePartiallyFailed
	if m.counters != nil {
		m.counters.partialFailures.Inc()
	}
	m.logger.Error("metadata write failed after message persisted",
		"message_id", result.MessageID, "error", err)
	return result, errors.Wrap(err, "Mediator", "OnAfterMessageStore", action)
}

// DeleteClientInfo deletes a client info record and runs its cascade.
func (m *Mediator) DeleteClientInfo(ctx context.Context, scope ScopeID, id StorableID) error {
	info, err := m.clients.Find(ctx, scope, id)
	if err != nil {
		return errors.Wrap(err, "Mediator", "DeleteClientInfo", "find record")
	}
	if err := m.clients.Delete(ctx, scope, id); err != nil {
		return errors.Wrap(err, "Mediator", "DeleteClientInfo", "delete record")
	}
	return m.OnAfterClientInfoDelete(ctx, scope, info)
}

// OnAfterClientInfoDelete deletes the single message referenced by the
// client info's first-message id. It deliberately does not purge all of
// the client's messages; the channel cascade is the broad one.
func (m *Mediator) OnAfterClientInfoDelete(ctx context.Context, scope ScopeID, info *ClientInfo) error {
	if info == nil || info.FirstMessageID == "" {
		return nil
	}
	if err := m.messages.Delete(ctx, scope, info.FirstMessageID); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return errors.Wrap(err, "Mediator", "OnAfterClientInfoDelete", "delete first message")
	}
	if m.counters != nil {
		m.counters.cascadeDeletes.WithLabelValues("message").Inc()
	}
	return nil
}

// DeleteChannelInfo deletes a channel info record, cascading first to the
// channel's messages and metric infos.
func (m *Mediator) DeleteChannelInfo(ctx context.Context, scope ScopeID, id StorableID) error {
	info, err := m.channels.Find(ctx, scope, id)
	if err != nil {
		return errors.Wrap(err, "Mediator", "DeleteChannelInfo", "find record")
	}
	if _, err := m.OnBeforeChannelInfoDelete(ctx, info); err != nil {
		return err
	}
	if err := m.channels.Delete(ctx, scope, id); err != nil {
		return errors.Wrap(err, "Mediator", "DeleteChannelInfo", "delete record")
	}
	m.OnAfterChannelInfoDelete(ctx, info)
	return nil
}

// OnBeforeChannelInfoDelete removes all messages matching the channel
// within its scope, then all metric infos sharing the channel. The two
// steps are not transactional: a failure between them leaves a transiently
// inconsistent state that a retried cascade repairs.
func (m *Mediator) OnBeforeChannelInfoDelete(ctx context.Context, info *ChannelInfo) (Cascade, error) {
	if info == nil {
		return CascadeNone, errors.WrapInvalid(errors.ErrInvalidInput,
			"Mediator", "OnBeforeChannelInfoDelete", "nil channel info")
	}

	q := Query{Scope: info.ScopeID, Channel: info.Channel}

	deletedMessages, err := m.messages.DeleteByQuery(ctx, q)
	if err != nil {
		return CascadeNone, errors.Wrap(err, "Mediator", "OnBeforeChannelInfoDelete", "delete channel messages")
	}
	deletedMetrics, err := m.metrics.DeleteByQuery(ctx, q)
	if err != nil {
		return CascadeNone, errors.Wrap(err, "Mediator", "OnBeforeChannelInfoDelete", "delete channel metric infos")
	}

	m.logger.Debug("channel cascade applied",
		"scope", info.ScopeID, "channel", info.Channel,
		"messages_deleted", deletedMessages, "metric_infos_deleted", deletedMetrics)
	if m.counters != nil {
		m.counters.cascadeDeletes.WithLabelValues("message").Add(float64(deletedMessages))
		m.counters.cascadeDeletes.WithLabelValues("metric_info").Add(float64(deletedMetrics))
	}
	return CascadeApplied, nil
}

// OnAfterChannelInfoDelete is an extension point for future policy.
func (m *Mediator) OnAfterChannelInfoDelete(_ context.Context, _ *ChannelInfo) Cascade {
	return CascadeNone
}

// DeleteMetricInfo deletes a metric info record and runs its hook.
func (m *Mediator) DeleteMetricInfo(ctx context.Context, scope ScopeID, id StorableID) error {
	info, err := m.metrics.Find(ctx, scope, id)
	if err != nil {
		return errors.Wrap(err, "Mediator", "DeleteMetricInfo", "find record")
	}
	if err := m.metrics.Delete(ctx, scope, id); err != nil {
		return errors.Wrap(err, "Mediator", "DeleteMetricInfo", "delete record")
	}
	m.OnAfterMetricInfoDelete(ctx, scope, info)
	return nil
}

// OnAfterMetricInfoDelete is an extension point for future policy.
func (m *Mediator) OnAfterMetricInfoDelete(_ context.Context, _ ScopeID, _ *MetricInfo) Cascade {
	return CascadeNone
}
