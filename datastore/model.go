package datastore

import (
	"fmt"

	"github.com/TristanCP/kapua/errors"
)

// ScopeID identifies a tenant-level partition isolating all entities below it.
type ScopeID string

// Message is a telemetry message as persisted in the message store.
// Messages are immutable: persisted once, never mutated, deleted either
// individually or by bulk query when their owning channel is purged.
type Message struct {
	// ID is assigned by the message store at persistence time.
	ID         StorableID     `json:"id,omitempty"`
	ScopeID    ScopeID        `json:"scope_id"`
	ClientID   string         `json:"client_id"`
	Channel    string         `json:"channel"`
	Timestamp  int64          `json:"timestamp"`
	CapturedOn int64          `json:"captured_on,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Validate checks the fields required before persistence
func (m *Message) Validate() error {
	switch {
	case m == nil:
		return errors.WrapInvalid(errors.ErrInvalidInput, "Message", "Validate", "nil message")
	case m.ScopeID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "Message", "Validate", "empty scope id")
	case m.ClientID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "Message", "Validate", "empty client id")
	case m.Channel == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "Message", "Validate", "empty channel")
	case m.Timestamp == 0:
		return errors.WrapInvalid(errors.ErrInvalidInput, "Message", "Validate", "zero timestamp")
	}
	return nil
}

// ClientInfo records the first message seen from a client within a scope.
// At most one ClientInfo exists per (scope, client) pair: its identifier is
// derived from those fields, so repeated writes converge on one document.
type ClientInfo struct {
	ID             StorableID `json:"id"`
	ScopeID        ScopeID    `json:"scope_id"`
	ClientID       string     `json:"client_id"`
	FirstMessageID StorableID `json:"first_message_id"`
	FirstMessageOn int64      `json:"first_message_on"`
}

// DeriveID computes the deterministic identifier for this record
func (c *ClientInfo) DeriveID() StorableID {
	return DeriveID(string(c.ScopeID), c.ClientID)
}

// Validate checks the identifying fields
func (c *ClientInfo) Validate() error {
	switch {
	case c == nil:
		return errors.WrapInvalid(errors.ErrInvalidInput, "ClientInfo", "Validate", "nil record")
	case c.ScopeID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "ClientInfo", "Validate", "empty scope id")
	case c.ClientID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "ClientInfo", "Validate", "empty client id")
	}
	return nil
}

// ChannelInfo records the first message seen on a channel, one per
// (scope, client, channel) triple.
type ChannelInfo struct {
	ID             StorableID `json:"id"`
	ScopeID        ScopeID    `json:"scope_id"`
	ClientID       string     `json:"client_id"`
	Channel        string     `json:"channel"`
	FirstMessageID StorableID `json:"first_message_id"`
	FirstMessageOn int64      `json:"first_message_on"`
}

// DeriveID computes the deterministic identifier for this record
func (c *ChannelInfo) DeriveID() StorableID {
	return DeriveID(string(c.ScopeID), c.ClientID, c.Channel)
}

// Validate checks the identifying fields
func (c *ChannelInfo) Validate() error {
	switch {
	case c == nil:
		return errors.WrapInvalid(errors.ErrInvalidInput, "ChannelInfo", "Validate", "nil record")
	case c.ScopeID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "ChannelInfo", "Validate", "empty scope id")
	case c.ClientID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "ChannelInfo", "Validate", "empty client id")
	case c.Channel == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "ChannelInfo", "Validate", "empty channel")
	}
	return nil
}

// MetricInfo records the first observation of a metric, one per
// (scope, client, channel, name, type) tuple. The inferred type is part of
// the identity: redeclaring a metric name with a different type creates a
// distinct record rather than mutating this one.
type MetricInfo struct {
	ID             StorableID `json:"id"`
	ScopeID        ScopeID    `json:"scope_id"`
	ClientID       string     `json:"client_id"`
	Channel        string     `json:"channel"`
	Name           string     `json:"name"`
	Type           MetricType `json:"type"`
	FirstMessageID StorableID `json:"first_message_id"`
	FirstMessageOn int64      `json:"first_message_on"`
	LastValue      any        `json:"last_value,omitempty"`
}

// DeriveID computes the deterministic identifier for this record
func (m *MetricInfo) DeriveID() StorableID {
	return DeriveID(string(m.ScopeID), m.ClientID, m.Channel, m.Name, string(m.Type))
}

// Validate checks the identifying fields
func (m *MetricInfo) Validate() error {
	switch {
	case m == nil:
		return errors.WrapInvalid(errors.ErrInvalidInput, "MetricInfo", "Validate", "nil record")
	case m.ScopeID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "MetricInfo", "Validate", "empty scope id")
	case m.ClientID == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "MetricInfo", "Validate", "empty client id")
	case m.Channel == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "MetricInfo", "Validate", "empty channel")
	case m.Name == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "MetricInfo", "Validate", "empty metric name")
	case m.Type == "":
		return errors.WrapInvalid(errors.ErrInvalidInput, "MetricInfo", "Validate", "empty metric type")
	}
	return nil
}

// Partition is a handle to a time-bounded segment of the store's index for
// one scope. Messages and metric mappings are registered per partition.
type Partition struct {
	Scope ScopeID `json:"scope_id"`
	// Window names the ISO-week window, e.g. "2026-35".
	Window string `json:"window"`
	// Start and End bound the window in Unix milliseconds; End is exclusive.
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Key returns the store key for this partition, "<scope>.<window>"
func (p *Partition) Key() string {
	return fmt.Sprintf("%s.%s", p.Scope, p.Window)
}

// Name returns the index name for this partition, "<scope>-<window>"
func (p *Partition) Name() string {
	return fmt.Sprintf("%s-%s", p.Scope, p.Window)
}

// Contains reports whether the timestamp falls inside the window
func (p *Partition) Contains(ms int64) bool {
	return ms >= p.Start && ms < p.End
}
