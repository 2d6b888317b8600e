package datastore

import "github.com/TristanCP/kapua/errors"

// Query selects records within a scope for bulk delete and count
// operations. Zero-valued fields are wildcards; set fields must match
// exactly. Channel matches compare full hierarchical paths.
type Query struct {
	Scope    ScopeID
	ClientID string
	Channel  string
}

// Validate rejects queries that would span scopes
func (q Query) Validate() error {
	if q.Scope == "" {
		return errors.WrapInvalid(errors.ErrInvalidQuery, "Query", "Validate", "empty scope")
	}
	return nil
}

// MatchesMessage reports whether the message satisfies the query
func (q Query) MatchesMessage(m *Message) bool {
	if m == nil || m.ScopeID != q.Scope {
		return false
	}
	if q.ClientID != "" && m.ClientID != q.ClientID {
		return false
	}
	if q.Channel != "" && m.Channel != q.Channel {
		return false
	}
	return true
}

// MatchesClientInfo reports whether the record satisfies the query
func (q Query) MatchesClientInfo(c *ClientInfo) bool {
	if c == nil || c.ScopeID != q.Scope {
		return false
	}
	return q.ClientID == "" || c.ClientID == q.ClientID
}

// MatchesChannelInfo reports whether the record satisfies the query
func (q Query) MatchesChannelInfo(c *ChannelInfo) bool {
	if c == nil || c.ScopeID != q.Scope {
		return false
	}
	if q.ClientID != "" && c.ClientID != q.ClientID {
		return false
	}
	return q.Channel == "" || c.Channel == q.Channel
}

// MatchesMetricInfo reports whether the record satisfies the query
func (q Query) MatchesMetricInfo(m *MetricInfo) bool {
	if m == nil || m.ScopeID != q.Scope {
		return false
	}
	if q.ClientID != "" && m.ClientID != q.ClientID {
		return false
	}
	return q.Channel == "" || m.Channel == q.Channel
}
