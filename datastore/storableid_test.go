package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIDDeterministic(t *testing.T) {
	a := DeriveID("scope-1", "client-1", "sensors/temp")
	b := DeriveID("scope-1", "client-1", "sensors/temp")
	assert.Equal(t, a, b, "same fields must derive the same id")
	assert.NotEmpty(t, a)
}

func TestDeriveIDFieldSensitivity(t *testing.T) {
	base := DeriveID("scope-1", "client-1")

	tests := []struct {
		name   string
		fields []string
	}{
		{"different scope", []string{"scope-2", "client-1"}},
		{"different client", []string{"scope-1", "client-2"}},
		{"extra field", []string{"scope-1", "client-1", ""}},
		{"reordered fields", []string{"client-1", "scope-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, DeriveID(tt.fields...))
		})
	}
}

func TestDeriveIDSeparatorPreventsCollisions(t *testing.T) {
	// "ab" + "c" and "a" + "bc" concatenate identically; the separator
	// must keep them distinct.
	assert.NotEqual(t, DeriveID("ab", "c"), DeriveID("a", "bc"))
}

func TestModelDeriveIDs(t *testing.T) {
	client := &ClientInfo{ScopeID: "s1", ClientID: "dev-42"}
	assert.Equal(t, DeriveID("s1", "dev-42"), client.DeriveID())

	channel := &ChannelInfo{ScopeID: "s1", ClientID: "dev-42", Channel: "a/b"}
	assert.Equal(t, DeriveID("s1", "dev-42", "a/b"), channel.DeriveID())

	metric := &MetricInfo{ScopeID: "s1", ClientID: "dev-42", Channel: "a/b", Name: "temp", Type: TypeDouble}
	assert.Equal(t, DeriveID("s1", "dev-42", "a/b", "temp", "double"), metric.DeriveID())

	// Same name, different inferred type, distinct record.
	other := &MetricInfo{ScopeID: "s1", ClientID: "dev-42", Channel: "a/b", Name: "temp", Type: TypeString}
	assert.NotEqual(t, metric.DeriveID(), other.DeriveID())
}
