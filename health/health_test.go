package health

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("nats", "connected")
	status, ok := m.Get("nats")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "nats", status.Component)
	assert.False(t, status.Timestamp.IsZero())

	m.UpdateUnhealthy("nats", "connection lost")
	status, _ = m.Get("nats")
	assert.True(t, status.IsUnhealthy())
	assert.False(t, status.Healthy)

	m.Remove("nats")
	_, ok = m.Get("nats")
	assert.False(t, ok)
}

func TestAggregateRules(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestMonitorSnapshotIsSorted(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("store", "")
	m.UpdateHealthy("ingest", "")
	m.UpdateHealthy("nats", "")

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "ingest", snapshot[0].Component)
	assert.Equal(t, "nats", snapshot[1].Component)
	assert.Equal(t, "store", snapshot[2].Component)
}

func TestHandlerStatusCodes(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("nats", "connected")

	rec := httptest.NewRecorder()
	m.Handler("ingestd").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ingestd", status.Component)
	assert.True(t, status.IsHealthy())

	m.UpdateUnhealthy("nats", "connection lost")
	rec = httptest.NewRecorder()
	m.Handler("ingestd").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitorConcurrentUpdates(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.UpdateHealthy("nats", "ok")
			} else {
				m.UpdateDegraded("nats", "reconnecting")
			}
			m.Snapshot()
		}(i)
	}
	wg.Wait()

	_, ok := m.Get("nats")
	assert.True(t, ok)
}
