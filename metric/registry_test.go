package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TristanCP/kapua/errors"
)

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "mediator",
		Name:      "messages_stored_total",
		Help:      "Total messages stored",
	})

	require.NoError(t, registry.RegisterCounter("mediator", "messages_stored_total", counter))

	// Same component/name pair registers only once.
	err := registry.RegisterCounter("mediator", "messages_stored_total", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterDistinctComponents(t *testing.T) {
	registry := NewMetricsRegistry()

	for _, component := range []string{"client_registry", "channel_registry"} {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   "registry",
			Name:        "upserts_total",
			ConstLabels: prometheus.Labels{"component": component},
			Help:        "Total upserts",
		})
		require.NoError(t, registry.RegisterCounter(component, "upserts_total", counter))
	}
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "schema",
		Name:      "cached_mappings",
		Help:      "Cached metric mappings",
	})
	require.NoError(t, registry.RegisterGauge("schema", "cached_mappings", gauge))

	assert.True(t, registry.Unregister("schema", "cached_mappings"))
	assert.False(t, registry.Unregister("schema", "cached_mappings"))

	// Re-registration after unregister succeeds.
	require.NoError(t, registry.RegisterGauge("schema", "cached_mappings", gauge))
}

func TestPrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	opts := prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "mediator",
		Name:      "mapping_conflicts_total",
		Help:      "Total mapping conflicts",
	}
	require.NoError(t, registry.RegisterCounter("mediator", "mapping_conflicts_total", prometheus.NewCounter(opts)))

	// Same fully-qualified prometheus name under a different registry key.
	err := registry.RegisterCounter("mediator2", "mapping_conflicts_total", prometheus.NewCounter(opts))
	require.Error(t, err)
}
