// Package registry provides the store-backed facades for the datastore's
// four entity kinds: messages, client infos, channel infos and metric
// infos. Each facade owns one bucket-scoped backend and implements the
// corresponding capability interface consumed by the mediator.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TristanCP/kapua/datastore"
	"github.com/TristanCP/kapua/metric"
	"github.com/TristanCP/kapua/pkg/retry"
)

// Option configures a facade
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Config
}

func newOptions() options {
	return options{
		logger: slog.Default(),
		retry:  retry.DefaultConfig(),
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics attaches shared facade counters
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRetry overrides the backoff policy for single-document operations
func WithRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// Metrics holds the Prometheus counters shared by all facades.
type Metrics struct {
	ops      *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewMetrics creates and registers the facade counters
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Total facade operations by entity kind and operation",
		}, []string{"kind", "op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "registry",
			Name:      "failures_total",
			Help:      "Total failed facade operations by entity kind and operation",
		}, []string{"kind", "op"}),
	}

	if err := registry.RegisterCounterVec("registry", "operations_total", m.ops); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("registry", "failures_total", m.failures); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) record(kind, op string, err error) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(kind, op).Inc()
	if err != nil {
		m.failures.WithLabelValues(kind, op).Inc()
	}
}

// infoKey builds the store key for a metadata record, "<scope>.<id>"
func infoKey(scope datastore.ScopeID, id datastore.StorableID) string {
	return fmt.Sprintf("%s.%s", scope, id)
}

// scopePrefix is the key prefix shared by a scope's documents
func scopePrefix(scope datastore.ScopeID) string {
	return string(scope) + "."
}
