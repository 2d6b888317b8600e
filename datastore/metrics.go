package datastore

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TristanCP/kapua/metric"
)

// MediatorMetrics holds Prometheus counters for the ingestion mediator.
type MediatorMetrics struct {
	messagesStored    prometheus.Counter
	partialFailures   prometheus.Counter
	propertiesSkipped *prometheus.CounterVec
	cascadeDeletes    *prometheus.CounterVec
}

// NewMediatorMetrics creates and registers the mediator's counters.
func NewMediatorMetrics(registry *metric.MetricsRegistry) (*MediatorMetrics, error) {
	m := &MediatorMetrics{
		messagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "mediator",
			Name:      "messages_stored_total",
			Help:      "Total messages durably persisted",
		}),
		partialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "mediator",
			Name:      "partial_failures_total",
			Help:      "Total ingestions whose metadata work failed after the message was stored",
		}),
		propertiesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "mediator",
			Name:      "properties_skipped_total",
			Help:      "Total payload properties skipped during metadata derivation",
		}, []string{"reason"}),
		cascadeDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "mediator",
			Name:      "cascade_deletes_total",
			Help:      "Total records removed by delete cascades",
		}, []string{"target"}),
	}

	if err := registry.RegisterCounter("mediator", "messages_stored_total", m.messagesStored); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("mediator", "partial_failures_total", m.partialFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("mediator", "properties_skipped_total", m.propertiesSkipped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("mediator", "cascade_deletes_total", m.cascadeDeletes); err != nil {
		return nil, err
	}
	return m, nil
}
