// Package metric exposes the simulator's prometheus metrics.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "simulator"

// Metrics contains all counters of the ingestion and publish paths
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	ValuesPublished  *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec
	RecordsIngested  *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
	BackfillRecords  *prometheus.CounterVec
	StoreWriteTime   prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the metrics on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "messages_received_total",
				Help:      "Total number of MQTT messages received",
			},
			[]string{"machine"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "messages_dropped_total",
				Help:      "MQTT messages dropped before ingestion",
			},
			[]string{"reason"},
		),
		ValuesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "values_published_total",
				Help:      "Total number of simulated values published",
			},
			[]string{"machine"},
		),
		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "publish_errors_total",
				Help:      "Total number of failed publishes",
			},
			[]string{"machine"},
		),
		RecordsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "Total number of values written to the snapshot",
			},
			[]string{"machine"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "store_errors_total",
				Help:      "Failed time series writes",
			},
			[]string{"machine"},
		),
		BackfillRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backfill",
				Name:      "records_total",
				Help:      "Total number of generated past records",
			},
			[]string{"machine"},
		),
		StoreWriteTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "store_write_duration_seconds",
				Help:      "Time series write duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.MessagesDropped,
		m.ValuesPublished,
		m.PublishErrors,
		m.RecordsIngested,
		m.StoreErrors,
		m.BackfillRecords,
		m.StoreWriteTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
