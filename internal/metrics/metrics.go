// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors for the service. A single instance is wired
// through the app; tests construct their own with a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// QueueDepth is the number of events currently unacknowledged.
	QueueDepth prometheus.Gauge

	// EventsEnqueued counts accepted enqueues by event kind.
	EventsEnqueued *prometheus.CounterVec

	// EventsRejected counts enqueues rejected by backpressure.
	EventsRejected prometheus.Counter

	// EventsWritten counts successfully persisted events by kind.
	EventsWritten *prometheus.CounterVec

	// EventsFailed counts events whose write failed, by kind.
	EventsFailed *prometheus.CounterVec

	// WriteDuration observes the latency of one event write.
	WriteDuration prometheus.Histogram

	// BackupsCompleted counts successful snapshot uploads.
	BackupsCompleted prometheus.Counter
}

// New creates the collector set registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "histdb",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Number of enqueued events not yet acknowledged.",
		}),
		EventsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "histdb",
			Subsystem: "ingest",
			Name:      "events_enqueued_total",
			Help:      "Events accepted into the queue.",
		}, []string{"kind"}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "histdb",
			Subsystem: "ingest",
			Name:      "events_rejected_total",
			Help:      "Enqueues rejected because the queue was full.",
		}),
		EventsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "histdb",
			Subsystem: "store",
			Name:      "events_written_total",
			Help:      "Events persisted to the database.",
		}, []string{"kind"}),
		EventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "histdb",
			Subsystem: "store",
			Name:      "events_failed_total",
			Help:      "Events whose write failed.",
		}, []string{"kind"}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "histdb",
			Subsystem: "store",
			Name:      "write_duration_seconds",
			Help:      "Latency of a single event write.",
			Buckets:   prometheus.DefBuckets,
		}),
		BackupsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "histdb",
			Subsystem: "backup",
			Name:      "snapshots_total",
			Help:      "Completed snapshot uploads.",
		}),
	}

	reg.MustRegister(
		m.QueueDepth,
		m.EventsEnqueued,
		m.EventsRejected,
		m.EventsWritten,
		m.EventsFailed,
		m.WriteDuration,
		m.BackupsCompleted,
	)

	return m
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
