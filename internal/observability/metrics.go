package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payments engine.
type Metrics struct {
	// --- Event processing ---
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	ApplyDuration  *prometheus.HistogramVec

	// --- Error sink ---
	SinkReports prometheus.Counter
	SinkDropped prometheus.Counter
	SinkDepth   prometheus.Gauge

	// --- Ingestion ---
	IngestMessages  *prometheus.CounterVec
	IngestMalformed prometheus.Counter
	IngestLag       prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pay_events_applied_total",
			Help: "Events successfully applied to the ledger",
		}, []string{"kind"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pay_events_rejected_total",
			Help: "Events rejected by ledger validation",
		}, []string{"kind", "code"}),

		ApplyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pay_event_apply_duration_seconds",
			Help:    "Time to apply a single event",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		SinkReports: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_error_sink_reports_total",
			Help: "Rejection reports delivered to the error sink",
		}),

		SinkDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_error_sink_dropped_total",
			Help: "Rejection reports discarded because the sink was closed",
		}),

		SinkDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pay_error_sink_depth",
			Help: "Reports currently buffered in the error sink",
		}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pay_ingest_messages_total",
			Help: "Messages received from the event stream",
		}, []string{"subject"}),

		IngestMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pay_ingest_malformed_total",
			Help: "Messages that failed to decode into an event",
		}),

		IngestLag: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pay_ingest_to_apply_seconds",
			Help:    "Stream receive to ledger apply complete",
			Buckets: latencyBuckets,
		}),
	}
}
