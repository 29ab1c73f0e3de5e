// Package metrics provides Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recapd"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	FragmentsIngested *prometheus.CounterVec
	FragmentsRejected *prometheus.CounterVec

	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	Subscribers     prometheus.Gauge

	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	AudioThrottleSent   prometheus.Counter

	RecapTicksFired   prometheus.Counter
	RecapTicksSkipped *prometheus.CounterVec
	InferenceLatency  prometheus.Histogram
	InferenceErrors   prometheus.Counter

	PersistFailures *prometheus.CounterVec
}

// Default is the process-wide metrics instance.
var Default = New()

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return &Metrics{
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions in the store",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total sessions created",
		}),
		FragmentsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_ingested_total",
			Help:      "Transcript fragments accepted by the ingest pipeline",
		}, []string{"source", "final"}),
		FragmentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_rejected_total",
			Help:      "Transcript fragments rejected at validation",
		}, []string{"reason"}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Canonical events published to the bus",
		}, []string{"kind"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped from full subscriber queues (drop-oldest policy)",
		}),
		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_subscribers",
			Help:      "Current bus subscriptions across all sessions",
		}),
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Raw PCM bytes received on audio ingest connections",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Binary audio frames received on audio ingest connections",
		}),
		AudioThrottleSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_throttle_sent_total",
			Help:      "Throttle control messages sent to audio producers",
		}),
		RecapTicksFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recap_ticks_fired_total",
			Help:      "Recap ticks that invoked inference",
		}),
		RecapTicksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recap_ticks_skipped_total",
			Help:      "Recap ticks consumed without inference",
		}, []string{"reason"}),
		InferenceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Latency of recap inference calls",
			Buckets:   prometheus.DefBuckets,
		}),
		InferenceErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Recap inference calls resolved via the deterministic fallback",
		}),
		PersistFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Best-effort persistence failures, by sink",
		}, []string{"sink"}),
	}
}
