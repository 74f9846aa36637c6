// Package metrics defines the Prometheus metrics exported by the buoy and the
// ingestion server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FrameAnomalies counts recording windows that were passed through
	// without being split at frame markers, by anomaly kind.
	FrameAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buoy_frame_anomalies_total",
			Help: "Number of recording windows emitted without frame alignment.",
		},
		[]string{"kind"},
	)

	// WindowBytes is the size of the frames emitted per recording window.
	WindowBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buoy_window_bytes",
			Help:    "Size of the framed hydrophone data per recording window.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// Heartbeats counts the heartbeats synthesized by the controller.
	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buoy_heartbeats_total",
			Help: "Number of heartbeats sent because no hydrophone data arrived.",
		},
	)

	// UploadAttempts counts upload attempts by result and, for failures,
	// the phase that failed.
	UploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buoy_upload_attempts_total",
			Help: "Number of upload attempts by result and phase.",
		},
		[]string{"result", "phase"},
	)

	// PowerActions counts the low-power actions taken by tier.
	PowerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buoy_power_actions_total",
			Help: "Number of low-power actions invoked by voltage tier.",
		},
		[]string{"tier"},
	)

	// IngestRequests counts ingestion requests by result.
	IngestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buoy_ingest_requests_total",
			Help: "Number of ingestion requests by result.",
		},
		[]string{"result"},
	)

	// IngestBytes is the size of the raw payloads received.
	IngestBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buoy_ingest_payload_bytes",
			Help:    "Size of the raw payloads received.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	// IngestDecodeErrors counts the decode errors reported by the codec.
	IngestDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buoy_ingest_decode_errors_total",
			Help: "Number of decode errors reported while deriving waveforms.",
		},
	)

	// IngestProcessing is the time spent persisting and deriving artifacts.
	IngestProcessing = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buoy_ingest_processing_seconds",
			Help:    "Time spent persisting an upload and deriving its artifacts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// IngestCollisions counts uploads whose (buoy id, timestamp) key was
	// already processed recently.
	IngestCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buoy_ingest_collisions_total",
			Help: "Number of uploads overwriting a recently written artifact set.",
		},
	)
)
