// Package metrics defines the Prometheus instrumentation for the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming server.
type Metrics struct {
	// Demuxing metrics
	PacketsDemuxed *prometheus.CounterVec
	DemuxErrors    prometheus.Counter
	PlaybacksEnded prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionDuration prometheus.Histogram

	// Delivery metrics
	BytesStreamed  *prometheus.CounterVec
	PacketsDropped *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		PacketsDemuxed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retromux_packets_demuxed_total",
			Help: "Total number of packets produced by the demuxer",
		}, []string{"stream"}),
		DemuxErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retromux_demux_errors_total",
			Help: "Total number of playbacks aborted by a demux error",
		}),
		PlaybacksEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retromux_playbacks_ended_total",
			Help: "Total number of playbacks that reached end of container",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "retromux_active_sessions",
			Help: "Current number of connected viewer sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retromux_sessions_created_total",
			Help: "Total number of viewer sessions created",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "retromux_session_duration_seconds",
			Help:    "Duration of viewer sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		BytesStreamed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retromux_bytes_streamed_total",
			Help: "Total payload bytes forwarded to viewers",
		}, []string{"stream"}),
		PacketsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retromux_packets_dropped_total",
			Help: "Total packets dropped on slow viewer sessions",
		}, []string{"stream"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "retromux_http_requests_total",
			Help: "Total HTTP API requests by route and status",
		}, []string{"route", "status"}),
	}
}
