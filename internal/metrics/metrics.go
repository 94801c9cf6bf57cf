package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StreamMetrics holds the Prometheus metrics for the log stream client.
type StreamMetrics struct {
	FramesTotal       *prometheus.CounterVec
	EntriesRendered   *prometheus.CounterVec
	ReconnectsTotal   *prometheus.CounterVec
	ReconnectAttempts prometheus.Gauge
	ConnectionState   prometheus.Gauge
}

// NewStreamMetrics initializes the metrics and registers them on reg.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	f := promauto.With(reg)
	return &StreamMetrics{
		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logterm",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Total number of live frames received by verdict.",
		}, []string{"verdict"}), // verdict: entry, ack, malformed, invalid, filtered
		EntriesRendered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logterm",
			Subsystem: "stream",
			Name:      "entries_rendered_total",
			Help:      "Total number of log entries written to the render surface.",
		}, []string{"origin"}), // origin: history, live
		ReconnectsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logterm",
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of failed or lost connections by trigger.",
		}, []string{"trigger"}), // trigger: timeout, dial, close
		ReconnectAttempts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "logterm",
			Subsystem: "stream",
			Name:      "reconnect_attempts",
			Help:      "Consecutive failures since the last successful open.",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "logterm",
			Subsystem: "stream",
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 open, 3 closing, 4 reconnect pending).",
		}),
	}
}
