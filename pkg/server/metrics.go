package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter

	// Message type metrics
	messagesReceived *prometheus.CounterVec // by message type
	messagesSent     *prometheus.CounterVec // by message type

	// Broadcast metrics
	broadcastFanout   prometheus.Histogram
	broadcastDuration prometheus.Histogram

	// Rate limiting
	rateLimitRejections prometheus.Counter
}

// NewMetrics creates a new metrics instance. Call at most once per
// process; promauto registers with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flatchat_active_sessions",
				Help: "Current number of active sessions",
			},
		),
		sessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flatchat_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		sessionsDisconnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flatchat_sessions_disconnected_total",
				Help: "Total number of sessions disconnected",
			},
		),
		messagesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flatchat_messages_received_total",
				Help: "Total number of messages received from clients by type",
			},
			[]string{"type"},
		),
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flatchat_messages_sent_total",
				Help: "Total number of messages sent to clients by type",
			},
			[]string{"type"},
		),
		broadcastFanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flatchat_broadcast_fanout",
				Help:    "Number of clients that received each broadcast message",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
		broadcastDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flatchat_broadcast_duration_seconds",
				Help:    "Time taken to broadcast a message to all sessions",
				Buckets: prometheus.DefBuckets,
			},
		),
		rateLimitRejections: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flatchat_rate_limit_rejections_total",
				Help: "Total number of chat messages rejected by the rate limiter",
			},
		),
	}
}

// RecordActiveSessions updates the active session gauge
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the disconnect counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

// RecordMessageReceived increments the received counter for a message type
func (m *Metrics) RecordMessageReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

// RecordMessageSent increments the sent counter for a message type
func (m *Metrics) RecordMessageSent(msgType string) {
	m.messagesSent.WithLabelValues(msgType).Inc()
}

// RecordBroadcastFanout records how many clients a broadcast reached
func (m *Metrics) RecordBroadcastFanout(count int) {
	m.broadcastFanout.Observe(float64(count))
}

// RecordBroadcastDuration records how long a broadcast took
func (m *Metrics) RecordBroadcastDuration(seconds float64) {
	m.broadcastDuration.Observe(seconds)
}

// RecordRateLimitRejection increments the rate limit rejection counter
func (m *Metrics) RecordRateLimitRejection() {
	m.rateLimitRejections.Inc()
}
