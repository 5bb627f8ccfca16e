package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the broker
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsConnected    prometheus.Counter
	sessionsDisconnected prometheus.Counter

	// Traffic metrics
	framesReceived    *prometheus.CounterVec // by request type
	notificationsSent *prometheus.CounterVec // by notification type

	// Fan-out metrics
	fanout                prometheus.Histogram
	slowConsumerEvictions prometheus.Counter
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "parley_active_sessions",
				Help: "Current number of live sessions",
			},
		),
		sessionsConnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_sessions_connected_total",
				Help: "Total number of sessions registered with the broker",
			},
		),
		sessionsDisconnected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_sessions_disconnected_total",
				Help: "Total number of sessions removed from the broker",
			},
		),
		framesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_frames_received_total",
				Help: "Total number of client frames received by request type",
			},
			[]string{"type"},
		),
		notificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_notifications_sent_total",
				Help: "Total number of notifications delivered by type",
			},
			[]string{"type"},
		),
		fanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parley_notification_fanout",
				Help:    "Number of sessions each notification was delivered to",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		slowConsumerEvictions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_slow_consumer_evictions_total",
				Help: "Total number of sessions evicted for a full outbound queue",
			},
		),
	}
}

// RecordSessionConnected updates session counters after a connect
func (m *Metrics) RecordSessionConnected(active int) {
	m.sessionsConnected.Inc()
	m.activeSessions.Set(float64(active))
}

// RecordSessionDisconnected updates session counters after a disconnect
func (m *Metrics) RecordSessionDisconnected(active int) {
	m.sessionsDisconnected.Inc()
	m.activeSessions.Set(float64(active))
}

// RecordActiveSessions sets the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordFrameReceived increments the frame counter for a request type
func (m *Metrics) RecordFrameReceived(requestType string) {
	m.framesReceived.WithLabelValues(requestType).Inc()
}

// RecordNotificationsSent records deliveries of one notification
func (m *Metrics) RecordNotificationsSent(notificationType string, count int) {
	m.notificationsSent.WithLabelValues(notificationType).Add(float64(count))
	m.fanout.Observe(float64(count))
}

// RecordSlowConsumerEviction increments the eviction counter
func (m *Metrics) RecordSlowConsumerEviction() {
	m.slowConsumerEvictions.Inc()
}
