package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingress metrics
	eventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_events_ingested_total",
			Help: "Total number of events consumed from the ingress queue",
		},
		[]string{"result"},
	)

	eventsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_events_suppressed_total",
			Help: "Total number of events dropped by suppression rules",
		},
		[]string{"reason"},
	)

	channelEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_channel_enqueued_total",
			Help: "Total number of messages fanned out to channel queues",
		},
		[]string{"channel", "priority"},
	)

	// Dispatcher metrics
	messagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_messages_consumed_total",
			Help: "Total number of messages consumed from channel queues",
		},
		[]string{"queue"},
	)

	// Delivery metrics
	notificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_sent_total",
			Help: "Total number of notifications delivered successfully",
		},
		[]string{"channel"},
	)

	notificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_failed_total",
			Help: "Total number of failed notification deliveries",
		},
		[]string{"channel", "error_type"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notif_send_duration_seconds",
			Help:    "Transport send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)

	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_retry_attempts_total",
			Help: "Total number of delivery retry attempts",
		},
		[]string{"channel"},
	)

	dlqMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_dlq_messages_total",
			Help: "Total number of messages routed to the dead-letter queue",
		},
		[]string{"channel"},
	)

	// Publisher metrics
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notif_published_total",
			Help: "Total number of events published on the ingress topic",
		},
		[]string{"result"},
	)

	// Idempotency metrics
	idempotencyHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notif_idempotency_hits_total",
			Help: "Total number of duplicate events dropped at ingress",
		},
	)

	// Connection registry metrics
	activeConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notif_active_connections",
			Help: "Number of live websocket connections on this process",
		},
		[]string{"device_type"},
	)
)

func RecordEventIngested(result string) {
	eventsIngestedTotal.WithLabelValues(result).Inc()
}

func RecordSuppressed(reason string) {
	eventsSuppressedTotal.WithLabelValues(reason).Inc()
}

func RecordChannelEnqueued(channel, priority string) {
	channelEnqueuedTotal.WithLabelValues(channel, priority).Inc()
}

func RecordMessageConsumed(queue string) {
	messagesConsumedTotal.WithLabelValues(queue).Inc()
}

func RecordSent(channel string, duration time.Duration) {
	notificationsSentTotal.WithLabelValues(channel).Inc()
	sendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func RecordFailed(channel, errorType string) {
	notificationsFailedTotal.WithLabelValues(channel, errorType).Inc()
}

func RecordRetryAttempt(channel string) {
	retryAttemptsTotal.WithLabelValues(channel).Inc()
}

func RecordDLQMessage(channel string) {
	dlqMessagesTotal.WithLabelValues(channel).Inc()
}

func RecordPublished(result string) {
	publishedTotal.WithLabelValues(result).Inc()
}

func RecordIdempotencyHit() {
	idempotencyHitsTotal.Inc()
}

func ConnectionOpened(deviceType string) {
	activeConnections.WithLabelValues(deviceType).Inc()
}

func ConnectionClosed(deviceType string) {
	activeConnections.WithLabelValues(deviceType).Dec()
}
