package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tours_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tours_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_booking_transitions_total",
			Help: "Booking lifecycle transitions by event type",
		},
		[]string{"event"},
	)

	BookingRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_booking_rejections_total",
			Help: "Booking operations rejected by error kind",
		},
		[]string{"operation", "kind"},
	)

	SeatsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_seats_reserved_total",
			Help: "Seats counted on package dates at confirmation",
		},
	)

	SeatsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_seats_released_total",
			Help: "Seats released on package dates at cancellation",
		},
	)

	BookingsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_bookings_expired_total",
			Help: "Pending bookings cancelled by the expiry sweep",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tours_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_notifications_sent_total",
			Help: "Notifications delivered by kind",
		},
		[]string{"kind"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_notification_failures_total",
			Help: "Notifications that could not be delivered, by kind",
		},
		[]string{"kind"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_cache_requests_total",
			Help: "Availability cache lookups by result",
		},
		[]string{"result"},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
