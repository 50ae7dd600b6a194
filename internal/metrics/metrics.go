package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated tracks notifications persisted after evaluation
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"category", "priority"},
	)

	// NotificationsSuppressed tracks evaluations that blocked a notification
	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_suppressed_total",
			Help: "Total number of notifications suppressed by user preferences",
		},
		[]string{"reason"},
	)

	// ChannelDeliveries tracks per-channel delivery outcomes
	ChannelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_channel_deliveries_total",
			Help: "Total number of channel delivery attempts by outcome status",
		},
		[]string{"channel", "status"},
	)

	// DeliveryDuration tracks how long one channel dispatch takes
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_seconds",
			Help:    "Channel delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// EmailJobs tracks email dispatch outcomes (queued, direct_sent, direct_failed, completed, retried, failed)
	EmailJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_email_jobs_total",
			Help: "Total number of email jobs by outcome",
		},
		[]string{"outcome"},
	)

	// EmailQueueDirectMode is 1 when the email queue runs in direct-send mode
	EmailQueueDirectMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_email_queue_direct_mode",
			Help: "Whether the email dispatch queue fell back to direct sending",
		},
	)

	// SMTPConnectionPool tracks idle SMTP connections in the pool
	SMTPConnectionPool = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_smtp_connections",
			Help: "Number of idle SMTP connections in the pool",
		},
	)

	// DigestRuns tracks digest aggregator runs
	DigestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_digest_runs_total",
			Help: "Total number of digest runs by frequency",
		},
		[]string{"frequency"},
	)

	// DigestsSent tracks digest emails handed to the email queue
	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_digests_sent_total",
			Help: "Total number of digest emails sent",
		},
		[]string{"frequency"},
	)

	// DigestFailures tracks per-user digest failures
	DigestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_digest_failures_total",
			Help: "Total number of per-user digest failures",
		},
		[]string{"frequency"},
	)

	// DeadLetters tracks deliveries that exhausted their retries
	DeadLetters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_dead_letters",
			Help: "Number of channel deliveries that reached the retry cap",
		},
		[]string{"channel"},
	)

	// RealtimeConnections tracks open websocket connections
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)

	// BackgroundTaskFailures tracks fire-and-forget tasks that returned an error or panicked
	BackgroundTaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_background_task_failures_total",
			Help: "Total number of failed background tasks",
		},
		[]string{"task"},
	)

	// RateLimitExceeded tracks rate limit violations
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"route"},
	)

	// ConsumerRestarts tracks event consumer restart events
	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_consumer_restarts_total",
			Help: "Total number of event consumer restarts",
		},
	)
)
