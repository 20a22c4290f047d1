// Package metrics provides Prometheus metrics for nurserywatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "nurserywatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Acquisition metrics
var (
	// FetchesTotal counts data-source fetches by result (success, error, discarded).
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "fetches_total",
			Help:      "Total number of data-source fetches by result",
		},
		[]string{"result"},
	)

	// FetchDuration tracks data-source latency.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "fetch_duration_seconds",
			Help:      "Data-source fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// TicksSkipped counts ticks dropped because a fetch was still in flight.
	TicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because a fetch was in flight",
		},
	)

	// ConsecutiveFailures is the current run of failed fetches.
	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "acquisition",
			Name:      "consecutive_failures",
			Help:      "Number of consecutive failed fetches",
		},
	)

	// SensorValue is the latest reading per sensor.
	SensorValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "value",
			Help:      "Latest sensor reading",
		},
		[]string{"sensor"},
	)

	// SensorAlert is 1 when the latest reading is outside its thresholds.
	SensorAlert = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "alert",
			Help:      "Whether the latest sensor reading is in alert (1) or not (0)",
		},
		[]string{"sensor"},
	)

	// HistoryPoints is the number of retained readings per sensor.
	HistoryPoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "points",
			Help:      "Number of readings retained per sensor",
		},
		[]string{"sensor"},
	)
)

// Alerting metrics
var (
	// AlertsDispatched counts dispatch cycles by channel.
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "dispatched_total",
			Help:      "Total number of alert dispatches by channel",
		},
		[]string{"channel"},
	)

	// AlertsSuppressed counts alert cycles suppressed by cooldown.
	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "suppressed_total",
			Help:      "Total number of alert cycles suppressed by cooldown",
		},
	)

	// DeliveryErrors counts failed deliveries by channel.
	DeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "delivery_errors_total",
			Help:      "Total number of failed notification deliveries by channel",
		},
		[]string{"channel"},
	)

	// ActiveNotifications is the number of queued in-app notifications.
	ActiveNotifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "active_notifications",
			Help:      "Number of in-app notifications currently queued",
		},
	)
)
