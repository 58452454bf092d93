// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Daily check runs by outcome: ok, partial, failed, busy, cancelled.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunaralarm_runs_total",
			Help: "Daily check runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lunaralarm_run_duration_seconds",
			Help:    "Daily check run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// Emitted notifications per offset label.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunaralarm_notifications_total",
			Help: "Notifications emitted by the daily check",
		},
		[]string{"label"},
	)

	// Per-offset failures: fetch, invalid_date, unsupported_year, match.
	OffsetErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunaralarm_offset_errors_total",
			Help: "Offsets skipped because of an error",
		},
		[]string{"reason"},
	)

	// Ledger operations by op (exists, mark) and status (ok, error).
	LedgerOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunaralarm_ledger_ops_total",
			Help: "Ledger operations",
		},
		[]string{"op", "status"},
	)

	// Deliveries by channel and status (sent, failed).
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunaralarm_deliveries_total",
			Help: "Delivery attempts per channel",
		},
		[]string{"channel", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lunaralarm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func ObserveRun(outcome string, d time.Duration) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.Observe(d.Seconds())
}

func IncNotification(label string) {
	NotificationsTotal.WithLabelValues(label).Inc()
}

func IncOffsetError(reason string) {
	OffsetErrorsTotal.WithLabelValues(reason).Inc()
}

func IncLedgerOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LedgerOpsTotal.WithLabelValues(op, status).Inc()
}

func IncDelivery(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	DeliveriesTotal.WithLabelValues(channel, status).Inc()
}

func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
