package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_transition_count",
			Help: "Total number of stage transition attempts",
		},
		[]string{"outcome"}, // outcome: success, validation, not_found, conflict, error
	)

	NotificationDispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_count",
			Help: "Total number of stage-change notification dispatch attempts",
		},
		[]string{"status"}, // status: sent, failed, skipped
	)

	KPICacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpi_cache_count",
			Help: "KPI snapshot cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	ReminderProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_processed_count",
			Help: "Reminder events processed by the worker",
		},
		[]string{"result"}, // result: advanced, reminded, duplicate, dropped, error
	)
)

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
