// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts finished analysis sessions by final status.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loganomaly_sessions_total",
			Help: "Total number of analysis sessions by final status",
		},
		[]string{"status"},
	)

	// AnomaliesTotal counts detected anomalies.
	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loganomaly_anomalies_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"type", "severity"},
	)

	DetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loganomaly_detection_duration_seconds",
			Help:    "Time spent in the detection strategy",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		},
		[]string{"model_type"},
	)

	CollectedLogs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loganomaly_collected_logs_total",
			Help: "Total number of log entries collected",
		},
		[]string{"source_type"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loganomaly_events_published_total",
			Help: "Total number of domain events published",
		},
		[]string{"event_type"},
	)

	// HTTPRequestsTotal counts API requests by route template.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loganomaly_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)
