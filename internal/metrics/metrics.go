package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	callsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_calls_created_total",
			Help: "Total number of maintenance calls created",
		},
		[]string{"region", "priority"},
	)

	callStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_call_status_changes_total",
			Help: "Total number of maintenance call status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	callConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_call_conflicts_total",
			Help: "Write conflicts detected on maintenance calls",
		},
		[]string{"kind"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification delivery outcomes",
		},
		[]string{"type", "status", "mode"},
	)

	notificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_jobs_dropped_total",
			Help: "Notification jobs dropped because the queue was full",
		},
	)

	auditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit entries that could not be persisted",
		},
	)

	sessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_validations_total",
			Help: "Session validation outcomes",
		},
		[]string{"outcome"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func RecordCallCreated(region, priority string) {
	callsCreated.WithLabelValues(region, priority).Inc()
}

func RecordCallStatusChange(fromStatus, toStatus string) {
	callStatusChanges.WithLabelValues(fromStatus, toStatus).Inc()
}

func RecordCallConflict(kind string) {
	callConflicts.WithLabelValues(kind).Inc()
}

func RecordNotification(notificationType, status, mode string) {
	notificationsTotal.WithLabelValues(notificationType, status, mode).Inc()
}

func RecordNotificationDropped() {
	notificationsDropped.Inc()
}

func RecordAuditFailure() {
	auditWriteFailures.Inc()
}

func RecordSessionValidation(outcome string) {
	sessionValidations.WithLabelValues(outcome).Inc()
}
