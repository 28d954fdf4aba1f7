package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
//
// The Record* helpers are safe to call on a nil *Metrics so components can
// be constructed without instrumentation in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission cache metrics
	PermissionCacheHitsTotal          prometheus.Counter
	PermissionCacheMissesTotal        prometheus.Counter
	PermissionCacheErrorsTotal        *prometheus.CounterVec
	PermissionCacheInvalidationsTotal *prometheus.CounterVec
	PermissionResolveDuration         prometheus.Histogram

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Lifecycle metrics
	InvitationTransitionsTotal *prometheus.CounterVec
	MembershipTransitionsTotal *prometheus.CounterVec
	SessionRevocationsTotal    *prometheus.CounterVec
	NotificationsTotal         *prometheus.CounterVec
	MaintenanceRunsTotal       *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	otel *OTelMetrics
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "homestead_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		PermissionCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "homestead_permission_cache_hits_total",
				Help: "Permission resolutions served from cache",
			},
		),
		PermissionCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "homestead_permission_cache_misses_total",
				Help: "Permission resolutions recomputed from the store",
			},
		),
		PermissionCacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_permission_cache_errors_total",
				Help: "Permission cache operations that failed and fell back",
			},
			[]string{"operation"},
		),
		PermissionCacheInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_permission_cache_invalidations_total",
				Help: "Permission cache invalidations by kind",
			},
			[]string{"kind"},
		),
		PermissionResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "homestead_permission_resolve_duration_seconds",
				Help:    "Time to compute a permission set on cache miss",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_authz_decisions_total",
				Help: "Authorization gate decisions by outcome and deny reason",
			},
			[]string{"result", "reason"},
		),

		InvitationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_invitation_transitions_total",
				Help: "Invitation state transitions by target status",
			},
			[]string{"status"},
		),
		MembershipTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_membership_transitions_total",
				Help: "Membership state transitions by target status",
			},
			[]string{"status"},
		),
		SessionRevocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_session_revocations_total",
				Help: "Sessions revoked by cause",
			},
			[]string{"cause"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_notifications_total",
				Help: "Notification deliveries by kind and status",
			},
			[]string{"kind", "status"},
		),
		MaintenanceRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "homestead_maintenance_runs_total",
				Help: "Scheduled maintenance job runs by job and status",
			},
			[]string{"job", "status"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "homestead_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "homestead_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "homestead_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionCacheHitsTotal,
		m.PermissionCacheMissesTotal,
		m.PermissionCacheErrorsTotal,
		m.PermissionCacheInvalidationsTotal,
		m.PermissionResolveDuration,
		m.AuthzDecisionsTotal,
		m.InvitationTransitionsTotal,
		m.MembershipTransitionsTotal,
		m.SessionRevocationsTotal,
		m.NotificationsTotal,
		m.MaintenanceRunsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
	)

	return m
}

// RecordCacheHit counts a permission cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.PermissionCacheHitsTotal.Inc()
	m.otel.recordLookup(true, 0)
}

// RecordCacheMiss counts a permission cache miss and its recompute time
func (m *Metrics) RecordCacheMiss(duration time.Duration) {
	if m == nil {
		return
	}
	m.PermissionCacheMissesTotal.Inc()
	m.PermissionResolveDuration.Observe(duration.Seconds())
	m.otel.recordLookup(false, duration)
}

// RecordCacheError counts a failed cache operation
func (m *Metrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.PermissionCacheErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordInvalidation counts a cache invalidation
func (m *Metrics) RecordInvalidation(kind string) {
	if m == nil {
		return
	}
	m.PermissionCacheInvalidationsTotal.WithLabelValues(kind).Inc()
}

// RecordDecision counts an authorization decision
func (m *Metrics) RecordDecision(allowed bool, reason string) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(result, reason).Inc()
	m.otel.recordDecision(result, reason)
}

// RecordInvitationTransition counts an invitation moving to status
func (m *Metrics) RecordInvitationTransition(status string) {
	if m == nil {
		return
	}
	m.InvitationTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordMembershipTransition counts a membership moving to status
func (m *Metrics) RecordMembershipTransition(status string) {
	if m == nil {
		return
	}
	m.MembershipTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordSessionRevocations counts revoked sessions
func (m *Metrics) RecordSessionRevocations(cause string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.SessionRevocationsTotal.WithLabelValues(cause).Add(float64(count))
}

// RecordNotification counts a notification delivery attempt
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordMaintenanceRun counts a scheduled job run
func (m *Metrics) RecordMaintenanceRun(job string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.MaintenanceRunsTotal.WithLabelValues(job, status).Inc()
}

// UpdateDBStats copies connection pool statistics into gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to keep cardinality
// bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
