package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal     *prometheus.CounterVec
	AuthzDecisionDuration   *prometheus.HistogramVec
	CapabilityChecksTotal   *prometheus.CounterVec
	CapabilityMutationsTotal *prometheus.CounterVec

	// Workflow metrics
	InvitationTransitionsTotal *prometheus.CounterVec
	NotificationsEmittedTotal  *prometheus.CounterVec
	ConflictChecksTotal        *prometheus.CounterVec
	ConflictsDetectedTotal     prometheus.Counter

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge

	// Business metrics
	ProjectsTotal        prometheus.Gauge
	EventsTotal          prometheus.Gauge
	DeliverablesOverdue  prometheus.Gauge
	InvitationsPending   prometheus.Gauge
	NotificationsUnread  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concord_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concord_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Authorization metrics
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"kind", "action", "outcome"},
		),
		AuthzDecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concord_authz_decision_duration_seconds",
				Help:    "Authorization decision latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"kind", "action"},
		),
		CapabilityChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_capability_checks_total",
				Help: "Total number of capability checks",
			},
			[]string{"capability", "outcome"},
		),
		CapabilityMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_capability_mutations_total",
				Help: "Total number of capability grants and revocations",
			},
			[]string{"capability", "mutation"},
		),

		// Workflow metrics
		InvitationTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_invitation_transitions_total",
				Help: "Total number of invitation state transitions",
			},
			[]string{"response"},
		),
		NotificationsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_notifications_emitted_total",
				Help: "Total number of notifications emitted",
			},
			[]string{"type"},
		),
		ConflictChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_conflict_checks_total",
				Help: "Total number of schedule conflict checks",
			},
			[]string{"outcome"},
		),
		ConflictsDetectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "concord_conflicts_detected_total",
				Help: "Total number of overlapping events reported",
			},
		),

		// Store metrics
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concord_store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"entity", "operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concord_store_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_db_connections_wait_duration_seconds",
				Help: "Total time spent waiting for connections",
			},
		),

		// Business metrics
		ProjectsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_projects_total",
				Help: "Total number of projects",
			},
		),
		EventsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_events_total",
				Help: "Total number of events",
			},
		),
		DeliverablesOverdue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_deliverables_overdue",
				Help: "Number of overdue deliverables",
			},
		),
		InvitationsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_invitations_pending",
				Help: "Number of pending invitations",
			},
		),
		NotificationsUnread: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "concord_notifications_unread",
				Help: "Number of unread notifications across all users",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.AuthzDecisionDuration,
		m.CapabilityChecksTotal,
		m.CapabilityMutationsTotal,
		m.InvitationTransitionsTotal,
		m.NotificationsEmittedTotal,
		m.ConflictChecksTotal,
		m.ConflictsDetectedTotal,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
		m.ProjectsTotal,
		m.EventsTotal,
		m.DeliverablesOverdue,
		m.InvitationsPending,
		m.NotificationsUnread,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// CollectDBStats copies database pool statistics into the gauges.
// Intended to be called periodically from the health server loop.
func (m *Metrics) CollectDBStats(s sql.DBStats) {
	m.DBConnectionsActive.Set(float64(s.InUse))
	m.DBConnectionsIdle.Set(float64(s.Idle))
	m.DBConnectionsWaitCount.Set(float64(s.WaitCount))
	m.DBConnectionsWaitDuration.Set(s.WaitDuration.Seconds())
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
