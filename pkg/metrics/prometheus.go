package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/resilience"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Resilience metrics
	CallsTotal        *prometheus.CounterVec
	CallDuration      *prometheus.HistogramVec
	FallbacksTotal    *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	BreakerTransition *prometheus.CounterVec
	InFlight          *prometheus.GaugeVec

	// Change event metrics
	EventsTotal   *prometheus.CounterVec
	EventsPending prometheus.Gauge

	// Cache metrics
	CacheHits    prometheus.Gauge
	CacheMisses  prometheus.Gauge
	CacheEntries prometheus.Gauge

	// Database metrics
	DBConnectionsOpen  *prometheus.GaugeVec
	DBConnectionsInUse *prometheus.GaugeVec
	DBConnectionsIdle  *prometheus.GaugeVec
	DBWaitCount        *prometheus.GaugeVec
}

var (
	_ resilience.Observer = (*Metrics)(nil)
	_ events.Observer     = (*Metrics)(nil)
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgsvc_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orgsvc_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgsvc_resilience_calls_total",
				Help: "Guarded calls by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orgsvc_resilience_call_duration_seconds",
				Help:    "Guarded call duration including retries and fallback",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"policy"},
		),
		FallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgsvc_resilience_fallbacks_total",
				Help: "Fallback invocations by policy and cause",
			},
			[]string{"policy", "cause"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgsvc_resilience_retries_total",
				Help: "Retry attempts by policy",
			},
			[]string{"policy"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgsvc_resilience_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"policy"},
		),
		BreakerTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgsvc_resilience_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"policy", "from", "to"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgsvc_resilience_in_flight",
				Help: "Calls currently holding a bulkhead permit",
			},
			[]string{"policy"},
		),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orgsvc_events_total",
				Help: "Change events by type and delivery outcome",
			},
			[]string{"change_type", "outcome"},
		),
		EventsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgsvc_events_pending",
				Help: "Change events queued for delivery",
			},
		),

		CacheHits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgsvc_cache_hits",
				Help: "Record cache hits since start",
			},
		),
		CacheMisses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgsvc_cache_misses",
				Help: "Record cache misses since start",
			},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orgsvc_cache_entries",
				Help: "Records currently cached",
			},
		),

		DBConnectionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgsvc_db_connections_open",
				Help: "Open database connections",
			},
			[]string{"pool"},
		),
		DBConnectionsInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgsvc_db_connections_in_use",
				Help: "Database connections in use",
			},
			[]string{"pool"},
		),
		DBConnectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgsvc_db_connections_idle",
				Help: "Idle database connections",
			},
			[]string{"pool"},
		),
		DBWaitCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orgsvc_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
			[]string{"pool"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CallsTotal,
		m.CallDuration,
		m.FallbacksTotal,
		m.RetriesTotal,
		m.BreakerState,
		m.BreakerTransition,
		m.InFlight,
		m.EventsTotal,
		m.EventsPending,
		m.CacheHits,
		m.CacheMisses,
		m.CacheEntries,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// ObserveCall implements resilience.Observer
func (m *Metrics) ObserveCall(policy string, outcome resilience.Outcome, duration time.Duration) {
	m.CallsTotal.WithLabelValues(policy, string(outcome)).Inc()
	m.CallDuration.WithLabelValues(policy).Observe(duration.Seconds())
}

// ObserveFallback implements resilience.Observer
func (m *Metrics) ObserveFallback(policy, cause string) {
	m.FallbacksTotal.WithLabelValues(policy, cause).Inc()
}

// ObserveRetry implements resilience.Observer
func (m *Metrics) ObserveRetry(policy string, _ int) {
	m.RetriesTotal.WithLabelValues(policy).Inc()
}

// ObserveStateChange implements resilience.Observer
func (m *Metrics) ObserveStateChange(policy string, from, to resilience.State) {
	m.BreakerTransition.WithLabelValues(policy, from.String(), to.String()).Inc()
	m.BreakerState.WithLabelValues(policy).Set(float64(to))
}

// ObserveInFlight implements resilience.Observer
func (m *Metrics) ObserveInFlight(policy string, inFlight int) {
	m.InFlight.WithLabelValues(policy).Set(float64(inFlight))
}

// ObserveEvent implements events.Observer
func (m *Metrics) ObserveEvent(kind events.ChangeKind, outcome string) {
	m.EventsTotal.WithLabelValues(string(kind), outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments HTTP requests. Requests are labeled with the
// matched route template so ids never become label values.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routeOf(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeOf(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// Handler serves the registry in the Prometheus exposition format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
