package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/faults"
	"github.com/orbsec/organization-service/pkg/observability"
	"github.com/orbsec/organization-service/pkg/resilience"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewMetrics(registry), registry
}

func TestMetrics_ResilienceObserver(t *testing.T) {
	m, _ := newTestMetrics(t)
	registry := resilience.NewRegistry(resilience.WithObserver(m))
	registry.Configure("store-read", resilience.Config{MaxAttempts: 1})

	_, err := resilience.Execute(context.Background(), registry, "store-read",
		func(context.Context) (string, error) {
			return "", faults.New(faults.Unavailable, "store", "down")
		},
		func(context.Context, error) (string, error) { return "placeholder", nil })
	require.NoError(t, err)

	expected := `
		# HELP orgsvc_resilience_fallbacks_total Fallback invocations by policy and cause
		# TYPE orgsvc_resilience_fallbacks_total counter
		orgsvc_resilience_fallbacks_total{cause="unavailable",policy="store-read"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(m.FallbacksTotal, strings.NewReader(expected)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CallsTotal.WithLabelValues("store-read", "fallback")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlight.WithLabelValues("store-read")))
}

func TestMetrics_StateChange(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveStateChange("remote-license", resilience.StateClosed, resilience.StateOpen)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerState.WithLabelValues("remote-license")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BreakerTransition.WithLabelValues("remote-license", "closed", "open")))
}

func TestMetrics_EventObserver(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveEvent(events.Created, events.OutcomePublished)
	m.ObserveEvent(events.Created, events.OutcomePublished)
	m.ObserveEvent(events.Deleted, events.OutcomeDropped)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsTotal.WithLabelValues("CREATED", "published")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsTotal.WithLabelValues("DELETED", "dropped")))
}

func TestMetrics_HTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	m, _ := newTestMetrics(t)

	router := mux.NewRouter()
	router.Use(m.HTTPMiddleware)
	router.HandleFunc("/api/v1/organization/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/organization/"+id, nil))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/organization/{id}", "404")))
}

func TestHandler(t *testing.T) {
	m, registry := newTestMetrics(t)
	m.ObserveRetry("store-write", 2)

	w := httptest.NewRecorder()
	Handler(registry).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `orgsvc_resilience_retries_total{policy="store-write"} 1`)
}

type fakeCache struct{}

func (fakeCache) CacheStats() (uint64, uint64) { return 7, 3 }
func (fakeCache) Len() int                     { return 5 }

func TestCollector_Sample(t *testing.T) {
	m, _ := newTestMetrics(t)
	registry := resilience.NewRegistry()
	registry.Policy("store-read")

	c := NewCollector(m, observability.NewNopLogger()).
		WithPool("primary", func() sql.DBStats { return sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3, WaitCount: 9} }).
		WithCache(fakeCache{}).
		WithPending(func() int { return 12 }).
		WithRegistry(registry)

	c.Sample()

	assert.Equal(t, float64(4), testutil.ToFloat64(m.DBConnectionsOpen.WithLabelValues("primary")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.DBConnectionsIdle.WithLabelValues("primary")))
	assert.Equal(t, float64(9), testutil.ToFloat64(m.DBWaitCount.WithLabelValues("primary")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.CacheEntries))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.EventsPending))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BreakerState.WithLabelValues("store-read")))
}

func TestCollector_StartRejectsBadSchedule(t *testing.T) {
	m, _ := newTestMetrics(t)
	c := NewCollector(m, observability.NewNopLogger())

	assert.Error(t, c.Start("not a schedule"))
	c.Stop()
}

func TestCollector_StartStop(t *testing.T) {
	m, _ := newTestMetrics(t)
	c := NewCollector(m, observability.NewNopLogger()).WithPending(func() int { return 2 })

	require.NoError(t, c.Start("@every 1h"))
	// the first sample is taken synchronously
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsPending))
	c.Stop()
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	om, err := NewOTelMetricsFrom(provider)
	require.NoError(t, err)

	obs := Fanout{om}
	obs.ObserveCall("store-read", resilience.OutcomeSuccess, 10*time.Millisecond)
	obs.ObserveFallback("store-read", "timeout")
	obs.ObserveEvent(events.Updated, events.OutcomeFailed)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[metric.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["orgsvc.resilience.calls"])
	assert.Equal(t, int64(1), sums["orgsvc.resilience.fallbacks"])
	assert.Equal(t, int64(1), sums["orgsvc.events"])
}
