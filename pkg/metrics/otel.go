package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/orbsec/organization-service/pkg/events"
	"github.com/orbsec/organization-service/pkg/resilience"
)

const meterName = "github.com/orbsec/organization-service"

// OTelMetrics exports resilience and event metrics through the global
// OpenTelemetry meter provider
type OTelMetrics struct {
	calls       metric.Int64Counter
	duration    metric.Float64Histogram
	fallbacks   metric.Int64Counter
	retries     metric.Int64Counter
	transitions metric.Int64Counter
	inFlight    metric.Int64Gauge
	events      metric.Int64Counter
}

var (
	_ resilience.Observer = (*OTelMetrics)(nil)
	_ events.Observer     = (*OTelMetrics)(nil)
)

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsFrom(otel.GetMeterProvider())
}

// NewOTelMetricsFrom creates instruments on provider
func NewOTelMetricsFrom(provider metric.MeterProvider) (*OTelMetrics, error) {
	meter := provider.Meter(meterName)

	m := &OTelMetrics{}
	var err error

	m.calls, err = meter.Int64Counter(
		"orgsvc.resilience.calls",
		metric.WithDescription("Guarded calls by policy and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calls counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"orgsvc.resilience.duration",
		metric.WithDescription("Guarded call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	m.fallbacks, err = meter.Int64Counter(
		"orgsvc.resilience.fallbacks",
		metric.WithDescription("Fallback invocations by policy and cause"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallbacks counter: %w", err)
	}

	m.retries, err = meter.Int64Counter(
		"orgsvc.resilience.retries",
		metric.WithDescription("Retry attempts by policy"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retries counter: %w", err)
	}

	m.transitions, err = meter.Int64Counter(
		"orgsvc.resilience.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	m.inFlight, err = meter.Int64Gauge(
		"orgsvc.resilience.in_flight",
		metric.WithDescription("Calls holding a bulkhead permit"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-flight gauge: %w", err)
	}

	m.events, err = meter.Int64Counter(
		"orgsvc.events",
		metric.WithDescription("Change events by type and delivery outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	return m, nil
}

func (m *OTelMetrics) ObserveCall(policy string, outcome resilience.Outcome, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("outcome", string(outcome)),
	)
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("policy", policy)))
}

func (m *OTelMetrics) ObserveFallback(policy, cause string) {
	m.fallbacks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("cause", cause),
	))
}

func (m *OTelMetrics) ObserveRetry(policy string, _ int) {
	m.retries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("policy", policy)))
}

func (m *OTelMetrics) ObserveStateChange(policy string, from, to resilience.State) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *OTelMetrics) ObserveInFlight(policy string, inFlight int) {
	m.inFlight.Record(context.Background(), int64(inFlight), metric.WithAttributes(attribute.String("policy", policy)))
}

func (m *OTelMetrics) ObserveEvent(kind events.ChangeKind, outcome string) {
	m.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("change_type", string(kind)),
		attribute.String("outcome", outcome),
	))
}
