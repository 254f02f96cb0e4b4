package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orbsec/organization-service/pkg/faults"
)

var tracer = otel.Tracer("github.com/orbsec/organization-service/pkg/resilience")

// ErrBulkheadFull is returned when a policy already has its maximum number
// of calls in flight
var ErrBulkheadFull = faults.New(faults.Rejected, "bulkhead", "too many concurrent calls")

var errCallerCanceled = errors.New("call abandoned by caller")

// callerGoneError marks a failure caused by the caller's own context ending,
// which must neither be retried nor counted against the dependency
type callerGoneError struct {
	cause error
}

func (e *callerGoneError) Error() string { return errCallerCanceled.Error() + ": " + e.cause.Error() }
func (e *callerGoneError) Unwrap() error { return e.cause }
func (e *callerGoneError) Is(target error) bool {
	return target == errCallerCanceled
}

// Operation is the guarded call. The context carries the per-attempt timeout.
type Operation[T any] func(ctx context.Context) (T, error)

// Fallback produces a substitute result, or an error for the caller, when
// the guarded call could not complete. cause is the triggering error.
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Execute runs op under the named policy of registry.
//
// Domain failures (not found, unauthorized, validation) are returned as-is
// and never reach fallback. Bulkhead rejection, an open circuit, exhausted
// retries of transient failures and unclassified failures are routed to
// fallback. A nil fallback returns the cause instead.
func Execute[T any](ctx context.Context, registry *Registry, policyName string, op Operation[T], fallback Fallback[T]) (T, error) {
	return Run(ctx, registry.Policy(policyName), op, fallback)
}

// Run is Execute for a policy the caller already holds
func Run[T any](ctx context.Context, p *Policy, op Operation[T], fallback Fallback[T]) (T, error) {
	ctx, span := tracer.Start(ctx, "resilience."+p.name,
		trace.WithAttributes(attribute.String("resilience.policy", p.name)))
	defer span.End()

	start := time.Now()

	if p.breaker.Open() {
		return resolve(ctx, p, ErrCircuitOpen, fallback, span, start)
	}

	if !p.bulkhead.TryAcquire() {
		return resolve(ctx, p, ErrBulkheadFull, fallback, span, start)
	}
	p.observer.ObserveInFlight(p.name, p.bulkhead.InFlight())
	defer func() {
		p.bulkhead.Release()
		p.observer.ObserveInFlight(p.name, p.bulkhead.InFlight())
	}()

	cfg := p.Config()
	attempts := 0
	value, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		if attempts > 1 {
			p.observer.ObserveRetry(p.name, attempts)
		}
		return attempt(ctx, p, cfg.AttemptTimeout, op)
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
	)
	span.SetAttributes(attribute.Int("resilience.attempts", attempts))

	if err == nil {
		p.observer.ObserveCall(p.name, OutcomeSuccess, time.Since(start))
		span.SetAttributes(attribute.String("resilience.outcome", string(OutcomeSuccess)))
		return value, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) && permanent.Err != nil {
		err = permanent.Err
	}
	return resolve(ctx, p, err, fallback, span, start)
}

// attempt performs one guarded call
func attempt[T any](ctx context.Context, p *Policy, timeout time.Duration, op Operation[T]) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, backoff.Permanent(&callerGoneError{cause: err})
	}

	t, err := p.breaker.allow()
	if err != nil {
		return zero, backoff.Permanent(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	value, err := op(attemptCtx)
	cancel()

	if err != nil && ctx.Err() != nil {
		err = &callerGoneError{cause: err}
	}
	p.breaker.record(t, outcomeOf(err))

	if err == nil {
		return value, nil
	}
	if errors.Is(err, errCallerCanceled) || !faults.KindOf(err).Transient() {
		return zero, backoff.Permanent(err)
	}
	// the breaker may have opened on this failure; the next attempt finds out
	return zero, err
}

func resolve[T any](ctx context.Context, p *Policy, cause error, fallback Fallback[T], span trace.Span, start time.Time) (T, error) {
	var zero T
	kind := faults.KindOf(cause)
	span.RecordError(cause)
	span.SetAttributes(attribute.String("resilience.cause", kind.String()))

	if kind.Domain() {
		p.observer.ObserveCall(p.name, OutcomeDomainError, time.Since(start))
		span.SetAttributes(attribute.String("resilience.outcome", string(OutcomeDomainError)))
		return zero, cause
	}

	if fallback == nil {
		p.observer.ObserveCall(p.name, OutcomeError, time.Since(start))
		span.SetStatus(codes.Error, cause.Error())
		span.SetAttributes(attribute.String("resilience.outcome", string(OutcomeError)))
		return zero, cause
	}

	p.observer.ObserveFallback(p.name, kind.String())
	value, err := fallback(ctx, cause)
	p.observer.ObserveCall(p.name, OutcomeFallback, time.Since(start))
	span.SetAttributes(attribute.String("resilience.outcome", string(OutcomeFallback)))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}
