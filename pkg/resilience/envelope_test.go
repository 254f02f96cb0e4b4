package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbsec/organization-service/pkg/faults"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	NopObserver
	mu          sync.Mutex
	fallbacks   []string
	transitions []string
	outcomes    []Outcome
}

func (o *recordingObserver) ObserveFallback(policy, cause string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, cause)
}

func (o *recordingObserver) ObserveStateChange(policy string, from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from.String()+"->"+to.String())
}

func (o *recordingObserver) ObserveCall(policy string, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.AttemptTimeout = time.Second
	cfg.MinimumCalls = 100
	cfg.WindowSize = 100
	return cfg
}

func breakerConfig() Config {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.MinimumCalls = 3
	cfg.WindowSize = 3
	cfg.FailureRateThreshold = 0.5
	cfg.OpenTimeout = 10 * time.Second
	cfg.HalfOpenMaxCalls = 1
	return cfg
}

func placeholder(_ context.Context, cause error) (string, error) {
	return "placeholder", nil
}

func TestExecute_Success(t *testing.T) {
	registry := NewRegistry()
	registry.Configure("test", fastConfig())

	var calls atomic.Int32
	result, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}, placeholder)

	require.NoError(t, err)
	assert.Equal(t, "value", result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_RetriesTransientThenFallsBack(t *testing.T) {
	observer := &recordingObserver{}
	registry := NewRegistry(WithObserver(observer))
	registry.Configure("test", fastConfig())

	var calls atomic.Int32
	var gotCause error
	result, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", faults.New(faults.Unavailable, "store", "connection refused")
	}, func(ctx context.Context, cause error) (string, error) {
		gotCause = cause
		return "placeholder", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "placeholder", result)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, faults.Is(gotCause, faults.Unavailable))
	assert.Equal(t, []string{"unavailable"}, observer.fallbacks)
}

func TestExecute_TransientRecovers(t *testing.T) {
	registry := NewRegistry()
	registry.Configure("test", fastConfig())

	var calls atomic.Int32
	result, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", faults.New(faults.Timeout, "store", "slow")
		}
		return "value", nil
	}, placeholder)

	require.NoError(t, err)
	assert.Equal(t, "value", result)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_DomainErrorsAreNeverRetriedOrMasked(t *testing.T) {
	for _, kind := range []faults.Kind{faults.NotFound, faults.Unauthorized, faults.ValidationFailed} {
		t.Run(kind.String(), func(t *testing.T) {
			registry := NewRegistry()
			registry.Configure("test", fastConfig())

			var calls atomic.Int32
			fallbackCalled := false
			_, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
				calls.Add(1)
				return "", faults.New(kind, "op", "domain failure")
			}, func(ctx context.Context, cause error) (string, error) {
				fallbackCalled = true
				return "placeholder", nil
			})

			require.Error(t, err)
			assert.True(t, faults.Is(err, kind))
			assert.Equal(t, int32(1), calls.Load())
			assert.False(t, fallbackCalled)
		})
	}
}

func TestExecute_UnknownErrorGoesToFallbackWithoutRetry(t *testing.T) {
	registry := NewRegistry()
	registry.Configure("test", fastConfig())

	var calls atomic.Int32
	result, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("unexpected")
	}, placeholder)

	require.NoError(t, err)
	assert.Equal(t, "placeholder", result)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_NilFallbackReturnsCause(t *testing.T) {
	registry := NewRegistry()
	registry.Configure("test", fastConfig())

	_, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		return "", faults.New(faults.Unavailable, "op", "down")
	}, nil)

	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.Unavailable))
}

func TestExecute_AttemptTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	cfg.AttemptTimeout = 10 * time.Millisecond
	registry := NewRegistry()
	registry.Configure("test", cfg)

	var calls atomic.Int32
	var gotCause error
	_, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-ctx.Done()
		return "", ctx.Err()
	}, func(ctx context.Context, cause error) (string, error) {
		gotCause = cause
		return "placeholder", nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, faults.Is(gotCause, faults.Timeout))
}

func TestExecute_CallerCancellationStopsRetries(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 5
	registry := NewRegistry()
	policy := registry.Configure("test", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	_, err := Execute(ctx, registry, "test", func(ctx context.Context) (string, error) {
		calls.Add(1)
		cancel()
		return "", faults.Wrap(faults.Unavailable, "op", ctx.Err())
	}, nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0.0, policy.Breaker().FailureRate())
}

func TestExecute_BulkheadRejectsExcessCalls(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxConcurrent = 2
	registry := NewRegistry()
	registry.Configure("test", cfg)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
				started <- struct{}{}
				<-release
				return "value", nil
			}, placeholder)
		}()
	}
	<-started
	<-started

	var called atomic.Bool
	var gotCause error
	begin := time.Now()
	result, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		called.Store(true)
		return "value", nil
	}, func(ctx context.Context, cause error) (string, error) {
		gotCause = cause
		return "placeholder", nil
	})
	elapsed := time.Since(begin)

	require.NoError(t, err)
	assert.Equal(t, "placeholder", result)
	assert.False(t, called.Load())
	assert.True(t, faults.Is(gotCause, faults.Rejected))
	assert.ErrorIs(t, gotCause, ErrBulkheadFull)
	assert.Less(t, elapsed, 100*time.Millisecond)

	_, err = Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		return "value", nil
	}, nil)
	assert.True(t, faults.Is(err, faults.Rejected))

	close(release)
	wg.Wait()
	assert.Equal(t, 0, registry.Policy("test").Bulkhead().InFlight())
}

func failing(calls *atomic.Int32) Operation[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", faults.New(faults.Unavailable, "op", "down")
	}
}

func succeeding(calls *atomic.Int32) Operation[string] {
	return func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "value", nil
	}
}

func TestExecute_BreakerOpensAndShortCircuits(t *testing.T) {
	clock := newFakeClock()
	observer := &recordingObserver{}
	registry := NewRegistry(WithClock(clock.Now), WithObserver(observer))
	policy := registry.Configure("test", breakerConfig())

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		result, err := Execute(context.Background(), registry, "test", failing(&calls), placeholder)
		require.NoError(t, err)
		assert.Equal(t, "placeholder", result)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, StateOpen, policy.Breaker().State())

	var gotCause error
	result, err := Execute(context.Background(), registry, "test", succeeding(&calls), func(ctx context.Context, cause error) (string, error) {
		gotCause = cause
		return "placeholder", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "placeholder", result)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not invoke the operation")
	assert.ErrorIs(t, gotCause, ErrCircuitOpen)

	clock.Advance(10 * time.Second)
	assert.Equal(t, StateHalfOpen, policy.Breaker().State())

	result, err = Execute(context.Background(), registry, "test", succeeding(&calls), placeholder)
	require.NoError(t, err)
	assert.Equal(t, "value", result)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, StateClosed, policy.Breaker().State())

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, observer.transitions)
}

func TestExecute_BreakerReopensOnFailedTrial(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(WithClock(clock.Now))
	policy := registry.Configure("test", breakerConfig())

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		_, _ = Execute(context.Background(), registry, "test", failing(&calls), placeholder)
	}
	require.Equal(t, StateOpen, policy.Breaker().State())

	clock.Advance(10 * time.Second)
	_, err := Execute(context.Background(), registry, "test", failing(&calls), placeholder)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, StateOpen, policy.Breaker().State())

	clock.Advance(5 * time.Second)
	_, _ = Execute(context.Background(), registry, "test", succeeding(&calls), placeholder)
	assert.Equal(t, int32(4), calls.Load(), "cool-down restarts after a failed trial")
}

func TestExecute_DomainErrorsDoNotTripBreaker(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(WithClock(clock.Now))
	policy := registry.Configure("test", breakerConfig())

	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
			return "", faults.New(faults.NotFound, "op", "missing")
		}, placeholder)
		require.True(t, faults.Is(err, faults.NotFound))
	}
	assert.Equal(t, StateClosed, policy.Breaker().State())
}

func TestExecute_RetriesStopWhenBreakerOpens(t *testing.T) {
	clock := newFakeClock()
	cfg := breakerConfig()
	cfg.MaxAttempts = 5
	registry := NewRegistry(WithClock(clock.Now))
	registry.Configure("test", cfg)

	var calls atomic.Int32
	var gotCause error
	_, err := Execute(context.Background(), registry, "test", failing(&calls), func(ctx context.Context, cause error) (string, error) {
		gotCause = cause
		return "placeholder", nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.ErrorIs(t, gotCause, ErrCircuitOpen)
}

func TestExecute_DomainErrorFromFallbackPropagates(t *testing.T) {
	registry := NewRegistry()
	registry.Configure("test", fastConfig())

	_, err := Execute(context.Background(), registry, "test", func(ctx context.Context) (string, error) {
		return "", faults.New(faults.Unavailable, "op", "down")
	}, func(ctx context.Context, cause error) (string, error) {
		return "", faults.New(faults.Unavailable, "op", "Database service unavailable. Try again later!")
	})

	require.Error(t, err)
	assert.Equal(t, "Database service unavailable. Try again later!", faults.Message(err))
}
