package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbsec/organization-service/pkg/observability"
)

func TestSafeGo_Success(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), observability.NewNopLogger(), time.Second, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
}

func TestSafeGo_Timeout(t *testing.T) {
	result := make(chan error, 1)

	SafeGo(context.Background(), observability.NewNopLogger(), 20*time.Millisecond, "test task", func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	})

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("timeout was not enforced")
	}
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	done := make(chan struct{})

	SafeGo(context.Background(), observability.NewNopLogger(), time.Second, "panicking task", func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking task did not run")
	}
}

func TestSafeGo_ZeroTimeoutRunsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)

	SafeGo(ctx, observability.NewNopLogger(), 0, "loop", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		<-ctx.Done()
		result <- ctx.Err()
		return nil
	})

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation")
	}
}

func newTestPool(t *testing.T, workers, queue int, onError func(error)) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(context.Background(), PoolConfig{
		Workers:   workers,
		QueueSize: queue,
		TaskName:  "test",
		Timeout:   time.Second,
		OnError:   onError,
	})
	t.Cleanup(func() { _ = pool.Shutdown(time.Second) })
	return pool
}

func TestWorkerPool_RunsTasks(t *testing.T) {
	pool := newTestPool(t, 3, 10, nil)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, pool.TrySubmit(func(ctx context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(10), count.Load())
}

func TestWorkerPool_TrySubmitRejectsWhenFull(t *testing.T) {
	pool := newTestPool(t, 1, 1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.TrySubmit(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, pool.TrySubmit(func(ctx context.Context) error { return nil }))
	err := pool.TrySubmit(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, pool.Pending())

	close(release)
}

func TestWorkerPool_ErrorsAndPanicsReported(t *testing.T) {
	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	wg.Add(2)
	pool := newTestPool(t, 2, 4, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		wg.Done()
	})

	require.NoError(t, pool.TrySubmit(func(ctx context.Context) error { return errors.New("failed") }))
	require.NoError(t, pool.TrySubmit(func(ctx context.Context) error { panic("boom") }))
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, errs, 2)
	_, failed := pool.Stats()
	assert.Equal(t, uint64(2), failed)
}

func TestWorkerPool_ShutdownDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(context.Background(), PoolConfig{Workers: 1, QueueSize: 5, Timeout: time.Second})

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, pool.TrySubmit(func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(time.Second))
	assert.Equal(t, int32(5), count.Load())

	assert.ErrorIs(t, pool.TrySubmit(func(ctx context.Context) error { return nil }), ErrPoolClosed)
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestWorkerPool_ShutdownTimeout(t *testing.T) {
	pool := NewWorkerPool(context.Background(), PoolConfig{Workers: 1, Timeout: time.Second})

	started := make(chan struct{})
	require.NoError(t, pool.TrySubmit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	err := pool.Shutdown(10 * time.Millisecond)
	assert.Error(t, err)
}
