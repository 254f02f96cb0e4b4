package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbsec/organization-service/pkg/observability"
)

var (
	// ErrPoolClosed is returned when submitting to a pool that has shut down
	ErrPoolClosed = errors.New("worker pool shut down")
	// ErrQueueFull is returned by TrySubmit when no queue slot is free
	ErrQueueFull = errors.New("worker pool queue full")
)

// Task is a unit of work run by SafeGo or a WorkerPool
type Task func(ctx context.Context) error

// SafeGo executes fn in a goroutine with a timeout and panic recovery.
// A zero timeout leaves fn bound only by parentCtx. Errors are logged,
// never returned.
//
//	SafeGo(ctx, logger, 5*time.Second, "cache warm", func(ctx context.Context) error {
//	    return cache.Warm(ctx, keys)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn Task) {
	go func() {
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		} else {
			ctx, cancel = context.WithCancel(parentCtx)
		}
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithField("task", taskName).WithError(err).Warn("background task failed")
		}
	}()
}

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Workers   int
	QueueSize int
	TaskName  string
	// Timeout bounds each task
	Timeout time.Duration
	Logger  *observability.Logger
	// OnError is called with every task error, including recovered panics
	OnError func(err error)
}

// WorkerPool runs tasks on a fixed number of goroutines fed by a bounded queue
type WorkerPool struct {
	cfg    PoolConfig
	workCh chan Task
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	completed atomic.Uint64
	failed    atomic.Uint64
}

// NewWorkerPool starts cfg.Workers workers. Canceling ctx stops them
// without draining the queue.
func NewWorkerPool(ctx context.Context, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		cfg:    cfg,
		workCh: make(chan Task, cfg.QueueSize),
		doneCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < cfg.Workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// TrySubmit queues fn only if a slot is free right now
func (p *WorkerPool) TrySubmit(fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up
func (p *WorkerPool) Pending() int {
	return len(p.workCh)
}

// Stats returns the number of tasks that finished with and without error
func (p *WorkerPool) Stats() (completed, failed uint64) {
	return p.completed.Load(), p.failed.Load()
}

// Shutdown stops accepting work and waits up to timeout for queued tasks
// to finish. Tasks still running afterwards have their context canceled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.doneCh
		return nil
	}
	p.closed = true
	close(p.workCh)
	p.mu.Unlock()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return errors.New("worker pool shutdown timed out after " + timeout.String())
	}
}

func (p *WorkerPool) worker(id int) {
	logger := p.cfg.Logger.WithFields(map[string]interface{}{
		"pool":   p.cfg.TaskName,
		"worker": id,
	})

	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(logger, fn)
		}
	}
}

func (p *WorkerPool) run(logger *observability.Logger, fn Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				perr := observability.PanicError(r)
				logger.WithError(perr).Error("task panicked")
				err = perr
			}
		}()
		return fn(ctx)
	}()

	if err != nil {
		p.failed.Add(1)
		if p.cfg.OnError != nil {
			p.cfg.OnError(err)
		}
		return
	}
	p.completed.Add(1)
}
