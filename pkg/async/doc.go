// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery,
// timeout enforcement and context cancellation. Failures are logged through
// observability.Logger and never crash the process.
//
// # Key Functions
//
// SafeGo: Execute a function in a goroutine with safety features
//
//	async.SafeGo(ctx, logger, 30*time.Second, "reindex", func(ctx context.Context) error {
//		return reindex(ctx)
//	})
//
// WorkerPool: Fixed set of workers fed by a bounded queue
//
//	pool := async.NewWorkerPool(ctx, async.PoolConfig{
//		Workers:   4,
//		QueueSize: 256,
//		TaskName:  "event delivery",
//		Timeout:   5 * time.Second,
//		Logger:    logger,
//	})
//	defer pool.Shutdown(5 * time.Second)
//
//	if err := pool.TrySubmit(task); errors.Is(err, async.ErrQueueFull) {
//		// shed load instead of blocking the caller
//	}
//
// # Cancellation
//
// Tasks run under the pool's own context, not the submitter's, so work
// accepted by the pool is not aborted when the submitting request ends.
package async
