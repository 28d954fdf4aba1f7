// Package async runs fire-and-forget background tasks on a bounded worker
// pool.
//
// # Overview
//
// A WorkerPool owns a fixed number of goroutines draining a bounded queue.
// Submit never blocks: when the queue is full the task is rejected with
// ErrQueueFull and the caller decides whether to log or drop it. Every task
// runs with its own timeout, and a panicking task is recovered and logged
// without taking its worker down.
//
//	pool := async.NewWorkerPool(async.Config{Workers: 4, QueueSize: 256, TaskTimeout: 10 * time.Second}, logger)
//	defer pool.Shutdown(ctx)
//
//	err := pool.Submit("send invite", func(ctx context.Context) error {
//		return notifier.SendInvite(ctx, msg)
//	})
//
// # Shutdown
//
// Shutdown stops accepting work, lets workers drain the queue, and returns
// once they finish or the context expires. Tasks still queued at that point
// are abandoned.
//
// # Related Packages
//
//   - pkg/notify: dispatches invite and password-reset notices on a pool
package async
