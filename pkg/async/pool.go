package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/homestead/pkg/observability"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrPoolClosed is returned by Submit after Shutdown
	ErrPoolClosed = errors.New("worker pool shut down")
)

// Task is a unit of background work
type Task func(ctx context.Context) error

// Config sizes a WorkerPool
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

type job struct {
	name string
	fn   Task
}

// WorkerPool manages a pool of workers that process tasks from a queue
type WorkerPool struct {
	cfg    Config
	logger *observability.Logger

	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts cfg.Workers workers
func NewWorkerPool(cfg Config, logger *observability.Logger) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit queues a task without blocking
func (p *WorkerPool) Submit(name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- job{name: name, fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks
func (p *WorkerPool) Pending() int {
	return len(p.queue)
}

// Shutdown stops accepting tasks and waits for queued ones to finish
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for j := range p.queue {
		if p.ctx.Err() != nil {
			return
		}
		p.run(id, j)
	}
}

func (p *WorkerPool) run(id int, j job) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.TaskTimeout)
	defer cancel()
	defer observability.RecoverPanic(p.logger.WithField("worker", id), j.name)

	if err := j.fn(ctx); err != nil {
		p.logger.WithError(err).
			WithField("worker", id).
			WithField("task", j.name).
			Warn("background task failed")
	}
}
