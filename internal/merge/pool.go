package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Errors returned by the Pool
var (
	ErrPoolClosed = errors.New("merge pool is closed")
	ErrQueueFull  = errors.New("merge queue is full")
)

// PoolConfig bounds merge concurrency.
type PoolConfig struct {
	// Workers is the number of merges that may run at once.
	// If zero or negative, defaults to 2
	Workers int

	// QueueSize is how many accepted merges may wait for a worker.
	// If zero or negative, defaults to 32
	QueueSize int
}

// DefaultPoolConfig returns a PoolConfig with reasonable defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:   2,
		QueueSize: 32,
	}
}

// Handler processes one merge request.
type Handler func(ctx context.Context, req Request) error

// Pool runs merge requests on a fixed set of worker goroutines fed by a
// bounded queue. Submit never blocks: a saturated queue is reported to the
// caller instead.
type Pool struct {
	jobs    chan Request
	handler Handler
	workers int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is cancelled only when Stop gives up waiting
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	started bool

	logger *slog.Logger

	// errorHandler is called when a merge fails.
	// If nil, errors are only logged
	errorHandler func(req Request, err error)
}

// NewPool creates a Pool. Workers are not started until Start is called.
func NewPool(cfg PoolConfig, handler Handler, logger *slog.Logger) *Pool {
	logger = logger.With("component", "merge_pool")

	defaults := DefaultPoolConfig()
	if cfg.Workers <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", cfg.Workers,
			"default_count", defaults.Workers)
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:    make(chan Request, cfg.QueueSize),
		handler: handler,
		workers: cfg.Workers,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// SetErrorHandler allows setting a custom handler for merge failures
func (p *Pool) SetErrorHandler(handler func(req Request, err error)) {
	p.errorHandler = handler
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}
	p.started = true

	p.logger.Info("starting merge workers", "workers", p.workers, "queue_cap", cap(p.jobs))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues req for a worker.
func (p *Pool) Submit(req Request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- req:
		p.logger.Debug("merge enqueued",
			"task_id", req.ID,
			"queue_len", len(p.jobs),
			"queue_cap", cap(p.jobs))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(p.jobs))
	}
}

// Len returns the number of merges waiting for a worker.
func (p *Pool) Len() int {
	return len(p.jobs)
}

// Stop refuses new work and waits for queued and running merges to finish.
// If ctx expires first, running merges are cancelled and ctx.Err() is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("merge workers stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		p.logger.Warn("merge workers did not drain in time", "pending", len(p.jobs))
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("merge worker started")

	for req := range p.jobs {
		p.process(req, logger)
	}

	logger.Debug("merge worker stopped")
}

func (p *Pool) process(req Request, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("merge panicked: %v", rec)
			logger.Error("merge panicked", "task_id", req.ID, "panic", rec)
			if p.errorHandler != nil {
				p.errorHandler(req, err)
			}
		}
	}()

	if err := p.handler(p.ctx, req); err != nil {
		logger.Error("merge failed", "task_id", req.ID, "error", err)
		if p.errorHandler != nil {
			p.errorHandler(req, err)
		}
	}
}
