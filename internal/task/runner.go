package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// abandonGrace bounds how long Stop waits for an abandoned task to unwind.
const abandonGrace = 5 * time.Second

// ErrUnexpected marks a task that panicked inside its processor.
var ErrUnexpected = errors.New("unexpected exception")

// ErrRunnerStarted is returned when Start is called more than once.
var ErrRunnerStarted = errors.New("task runner already started")

// ErrAbandoned is the cancellation cause seen by a task that was still
// running when Stop gave up waiting for it.
var ErrAbandoned = errors.New("task abandoned at shutdown")

// Abandoned reports whether ctx was cancelled because the runner is shutting
// down under a running task. Such a task must not be reported as failed; its
// record stays in the log and it runs again on the next start.
func Abandoned(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrAbandoned)
}

// Runner is the generation worker. It owns a single goroutine that pops one
// task at a time, so at most one task ever occupies the execution backend.
type Runner struct {
	log       TaskLog
	queue     *Queue
	processor Processor
	failures  FailureRecorder
	logger    *slog.Logger

	ctx     context.Context
	abandon context.CancelCauseFunc
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	current string
	started bool
}

// NewRunner creates a Runner. failures may be nil, in which case panics are
// only logged.
func NewRunner(log TaskLog, processor Processor, failures FailureRecorder, logger *slog.Logger) *Runner {
	return &Runner{
		log:       log,
		queue:     NewQueue(),
		processor: processor,
		failures:  failures,
		logger:    logger.With("component", "task_runner"),
		ctx:       context.Background(),
		abandon:   func(error) {},
		done:      make(chan struct{}),
		pending:   make(map[string]struct{}),
	}
}

// Submit persists the task and pushes it onto the queue. It never waits for
// execution.
func (r *Runner) Submit(ctx context.Context, t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if r.queue.Closed() {
		return ErrQueueClosed
	}
	if !r.track(t.ID) {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}

	rec, err := NewRecord(t)
	if err != nil {
		r.forget(t.ID)
		return err
	}

	// Persist first so a crash after this point still recovers the task
	if err := r.log.Append(ctx, rec); err != nil {
		r.forget(t.ID)
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Push(t); err != nil {
		// The record stays in the log and is picked up on the next start
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	r.logger.Info("task submitted",
		"task_id", t.ID,
		"kind", t.Kind,
		"queue_len", r.queue.Len())
	return nil
}

// Start re-enqueues every record left in the durable log, in log order, then
// starts the worker. Processing runs under a context detached from ctx's
// cancellation; only Stop can cancel it.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrRunnerStarted
	}
	r.started = true
	r.mu.Unlock()

	r.ctx, r.abandon = context.WithCancelCause(context.WithoutCancel(ctx))

	if err := r.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	go r.worker()
	return nil
}

// Recover loads the durable log and pushes each record onto the queue.
// Records that cannot be decoded are dropped from the log.
func (r *Runner) Recover(ctx context.Context) error {
	records, err := r.log.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load task log: %w", err)
	}

	r.logger.Info("recovering unfinished tasks", "count", len(records))

	for _, rec := range records {
		t, err := rec.Task()
		if err == nil {
			err = t.Validate()
		}
		if err != nil {
			r.logger.Error("dropping unreadable task record",
				"task_id", rec.TaskID,
				"error", err)
			if rmErr := r.log.Remove(ctx, rec.TaskID); rmErr != nil {
				r.logger.Error("failed to remove unreadable task record",
					"task_id", rec.TaskID,
					"error", rmErr)
			}
			continue
		}

		if !r.track(t.ID) {
			r.logger.Warn("skipping duplicate task record", "task_id", t.ID)
			continue
		}
		if err := r.queue.Push(t); err != nil {
			return fmt.Errorf("failed to requeue task %s: %w", t.ID, err)
		}
	}

	return nil
}

// Stop closes the queue and waits for the worker to finish its current task.
// If ctx expires first, the in-flight task is cancelled with ErrAbandoned,
// keeps its durable record so it is retried on the next start, and Stop
// returns ctx.Err() once the worker has let go of it.
func (r *Runner) Stop(ctx context.Context) error {
	r.queue.Close()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("abandoning in-flight task", "task_id", r.Current())
		r.abandon(ErrAbandoned)
	}

	// Backends return promptly once cancelled; the wait keeps cleanup from
	// closing connections under a task that is still unwinding.
	select {
	case <-r.done:
	case <-time.After(abandonGrace):
		r.logger.Error("worker did not release abandoned task", "task_id", r.Current())
	}
	return ctx.Err()
}

// QueueDepth returns the number of tasks waiting behind the current one.
func (r *Runner) QueueDepth() int {
	return r.queue.Len()
}

// Current returns the id of the task being processed, or "" when idle.
func (r *Runner) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Runner) worker() {
	defer close(r.done)

	r.logger.Debug("starting worker")
	for {
		t, ok := r.queue.Pop()
		if !ok {
			r.logger.Debug("queue closed, stopping worker")
			return
		}
		r.processTask(t)
	}
}

// processTask runs one task and always removes its durable record afterwards.
func (r *Runner) processTask(t Task) {
	logger := r.logger.With("task_id", t.ID, "kind", t.Kind)
	started := time.Now()

	r.setCurrent(t.ID)
	keep := false
	defer func() {
		if !keep {
			// Remove runs detached so an abandon right after success still
			// clears the record
			if err := r.log.Remove(context.WithoutCancel(r.ctx), t.ID); err != nil {
				logger.Error("failed to remove task from log", "error", err)
			}
		}
		r.setCurrent("")
		r.forget(t.ID)
	}()

	logger.Info("processing task")

	err := r.execute(t, logger)
	if err != nil && Abandoned(r.ctx) {
		keep = true
		logger.Warn("task abandoned at shutdown, kept for the next start",
			"error", err,
			"elapsed", time.Since(started))
		return
	}
	if err != nil {
		logger.Error("task processing failed",
			"error", err,
			"elapsed", time.Since(started))
		return
	}

	logger.Info("task completed successfully", "elapsed", time.Since(started))
}

func (r *Runner) execute(t Task, logger *slog.Logger) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		stack := string(debug.Stack())
		err = fmt.Errorf("%w: %v", ErrUnexpected, rec)
		logger.Error("task panicked", "panic", rec, "stack", stack)

		if r.failures == nil {
			return
		}
		reason := fmt.Sprintf("unexpected exception: %v", rec)
		if ferr := r.failures.RecordFailure(t.ID, reason, stack); ferr != nil {
			logger.Error("failed to write failure record", "error", ferr)
		}
	}()

	return r.processor.Process(r.ctx, t)
}

func (r *Runner) track(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return false
	}
	r.pending[id] = struct{}{}
	return true
}

func (r *Runner) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *Runner) setCurrent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = id
}
