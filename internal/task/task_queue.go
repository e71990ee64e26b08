package task

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push once the queue has been closed.
var ErrQueueClosed = errors.New("task queue is closed")

// Queue is an unbounded FIFO of tasks. Push never blocks; Pop blocks while
// the queue is empty. Close places a sentinel at the head of the queue so the
// consumer stops after its current task, leaving the rest in the durable log.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Task
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a task to the tail of the queue.
func (q *Queue) Push(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, t)
	q.cond.Signal()
	return nil
}

// Pop removes and returns the head of the queue, blocking while it is empty.
// It returns false once the sentinel has been reached.
func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return Task{}, false
	}

	t := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	return t, true
}

// Close stops the queue. Further pushes fail and Pop returns false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of tasks waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
