// Package task holds the generation task model and the worker that runs it.
//
// Submitted tasks are appended to a durable TaskLog before they become
// visible to the in-memory queue, and a single Runner goroutine executes them
// one at a time. A task's record is removed only after processing finishes,
// whatever the outcome, so on restart every record still in the log is
// re-enqueued in order. Delivery is therefore at-least-once.
package task
