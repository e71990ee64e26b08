// Package generation runs one video generation task end to end: it renders
// the command, executes it on the configured backend, checks that the
// expected artifact exists, fetches it and hands it to delivery.
//
// Each failure class ends the same way: a failure record on disk and a FAIL
// outcome for the caller. Processor never retries; the task runner removes
// the task from the durable log once Process returns.
package generation
