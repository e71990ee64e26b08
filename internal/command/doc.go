// Package command renders the invocation of the external video generation
// program for a task.
//
// The program is expected to be idempotent per task id: it writes its result
// to result/<kind>/<task_id>.mp4 under the working directory and overwrites
// any file already there. Recovered tasks are re-run from scratch after a
// crash, so an invocation must never append to or reuse partial output from
// an earlier attempt.
package command
