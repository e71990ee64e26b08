// Package execution runs generation commands on a compute backend and
// reports their exit code and captured output.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConnection means the backend could not reach the host that should run
// the command. It is distinct from the command exiting non-zero.
var ErrConnection = errors.New("execution host unreachable")

// Exit codes with a specific meaning to operators
const (
	ExitClean      = 0
	ExitGeneral    = 1
	ExitOOMKilled  = 137
	ExitFault      = 139
	ExitTerminated = 143

	// ExitTimeout is reported when the command outlived its timeout
	ExitTimeout = -1
)

// DefaultTimeout bounds a single generation run.
const DefaultTimeout = 2 * time.Hour

// OutputTailBytes is how much trailing output a Result keeps.
const OutputTailBytes = 20000

// Result is the outcome of one command run.
type Result struct {
	ExitCode int
	Output   string
}

// Success reports whether the command exited cleanly.
func (r Result) Success() bool {
	return r.ExitCode == ExitClean
}

// Reason renders the exit code for failure records and logs.
func (r Result) Reason() string {
	return fmt.Sprintf("exit code %d: %s", r.ExitCode, Describe(r.ExitCode))
}

// Describe maps an exit code to a human-readable classification.
func Describe(code int) string {
	switch code {
	case ExitClean:
		return "clean exit"
	case ExitGeneral:
		return "general failure"
	case ExitOOMKilled:
		return "killed, likely out of memory"
	case ExitFault:
		return "segmentation fault, likely accelerator or driver error"
	case ExitTerminated:
		return "terminated"
	case ExitTimeout:
		return "timed out"
	default:
		return "abnormal exit"
	}
}

// Backend runs a shell command to completion.
type Backend interface {
	// Run executes command, sending its combined output to logDest on the
	// host that runs it, and blocks until it exits or timeout elapses.
	// A zero timeout uses DefaultTimeout.
	Run(ctx context.Context, command, logDest string, timeout time.Duration) (Result, error)

	// Mode names the backend ("local" or "remote").
	Mode() string
}

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
