package generation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/execution"
	"github.com/ping15/ShortPlayGenerator/internal/result"
	"github.com/ping15/ShortPlayGenerator/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockBackend implements execution.Backend with an overridable RunFn.
type MockBackend struct {
	mu       sync.Mutex
	Commands []string
	RunFn    func(ctx context.Context, command, logDest string, timeout time.Duration) (execution.Result, error)
}

func (b *MockBackend) Run(ctx context.Context, command, logDest string, timeout time.Duration) (execution.Result, error) {
	b.mu.Lock()
	b.Commands = append(b.Commands, command)
	b.mu.Unlock()
	if b.RunFn != nil {
		return b.RunFn(ctx, command, logDest, timeout)
	}
	return execution.Result{ExitCode: execution.ExitClean}, nil
}

func (b *MockBackend) Mode() string { return "remote" }

// MockArgvBackend also execs argv directly, like the local backend.
type MockArgvBackend struct {
	MockBackend
	Argv [][]string
	Env  [][]string
}

func (b *MockArgvBackend) RunArgv(ctx context.Context, argv, env []string, logDest string, timeout time.Duration) (execution.Result, error) {
	b.mu.Lock()
	b.Argv = append(b.Argv, argv)
	b.Env = append(b.Env, env)
	b.mu.Unlock()
	return execution.Result{ExitCode: execution.ExitClean}, nil
}

func (b *MockArgvBackend) Mode() string { return "local" }

// MockLocator implements result.Locator with an overridable LocateFn.
type MockLocator struct {
	LocateFn func(ctx context.Context, t task.Task) (result.Artifact, error)
}

func (l *MockLocator) Locate(ctx context.Context, t task.Task) (result.Artifact, error) {
	if l.LocateFn != nil {
		return l.LocateFn(ctx, t)
	}
	return result.Artifact{TaskID: t.ID, LocalPath: "/out/" + t.ID + ".mp4"}, nil
}

// MockOutcome records deliveries and failures.
type MockOutcome struct {
	mu        sync.Mutex
	Delivered map[string]string
	Failed    map[string]string
	DeliverFn func(taskID, localPath string) (string, error)
}

func NewMockOutcome() *MockOutcome {
	return &MockOutcome{Delivered: map[string]string{}, Failed: map[string]string{}}
}

func (o *MockOutcome) Deliver(_ context.Context, taskID, localPath string) (string, error) {
	o.mu.Lock()
	o.Delivered[taskID] = localPath
	o.mu.Unlock()
	if o.DeliverFn != nil {
		return o.DeliverFn(taskID, localPath)
	}
	return "https://cdn.example.com/" + taskID + ".mp4", nil
}

func (o *MockOutcome) Fail(_ context.Context, taskID, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Failed[taskID] = reason
}
