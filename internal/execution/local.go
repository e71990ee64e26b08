package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// Local runs commands as child processes of this server under bash.
type Local struct {
	shell  string
	dir    string
	logger *slog.Logger
}

var _ Backend = (*Local)(nil)

// NewLocal creates a Local backend. Commands start in dir ("/" when empty).
func NewLocal(dir string, logger *slog.Logger) *Local {
	if dir == "" {
		dir = "/"
	}
	return &Local{
		shell:  "bash",
		dir:    dir,
		logger: logger.With("component", "local_backend"),
	}
}

// Mode implements Backend
func (l *Local) Mode() string { return "local" }

// Run implements Backend
func (l *Local) Run(ctx context.Context, command, logDest string, timeout time.Duration) (Result, error) {
	cmd := func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, l.shell, "-c", command)
	}
	return l.run(ctx, cmd, logDest, timeout)
}

// RunArgv runs argv directly without a shell, with env appended to the
// server's environment.
func (l *Local) RunArgv(ctx context.Context, argv, env []string, logDest string, timeout time.Duration) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("empty argv")
	}
	cmd := func(ctx context.Context) *exec.Cmd {
		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Env = append(os.Environ(), env...)
		return c
	}
	return l.run(ctx, cmd, logDest, timeout)
}

func (l *Local) run(ctx context.Context, build func(context.Context) *exec.Cmd, logDest string, timeout time.Duration) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(logDest), 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(logDest)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create command log: %w", err)
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			l.logger.Warn("failed to close command log", "path", logDest, "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, effectiveTimeout(timeout))
	defer cancel()

	cmd := build(runCtx)
	cmd.Dir = l.dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.WaitDelay = 5 * time.Second

	// Kill the whole process group so children of the shell die with it
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	started := time.Now()
	l.logger.Debug("starting command", "log", logDest)
	runErr := cmd.Run()

	result := Result{Output: readTail(logDest, OutputTailBytes)}
	switch {
	case runErr == nil:
		result.ExitCode = ExitClean
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = ExitTimeout
	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("failed to start command: %w", runErr)
		}
		result.ExitCode = exitCode(exitErr)
	}

	l.logger.Debug("command finished",
		"exit_code", result.ExitCode,
		"elapsed", time.Since(started))
	return result, nil
}

// exitCode reports signal deaths the way a shell would (128 + signal).
func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}

func readTail(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := info.Size() - int64(n)
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(data)
}
