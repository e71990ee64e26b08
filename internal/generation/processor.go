package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/command"
	"github.com/ping15/ShortPlayGenerator/internal/delivery"
	"github.com/ping15/ShortPlayGenerator/internal/execution"
	"github.com/ping15/ShortPlayGenerator/internal/platform/tracing"
	"github.com/ping15/ShortPlayGenerator/internal/result"
	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// Outcome delivers a fetched artifact or reports a failure.
// delivery.Deliverer implements it.
type Outcome interface {
	Deliver(ctx context.Context, taskID, localPath string) (string, error)
	Fail(ctx context.Context, taskID, reason string)
}

// ArgvRunner is implemented by backends that can exec a program directly,
// without a shell.
type ArgvRunner interface {
	RunArgv(ctx context.Context, argv, env []string, logDest string, timeout time.Duration) (execution.Result, error)
}

// Config holds the per-run settings of the processor.
type Config struct {
	// LogDir receives skyreels_<task_id>.log on the host that runs the job
	LogDir string
	// Timeout bounds one run; zero uses execution.DefaultTimeout
	Timeout time.Duration
	// NotifyLog receives the completion line for runs that bypass the shell
	NotifyLog string
}

// Processor implements task.Processor for generation tasks.
type Processor struct {
	builder  *command.Builder
	backend  execution.Backend
	locator  result.Locator
	outcome  Outcome
	failures task.FailureRecorder
	tracer   tracing.Tracer
	cfg      Config
	logger   *slog.Logger
}

var _ task.Processor = (*Processor)(nil)

// NewProcessor creates a Processor. A nil tracer disables tracing.
func NewProcessor(
	builder *command.Builder,
	backend execution.Backend,
	locator result.Locator,
	outcome Outcome,
	failures task.FailureRecorder,
	tracer tracing.Tracer,
	cfg Config,
	logger *slog.Logger,
) *Processor {
	if tracer == nil {
		tracer = tracing.NoopTracer{}
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "/tmp"
	}
	return &Processor{
		builder:  builder,
		backend:  backend,
		locator:  locator,
		outcome:  outcome,
		failures: failures,
		tracer:   tracer,
		cfg:      cfg,
		logger:   logger.With("component", "generation_processor", "backend", backend.Mode()),
	}
}

// Process implements task.Processor
func (p *Processor) Process(ctx context.Context, t task.Task) error {
	ctx, end := p.tracer.Start(ctx, "generate", t.ID)
	err := p.process(ctx, t)
	end(err)
	return err
}

func (p *Processor) process(ctx context.Context, t task.Task) error {
	logger := p.logger.With("task_id", t.ID, "kind", t.Kind)

	inv, err := p.builder.Build(t)
	if err != nil {
		p.fail(ctx, t.ID, fmt.Sprintf("invalid task: %v", err), "", logger)
		return err
	}

	logDest := p.LogPath(t.ID)
	logger.Info("running generation command", "log", logDest)
	started := time.Now()

	res, err := p.run(ctx, t, inv, logDest)
	if err != nil {
		reason := fmt.Sprintf("execution error: %v", err)
		if errors.Is(err, execution.ErrConnection) {
			reason = fmt.Sprintf("connection failure: %v", err)
		}
		p.fail(ctx, t.ID, reason, "", logger)
		return err
	}

	logger.Info("generation command finished",
		"exit_code", res.ExitCode,
		"elapsed", time.Since(started))

	if !res.Success() {
		p.fail(ctx, t.ID, res.Reason(), res.Output, logger)
		return &NonZeroExitError{Result: res}
	}

	art, err := p.locator.Locate(ctx, t)
	if err != nil {
		reason := fmt.Sprintf("failed to fetch result: %v", err)
		if errors.Is(err, result.ErrArtifactMissing) {
			reason = fmt.Sprintf("exit code 0 but no output produced: %v", err)
		}
		p.fail(ctx, t.ID, reason, res.Output, logger)
		return err
	}

	url, err := p.outcome.Deliver(ctx, t.ID, art.LocalPath)
	switch {
	case errors.Is(err, delivery.ErrNoCredentials):
		logger.Warn("video kept locally, storage not configured", "path", art.LocalPath)
		return nil
	case err != nil && task.Abandoned(ctx):
		logger.Warn("delivery interrupted by shutdown", "error", err)
		return err
	case err != nil:
		if ferr := p.failures.RecordFailure(t.ID, fmt.Sprintf("delivery failed: %v", err), res.Output); ferr != nil {
			logger.Error("failed to write failure record", "error", ferr)
		}
		return err
	}

	logger.Info("video delivered", "url", url, "path", art.LocalPath)
	return nil
}

// LogPath is the command log for taskID on the host that runs the job.
func (p *Processor) LogPath(taskID string) string {
	return path.Join(p.cfg.LogDir, "skyreels_"+taskID+".log")
}

func (p *Processor) run(ctx context.Context, t task.Task, inv command.Invocation, logDest string) (execution.Result, error) {
	if runner, ok := p.backend.(ArgvRunner); ok && !inv.NeedsShell() {
		res, err := runner.RunArgv(ctx, inv.Argv(), inv.Environ(os.Getenv), logDest, p.cfg.Timeout)
		if err == nil {
			p.notifyDone(t.ID, res.ExitCode)
		}
		return res, err
	}

	script := inv.Script() + p.builder.NotifyTail(t.ID)
	return p.backend.Run(ctx, script, logDest, p.cfg.Timeout)
}

// notifyDone writes the completion line the shell tail writes for shell runs.
func (p *Processor) notifyDone(taskID string, rc int) {
	if p.cfg.NotifyLog == "" {
		return
	}

	line := fmt.Sprintf("[NOTIFY] video_generate_done taskId=%s rc=%d", taskID, rc)
	err := delivery.AppendLine(p.cfg.NotifyLog, line)
	if err != nil {
		p.logger.Warn("failed to write notify line", "task_id", taskID, "error", err)
	}
}

// fail records the failure and reports it to the caller, unless the runner
// abandoned the task at shutdown: then it is left to run again on restart.
func (p *Processor) fail(ctx context.Context, taskID, reason, output string, logger *slog.Logger) {
	if task.Abandoned(ctx) {
		logger.Warn("generation interrupted by shutdown, not reporting", "reason", reason)
		return
	}
	logger.Error("generation failed", "reason", reason)

	if err := p.failures.RecordFailure(taskID, reason, output); err != nil {
		logger.Error("failed to write failure record", "error", err)
	}
	p.outcome.Fail(ctx, taskID, reason)
}
