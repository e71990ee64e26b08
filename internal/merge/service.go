package merge

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/ping15/ShortPlayGenerator/internal/platform/tracing"
)

// Outcome delivers a finished merge or reports its failure.
// delivery.Deliverer implements it.
type Outcome interface {
	Deliver(ctx context.Context, taskID, localPath string) (string, error)
	Fail(ctx context.Context, taskID, reason string)
}

// Service accepts merge requests and runs them in the background.
type Service struct {
	pool      *Pool
	pipeline  *Pipeline
	outcome   Outcome
	outputDir string
	tracer    tracing.Tracer
	logger    *slog.Logger
}

// NewService creates a Service. Merged files are kept in outputDir as
// <task_id>.mp4. A nil tracer disables tracing.
func NewService(pipeline *Pipeline, outcome Outcome, outputDir string, cfg PoolConfig, tracer tracing.Tracer, logger *slog.Logger) *Service {
	if tracer == nil {
		tracer = tracing.NoopTracer{}
	}
	s := &Service{
		pipeline:  pipeline,
		outcome:   outcome,
		outputDir: outputDir,
		tracer:    tracer,
		logger:    logger.With("component", "merge_service"),
	}
	s.pool = NewPool(cfg, s.run, logger)
	return s
}

// Start launches the merge workers.
func (s *Service) Start() {
	s.pool.Start()
}

// Submit validates req and queues it. It returns ErrQueueFull when the pool
// is saturated and never waits for the merge itself.
func (s *Service) Submit(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := s.pool.Submit(req); err != nil {
		return err
	}

	s.logger.Info("merge accepted", "task_id", req.ID, "sources", len(req.Sources))
	return nil
}

// Pending returns the number of merges waiting for a worker.
func (s *Service) Pending() int {
	return s.pool.Len()
}

// Stop drains the pool.
func (s *Service) Stop(ctx context.Context) error {
	return s.pool.Stop(ctx)
}

// OutputPath is where the merged file for taskID is written.
func (s *Service) OutputPath(taskID string) string {
	return filepath.Join(s.outputDir, taskID+".mp4")
}

func (s *Service) run(ctx context.Context, req Request) (err error) {
	ctx, end := s.tracer.Start(ctx, "merge", req.ID)
	defer func() { end(err) }()

	out := s.OutputPath(req.ID)

	if err = s.pipeline.Run(ctx, req, out); err != nil {
		s.outcome.Fail(ctx, req.ID, err.Error())
		return err
	}

	// Upload failures are reported by the outcome itself; the local file stays
	if _, derr := s.outcome.Deliver(ctx, req.ID, out); derr != nil {
		s.logger.Warn("merged video was not delivered", "task_id", req.ID, "path", out, "error", derr)
	}
	return nil
}
