package result

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// LocalLocator reads artifacts from the local filesystem.
type LocalLocator struct {
	workDir   string
	outputDir string
	logger    *slog.Logger
}

var _ Locator = (*LocalLocator)(nil)

// NewLocalLocator creates a LocalLocator.
func NewLocalLocator(workDir, outputDir string, logger *slog.Logger) *LocalLocator {
	return &LocalLocator{
		workDir:   workDir,
		outputDir: outputDir,
		logger:    logger.With("component", "local_locator"),
	}
}

// Locate implements Locator
func (l *LocalLocator) Locate(ctx context.Context, t task.Task) (Artifact, error) {
	src := ExpectedPath(l.workDir, t)

	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactMissing, src)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return Artifact{}, fmt.Errorf("%w: %s is empty", ErrArtifactMissing, src)
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	f, err := os.Open(src)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	dest := LocalPath(l.outputDir, t.ID)
	n, err := writeAtomic(dest, f)
	if err != nil {
		return Artifact{}, err
	}

	l.logger.Info("artifact copied", "task_id", t.ID, "path", dest, "bytes", n)
	return Artifact{TaskID: t.ID, RemotePath: src, LocalPath: dest, Size: n}, nil
}
