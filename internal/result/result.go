// Package result finds and fetches the video a generation run produced.
// A zero exit code is not trusted on its own: the artifact must exist on the
// host that ran the job and must not be empty.
package result

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/ping15/ShortPlayGenerator/internal/task"
)

// ErrArtifactMissing means the program exited cleanly but left no output.
var ErrArtifactMissing = errors.New("result artifact not found")

// Artifact is a generated video after it has been fetched locally.
type Artifact struct {
	TaskID     string
	RemotePath string
	LocalPath  string
	Size       int64
}

// Locator finds the artifact for a finished task and copies it to local storage.
type Locator interface {
	Locate(ctx context.Context, t task.Task) (Artifact, error)
}

// ExpectedPath is where the generation program writes its output for t.
func ExpectedPath(workDir string, t task.Task) string {
	return path.Join(workDir, "result", string(t.Kind), t.ID+".mp4")
}

// LocalPath is where a fetched artifact for taskID is kept.
func LocalPath(outputDir, taskID string) string {
	return filepath.Join(outputDir, taskID+".mp4")
}

// writeAtomic streams src into dest through a temp file in the same directory.
func writeAtomic(dest string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return n, nil
}
