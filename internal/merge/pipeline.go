package merge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// MediaTool repairs and concatenates clips. media.FFmpeg implements it.
type MediaTool interface {
	Repair(ctx context.Context, in, out string) error
	Concat(ctx context.Context, clips []string, out string) error
}

// Pipeline turns a Request into one output file.
type Pipeline struct {
	downloader *Downloader
	media      MediaTool
	tempDir    string
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline. Scratch directories are created under
// tempDir, or the system temp dir when empty.
func NewPipeline(downloader *Downloader, media MediaTool, tempDir string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		downloader: downloader,
		media:      media,
		tempDir:    tempDir,
		logger:     logger.With("component", "merge_pipeline"),
	}
}

// Run downloads, repairs and joins the request's sources into out. Nothing is
// written to out unless every step succeeds, and the scratch directory is
// removed on every path.
func (p *Pipeline) Run(ctx context.Context, req Request, out string) error {
	if err := req.Validate(); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(p.tempDir, "merge_"+req.ID+"_")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("failed to remove scratch directory", "path", dir, "error", err)
		}
	}()

	logger := p.logger.With("task_id", req.ID, "sources", len(req.Sources))
	started := time.Now()

	parts, err := p.downloader.FetchAll(ctx, req.Sources, dir)
	if err != nil {
		return err
	}
	logger.Info("sources downloaded", "elapsed", time.Since(started))

	fixed := make([]string, 0, len(parts))
	for i, part := range parts {
		repaired := filepath.Join(dir, fmt.Sprintf("fixed_%03d.mp4", i))
		if err := p.media.Repair(ctx, part, repaired); err != nil {
			return err
		}
		fixed = append(fixed, repaired)
	}

	result := fixed[0]
	if len(fixed) > 1 {
		result = filepath.Join(dir, "merged.mp4")
		if err := p.media.Concat(ctx, fixed, result); err != nil {
			return err
		}
	}

	if err := copyFile(result, out); err != nil {
		return err
	}

	logger.Info("merge finished", "output", out, "elapsed", time.Since(started))
	return nil
}

// copyFile writes src to dst through a temp file next to dst, so a reader
// never sees a partial output.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open merged clip: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".merge-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.CopyBuffer(tmp, in, make([]byte, copyBuffer)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
