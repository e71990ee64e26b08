// Package media wraps the external ffmpeg binary for container repair and
// stream-copy concatenation.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Errors returned by FFmpeg
var (
	ErrRepair = errors.New("container repair failed")
	ErrConcat = errors.New("concatenation failed")
)

// Default timeouts for a single ffmpeg run
const (
	DefaultRepairTimeout = 120 * time.Second
	DefaultConcatTimeout = 600 * time.Second
)

// stderrLimit bounds how much ffmpeg output is kept for error messages.
const stderrLimit = 2000

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	path          string
	repairTimeout time.Duration
	concatTimeout time.Duration
	logger        *slog.Logger
}

// NewFFmpeg creates an FFmpeg. A zero timeout selects the default; an empty
// path looks ffmpeg up on PATH at run time.
func NewFFmpeg(path string, repairTimeout, concatTimeout time.Duration, logger *slog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if repairTimeout <= 0 {
		repairTimeout = DefaultRepairTimeout
	}
	if concatTimeout <= 0 {
		concatTimeout = DefaultConcatTimeout
	}
	return &FFmpeg{
		path:          path,
		repairTimeout: repairTimeout,
		concatTimeout: concatTimeout,
		logger:        logger.With("component", "ffmpeg"),
	}
}

// Repair rewrites in to out by stream copy, moving the index atom to the
// front of the file.
func (f *FFmpeg) Repair(ctx context.Context, in, out string) error {
	args := []string{"-y", "-i", in, "-c", "copy", "-movflags", "+faststart", out}
	if err := f.run(ctx, f.repairTimeout, args); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRepair, filepath.Base(in), err)
	}
	return nil
}

// Concat joins clips, in order, into out without re-encoding.
func (f *FFmpeg) Concat(ctx context.Context, clips []string, out string) error {
	if len(clips) == 0 {
		return fmt.Errorf("%w: no clips", ErrConcat)
	}

	manifest := filepath.Join(filepath.Dir(out), "concat_list.txt")
	if err := WriteManifest(manifest, clips); err != nil {
		return fmt.Errorf("%w: %w", ErrConcat, err)
	}
	defer func() { _ = os.Remove(manifest) }()

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", manifest, "-c", "copy", out}
	if err := f.run(ctx, f.concatTimeout, args); err != nil {
		return fmt.Errorf("%w: %w", ErrConcat, err)
	}
	return nil
}

// WriteManifest writes an ffmpeg concat list of absolute paths.
func WriteManifest(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return fmt.Errorf("failed to resolve clip path: %w", err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat manifest: %w", err)
	}
	return nil
}

func (f *FFmpeg) run(ctx context.Context, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	if err == nil {
		f.logger.Debug("ffmpeg finished", "args", args, "elapsed", time.Since(started))
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("ffmpeg timed out after %s", timeout)
	}
	msg := stderr.String()
	if len(msg) > stderrLimit {
		msg = msg[len(msg)-stderrLimit:]
	}
	return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(msg))
}
