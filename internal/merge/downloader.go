package merge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	fileScheme = "file://"
	copyBuffer = 32 * 1024
)

// Downloader fetches merge sources into a working directory.
type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

// NewDownloader creates a Downloader. A nil client gets a plain client with
// a generous timeout for large clips.
func NewDownloader(client *http.Client, logger *slog.Logger) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Downloader{
		client: client,
		logger: logger.With("component", "merge_downloader"),
	}
}

// FetchAll downloads every source into dir as part_NNN.mp4 and returns the
// paths in source order. The first failure cancels the remaining downloads.
func (d *Downloader) FetchAll(ctx context.Context, sources []string, dir string) ([]string, error) {
	paths := make([]string, len(sources))
	g, gctx := errgroup.WithContext(ctx)

	for i, src := range sources {
		dest := filepath.Join(dir, fmt.Sprintf("part_%03d.mp4", i))
		paths[i] = dest
		g.Go(func() error {
			return d.Fetch(gctx, src, dest)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Fetch copies one source to dest, streaming so whole clips are never held
// in memory.
func (d *Downloader) Fetch(ctx context.Context, src, dest string) error {
	started := time.Now()

	body, err := d.open(ctx, src)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDownload, src, err)
	}
	defer func() { _ = body.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrDownload, dest, err)
	}

	n, err := io.CopyBuffer(f, body, make([]byte, copyBuffer))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDownload, src, err)
	}

	d.logger.Debug("source downloaded",
		"source", src,
		"bytes", n,
		"elapsed", time.Since(started))
	return nil
}

func (d *Downloader) open(ctx context.Context, src string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(src, fileScheme):
		return os.Open(src[len(fileScheme):])

	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return resp.Body, nil

	default:
		return nil, fmt.Errorf("unsupported locator scheme")
	}
}
