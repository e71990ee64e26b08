package result

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/ping15/ShortPlayGenerator/internal/task"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ClientSource hands out a live SSH client. execution.Remote satisfies it, so
// artifacts travel over the same transport that ran the job.
type ClientSource interface {
	Client(ctx context.Context) (*ssh.Client, error)
}

// RemoteLocator fetches artifacts from the execution host over SFTP.
type RemoteLocator struct {
	clients   ClientSource
	workDir   string
	outputDir string
	logger    *slog.Logger
}

var _ Locator = (*RemoteLocator)(nil)

// NewRemoteLocator creates a RemoteLocator. workDir is the remote working
// directory of the generation program.
func NewRemoteLocator(clients ClientSource, workDir, outputDir string, logger *slog.Logger) *RemoteLocator {
	return &RemoteLocator{
		clients:   clients,
		workDir:   workDir,
		outputDir: outputDir,
		logger:    logger.With("component", "remote_locator"),
	}
}

// Locate implements Locator
func (l *RemoteLocator) Locate(ctx context.Context, t task.Task) (Artifact, error) {
	client, err := l.clients.Client(ctx)
	if err != nil {
		return Artifact{}, err
	}

	sc, err := sftp.NewClient(client)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer func() { _ = sc.Close() }()

	src := ExpectedPath(l.workDir, t)

	info, err := sc.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactMissing, src)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to stat remote artifact: %w", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return Artifact{}, fmt.Errorf("%w: %s is empty", ErrArtifactMissing, src)
	}

	f, err := sc.Open(src)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to open remote artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	dest := LocalPath(l.outputDir, t.ID)
	n, err := writeAtomic(dest, f)
	if err != nil {
		return Artifact{}, err
	}

	l.logger.Info("artifact downloaded",
		"task_id", t.ID,
		"remote_path", src,
		"path", dest,
		"bytes", n)
	return Artifact{TaskID: t.ID, RemotePath: src, LocalPath: dest, Size: n}, nil
}
