package result

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/execution"
	"github.com/ping15/ShortPlayGenerator/internal/task"
	"github.com/ping15/ShortPlayGenerator/internal/testutils/sshtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTask(id string) task.Task {
	return task.Task{
		ID:       id,
		Kind:     task.KindReferenceToVideo,
		Prompt:   "p",
		Duration: 5,
		Images:   []string{"file:///a.png"},
	}
}

func writeArtifact(t *testing.T, workDir string, tk task.Task, content string) {
	t.Helper()
	p := ExpectedPath(workDir, tk)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestExpectedPath(t *testing.T) {
	t.Parallel()

	tk := testTask("abc")
	assert.Equal(t, "/work/result/reference_to_video/abc.mp4", ExpectedPath("/work", tk))

	tk.Kind = task.KindSingleShotExtension
	assert.Equal(t, "/work/result/single_shot_extension/abc.mp4", ExpectedPath("/work/", tk))
}

func TestLocalLocator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content *string
		wantErr error
	}{
		{name: "present", content: ptr("video-bytes")},
		{name: "missing", wantErr: ErrArtifactMissing},
		{name: "empty", content: ptr(""), wantErr: ErrArtifactMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			workDir, outDir := t.TempDir(), t.TempDir()
			tk := testTask("task-" + tt.name)
			if tt.content != nil {
				writeArtifact(t, workDir, tk, *tt.content)
			}

			art, err := NewLocalLocator(workDir, outDir, testLogger()).Locate(context.Background(), tk)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NoFileExists(t, LocalPath(outDir, tk.ID))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, LocalPath(outDir, tk.ID), art.LocalPath)
			assert.Equal(t, int64(len(*tt.content)), art.Size)
			data, err := os.ReadFile(art.LocalPath)
			require.NoError(t, err)
			assert.Equal(t, *tt.content, string(data))
		})
	}
}

func TestLocalLocator_OverwritesPreviousFetch(t *testing.T) {
	t.Parallel()

	workDir, outDir := t.TempDir(), t.TempDir()
	tk := testTask("rerun")
	locator := NewLocalLocator(workDir, outDir, testLogger())

	writeArtifact(t, workDir, tk, "first attempt")
	_, err := locator.Locate(context.Background(), tk)
	require.NoError(t, err)

	writeArtifact(t, workDir, tk, "second")
	art, err := locator.Locate(context.Background(), tk)
	require.NoError(t, err)

	data, err := os.ReadFile(art.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestRemoteLocator(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Shell, sshtest.WithSFTP())
	remote, err := execution.NewRemote(execution.RemoteConfig{
		Host:           srv.Host,
		Port:           srv.Port,
		User:           srv.User,
		Password:       srv.Password,
		ConnectTimeout: 5 * time.Second,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })

	// The fake host shares this filesystem, so the remote work dir is local
	remoteWorkDir, outDir := t.TempDir(), t.TempDir()
	locator := NewRemoteLocator(remote, remoteWorkDir, outDir, testLogger())

	t.Run("present", func(t *testing.T) {
		tk := testTask("remote-ok")
		writeArtifact(t, remoteWorkDir, tk, "remote-video")

		art, err := locator.Locate(context.Background(), tk)
		require.NoError(t, err)
		assert.Equal(t, ExpectedPath(remoteWorkDir, tk), art.RemotePath)

		data, err := os.ReadFile(art.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, "remote-video", string(data))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := locator.Locate(context.Background(), testTask("remote-missing"))
		assert.ErrorIs(t, err, ErrArtifactMissing)
	})

	t.Run("empty", func(t *testing.T) {
		tk := testTask("remote-empty")
		writeArtifact(t, remoteWorkDir, tk, "")

		_, err := locator.Locate(context.Background(), tk)
		assert.ErrorIs(t, err, ErrArtifactMissing)
	})
}

func TestRemoteLocator_ConnectionError(t *testing.T) {
	t.Parallel()

	source := clientSourceFunc(func(context.Context) error { return execution.ErrConnection })
	_, err := NewRemoteLocator(source, "/work", t.TempDir(), testLogger()).Locate(context.Background(), testTask("x"))
	assert.ErrorIs(t, err, execution.ErrConnection)
}

func ptr(s string) *string { return &s }

type clientSourceFunc func(context.Context) error

func (f clientSourceFunc) Client(ctx context.Context) (*ssh.Client, error) {
	return nil, f(ctx)
}
