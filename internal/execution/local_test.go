package execution

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) (*Local, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dir := t.TempDir()
	return NewLocal(dir, logger), dir
}

func TestLocal_Run(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		command  string
		wantCode int
		wantOut  string
	}{
		{"success", "echo hello", ExitClean, "hello\n"},
		{"stderr is captured", "echo oops >&2", ExitClean, "oops\n"},
		{"non-zero exit", "echo boom; exit 3", 3, "boom\n"},
		{"killed by signal", "kill -9 $$", ExitOOMKilled, ""},
		{"terminated", "kill -15 $$", ExitTerminated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend, dir := newTestLocal(t)
			logDest := filepath.Join(dir, "logs", "task.log")

			res, err := backend.Run(context.Background(), tt.command, logDest, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Equal(t, tt.wantOut, res.Output)

			logged, err := os.ReadFile(logDest)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, string(logged))
		})
	}
}

func TestLocal_Run_Timeout(t *testing.T) {
	t.Parallel()

	backend, dir := newTestLocal(t)

	started := time.Now()
	res, err := backend.Run(context.Background(), "echo started; exec sleep 10", filepath.Join(dir, "t.log"), 200*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.Equal(t, "started\n", res.Output)
	assert.Less(t, time.Since(started), 8*time.Second)
}

func TestLocal_Run_OutputTail(t *testing.T) {
	t.Parallel()

	backend, dir := newTestLocal(t)

	res, err := backend.Run(context.Background(), "head -c 30000 /dev/zero | tr '\\0' a; printf END", filepath.Join(dir, "big.log"), time.Minute)
	require.NoError(t, err)

	assert.Len(t, res.Output, OutputTailBytes)
	assert.True(t, strings.HasSuffix(res.Output, "aaaEND"))
}

func TestLocal_Run_WorkingDirectory(t *testing.T) {
	t.Parallel()

	backend, dir := newTestLocal(t)

	res, err := backend.Run(context.Background(), "pwd", filepath.Join(dir, "pwd.log"), time.Minute)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(res.Output))
}

func TestLocal_Run_CancelledContext(t *testing.T) {
	t.Parallel()

	backend, dir := newTestLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Run(ctx, "echo never", filepath.Join(dir, "c.log"), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_RunArgv(t *testing.T) {
	t.Parallel()

	backend, dir := newTestLocal(t)

	res, err := backend.RunArgv(context.Background(),
		[]string{"bash", "-c", `printf '%s|%s' "$1" "$SHORTPLAY_TEST"`, "bash", "it's $(literal)"},
		[]string{"SHORTPLAY_TEST=set"},
		filepath.Join(dir, "argv.log"), time.Minute)
	require.NoError(t, err)

	assert.Equal(t, ExitClean, res.ExitCode)
	assert.Equal(t, "it's $(literal)|set", res.Output)
}

func TestLocal_RunArgv_Errors(t *testing.T) {
	t.Parallel()

	backend, dir := newTestLocal(t)

	_, err := backend.RunArgv(context.Background(), nil, nil, filepath.Join(dir, "a.log"), time.Minute)
	assert.Error(t, err)

	_, err = backend.RunArgv(context.Background(), []string{filepath.Join(dir, "missing-binary")}, nil, filepath.Join(dir, "b.log"), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start command")
}

func TestLocal_Mode(t *testing.T) {
	t.Parallel()

	backend, _ := newTestLocal(t)
	assert.Equal(t, "local", backend.Mode())
}
