package execution

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/testutils/sshtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRemote(t *testing.T, srv *sshtest.Server) *Remote {
	t.Helper()

	r, err := NewRemote(RemoteConfig{
		Host:           srv.Host,
		Port:           srv.Port,
		User:           srv.User,
		Password:       srv.Password,
		ConnectTimeout: 5 * time.Second,
	}, discardLogger())
	require.NoError(t, err)
	r.killTimeout = 500 * time.Millisecond
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// processAlive reports whether pid exists and is not a zombie.
func processAlive(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		raw, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(raw)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

func requireProcessTools(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("timeout"); err != nil {
		t.Skip("coreutils timeout not available")
	}
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
}

func TestWrapRemote(t *testing.T) {
	t.Parallel()

	cmd := `echo "it's" && printf '%s' "$HOME"`
	line := WrapRemote(cmd, "/tmp/logs/task 1.log", 90*time.Minute+500*time.Millisecond)

	m := regexp.MustCompile(`echo ([A-Za-z0-9+/=]+) \| base64 -d`).FindStringSubmatch(line)
	require.Len(t, m, 2)
	decoded, err := base64.StdEncoding.DecodeString(m[1])
	require.NoError(t, err)
	assert.Equal(t, cmd, string(decoded))

	assert.Contains(t, line, "> '/tmp/logs/task 1.log' 2>&1")
	assert.Contains(t, line, "tail -c 20000 '/tmp/logs/task 1.log'")
	assert.True(t, strings.HasPrefix(line, "timeout -k 10s 5401s bash -c "), line)
	assert.Contains(t, line, "echo $pid > '/tmp/logs/task 1.log.pgid'")
	assert.True(t, regexp.MustCompile(`exit \$rc$`).MatchString(line))
}

func TestWrapRemote_RunsUnderBash(t *testing.T) {
	t.Parallel()

	logDest := filepath.Join(t.TempDir(), "wrapped.log")
	line := WrapRemote(`echo "quote's ok"; exit 4`, logDest, time.Minute)

	out, err := exec.Command("bash", "-c", line).Output()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 4, exitErr.ExitCode())
	assert.Equal(t, "quote's ok\n", string(out))

	logged, err := os.ReadFile(logDest)
	require.NoError(t, err)
	assert.Equal(t, "quote's ok\n", string(logged))
}

func TestRemote_Run(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Shell)
	r := newTestRemote(t, srv)
	logDir := t.TempDir()

	tests := []struct {
		name     string
		command  string
		wantCode int
		wantOut  string
	}{
		{"success", "echo remote-out", ExitClean, "remote-out\n"},
		{"quoted arguments", `printf '%s\n' 'it'\''s'`, ExitClean, "it's\n"},
		{"general failure", "echo failing >&2; exit 1", ExitGeneral, "failing\n"},
		{"oom", "exit 137", ExitOOMKilled, ""},
		{"fault", "exit 139", ExitFault, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logDest := filepath.Join(logDir, tt.name+".log")
			res, err := r.Run(context.Background(), tt.command, logDest, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			assert.Equal(t, tt.wantOut, res.Output)
		})
	}

	// One connection serves every run
	assert.Equal(t, 1, srv.Accepted())
}

func TestRemote_Run_Timeout(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Hang)
	r := newTestRemote(t, srv)

	res, err := r.Run(context.Background(), "sleep 1000", "/tmp/unused.log", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ExitTimeout, res.ExitCode)
}

func TestWrapRemote_TimeoutKillsProcessGroup(t *testing.T) {
	t.Parallel()
	requireProcessTools(t)

	dir := t.TempDir()
	logDest := filepath.Join(dir, "job.log")
	childFile := filepath.Join(dir, "child.pid")
	line := WrapRemote(fmt.Sprintf("sleep 300 & echo $! > %s; wait", childFile), logDest, time.Second)

	err := exec.Command("bash", "-c", line).Run()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, exitTimeoutUtility, exitErr.ExitCode())

	child := readPID(t, childFile)
	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 20*time.Millisecond,
		"background child of the job should die with it")
	assert.NoFileExists(t, PGIDPath(logDest))
}

func TestRemote_Run_TimeoutKillsBackgroundChildren(t *testing.T) {
	t.Parallel()
	requireProcessTools(t)

	srv := sshtest.New(t, sshtest.Shell)
	r := newTestRemote(t, srv)
	dir := t.TempDir()
	childFile := filepath.Join(dir, "child.pid")

	res, err := r.Run(context.Background(),
		fmt.Sprintf("sleep 300 & echo $! > %s; wait", childFile),
		filepath.Join(dir, "job.log"), 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, ExitTimeout, res.ExitCode)

	child := readPID(t, childFile)
	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 20*time.Millisecond,
		"timed-out job must not keep running on the host")
}

func TestRemote_Run_CancelKillsJob(t *testing.T) {
	t.Parallel()
	requireProcessTools(t)

	srv := sshtest.New(t, sshtest.Shell)
	r := newTestRemote(t, srv)
	dir := t.TempDir()
	childFile := filepath.Join(dir, "child.pid")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if raw, err := os.ReadFile(childFile); err == nil && len(raw) > 0 {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	_, err := r.Run(ctx, fmt.Sprintf("sleep 300 & echo $! > %s; wait", childFile),
		filepath.Join(dir, "job.log"), time.Minute)
	require.ErrorIs(t, err, context.Canceled)

	child := readPID(t, childFile)
	assert.Eventually(t, func() bool { return !processAlive(child) }, 5*time.Second, 20*time.Millisecond)
}

func TestRemote_Run_SessionDroppedWithoutStatus(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Reply("partial", sshtest.NoExitStatus))
	r := newTestRemote(t, srv)

	_, err := r.Run(context.Background(), "echo hi", "/tmp/unused.log", time.Minute)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestRemote_Run_Unreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	r, err := NewRemote(RemoteConfig{
		Host:           "127.0.0.1",
		Port:           port,
		User:           "root",
		Password:       "pw",
		ConnectTimeout: time.Second,
	}, discardLogger())
	require.NoError(t, err)

	_, err = r.Run(context.Background(), "echo hi", "/tmp/unused.log", time.Minute)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestRemote_BadPassword(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Shell)
	r, err := NewRemote(RemoteConfig{
		Host:     srv.Host,
		Port:     srv.Port,
		User:     srv.User,
		Password: "wrong",
	}, discardLogger())
	require.NoError(t, err)

	err = r.Ping(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestRemote_ReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Shell)
	r := newTestRemote(t, srv)
	ctx := context.Background()

	require.NoError(t, r.Ping(ctx))
	assert.Equal(t, 1, srv.Accepted())

	srv.DropConnections()

	require.Eventually(t, func() bool {
		return r.Ping(ctx) == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(t, srv.Accepted(), 2)

	require.NoError(t, r.Reconnect(ctx))
	assert.GreaterOrEqual(t, srv.Accepted(), 3)
}

func TestRemote_Ping(t *testing.T) {
	t.Parallel()

	srv := sshtest.New(t, sshtest.Reply("nope\n", 0))
	r := newTestRemote(t, srv)

	err := r.Ping(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, []string{"echo 'SSH OK'"}, srv.Commands())
}

func TestNewRemote_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRemote(RemoteConfig{User: "root", Password: "pw"}, discardLogger())
	assert.Error(t, err)

	_, err = NewRemote(RemoteConfig{Host: "gpu-host", User: "root"}, discardLogger())
	assert.Error(t, err)

	_, err = NewRemote(RemoteConfig{Host: "gpu-host", User: "root", KeyFile: filepath.Join(t.TempDir(), "missing")}, discardLogger())
	assert.Error(t, err)

	r, err := NewRemote(RemoteConfig{Host: "gpu-host", User: "root", Password: "pw"}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "gpu-host:22", r.Addr())
	assert.Equal(t, "remote", r.Mode())
}
