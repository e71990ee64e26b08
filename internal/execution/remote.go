package execution

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ping15/ShortPlayGenerator/internal/command"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// RemoteConfig describes the SSH host that runs generation jobs.
type RemoteConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KnownHostsFile string
	ConnectTimeout time.Duration
}

// Remote runs commands over an SSH session to a fixed host. The client is
// created lazily, health-checked before each use and replaced when its
// transport is gone.
type Remote struct {
	cfg          RemoteConfig
	clientConfig *ssh.ClientConfig
	logger       *slog.Logger

	// killTimeout bounds the session that kills a timed-out or abandoned job
	killTimeout time.Duration

	mu     sync.Mutex
	client *ssh.Client
}

// exitTimeoutUtility is what coreutils timeout exits with once it fired.
const exitTimeoutUtility = 124

// remoteKillAfter is how long the remote timeout waits after SIGTERM before
// it sends SIGKILL to the job's process group.
const remoteKillAfter = 10 * time.Second

var _ Backend = (*Remote)(nil)

// NewRemote validates cfg and prepares the SSH client configuration. It does
// not connect.
func NewRemote(cfg RemoteConfig, logger *slog.Logger) (*Remote, error) {
	if cfg.Host == "" {
		return nil, errors.New("remote host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	logger = logger.With("component", "remote_backend", "host", cfg.Host, "port", cfg.Port)

	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		password := cfg.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(auth) == 0 {
		return nil, errors.New("remote backend needs a password or key file")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		callback, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = callback
	} else {
		logger.Warn("no known_hosts file configured, host key is not verified")
	}

	return &Remote{
		cfg: cfg,
		clientConfig: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.ConnectTimeout,
		},
		logger:      logger,
		killTimeout: 3 * time.Second,
	}, nil
}

// Mode implements Backend
func (r *Remote) Mode() string { return "remote" }

// Addr returns host:port of the remote host.
func (r *Remote) Addr() string {
	return net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))
}

// Client returns a live SSH client, reconnecting if the current one no
// longer answers keepalives.
func (r *Remote) Client(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		if _, _, err := r.client.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return r.client, nil
		}
		r.logger.Warn("ssh transport is no longer active, reconnecting")
		r.closeLocked()
	}

	return r.connectLocked(ctx)
}

// Reconnect drops the current session and establishes a new one.
func (r *Remote) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	_, err := r.connectLocked(ctx)
	return err
}

// Ping verifies that commands can be run on the remote host.
func (r *Remote) Ping(ctx context.Context) error {
	res, err := r.exec(ctx, "echo 'SSH OK'", r.cfg.ConnectTimeout, "")
	if err != nil {
		return err
	}
	if !res.Success() || !strings.Contains(res.Output, "SSH OK") {
		return fmt.Errorf("%w: unexpected ping response (%s): %q", ErrConnection, res.Reason(), res.Output)
	}
	return nil
}

// Close releases the SSH client.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeLocked()
	return nil
}

// Run implements Backend. The command travels base64-encoded and is decoded
// and evaluated remotely, so no quoting survives the transport. The job runs
// in its own process group, which is killed as a whole on timeout or when
// ctx is cancelled.
func (r *Remote) Run(ctx context.Context, cmd, logDest string, timeout time.Duration) (Result, error) {
	started := time.Now()
	timeout = effectiveTimeout(timeout)

	res, err := r.exec(ctx, WrapRemote(cmd, logDest, timeout), timeout, PGIDPath(logDest))
	if err != nil {
		return Result{}, err
	}
	if res.ExitCode == exitTimeoutUtility {
		res.ExitCode = ExitTimeout
	}

	r.logger.Debug("remote command finished",
		"exit_code", res.ExitCode,
		"log", logDest,
		"elapsed", time.Since(started))
	return res, nil
}

// PGIDPath is where the remote wrapper records the job's process group id.
func PGIDPath(logDest string) string {
	return logDest + ".pgid"
}

// WrapRemote renders the remote shell line for cmd. The decoded command runs
// under coreutils timeout, which puts it in a process group of its own and
// kills that group once timeout elapses even if the SSH connection is gone.
// The group id is written next to the log so the client can kill the job
// early. Output goes to logDest and the tail of that log is echoed back.
func WrapRemote(cmd, logDest string, timeout time.Duration) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(cmd))
	log := command.Quote(logDest)
	pgid := command.Quote(PGIDPath(logDest))
	secs := int64(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}

	return fmt.Sprintf(`timeout -k %ds %ds bash -c 'eval "$(echo %s | base64 -d)"' > %s 2>&1 & pid=$!; echo $pid > %s; wait $pid; rc=$?; rm -f %s; tail -c %d %s; exit $rc`,
		int64(remoteKillAfter.Seconds()), secs, encoded, log, pgid, pgid, OutputTailBytes, log)
}

// killLine kills the process group recorded in pgidFile.
func killLine(pgidFile string) string {
	q := command.Quote(pgidFile)
	return fmt.Sprintf(`pgid=$(cat %s 2>/dev/null) && [ -n "$pgid" ] && kill -KILL -- -"$pgid"; rm -f %s`, q, q)
}

func (r *Remote) exec(ctx context.Context, line string, timeout time.Duration, pgidFile string) (Result, error) {
	client, err := r.Client(ctx)
	if err != nil {
		return Result{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		r.invalidate(client)
		return Result{}, fmt.Errorf("%w: failed to open session: %w", ErrConnection, err)
	}
	defer func() { _ = session.Close() }()

	out := &tailBuffer{limit: OutputTailBytes}
	session.Stdout = out
	session.Stderr = out

	done := make(chan error, 1)
	go func() { done <- session.Run(line) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var runErr error
	select {
	case runErr = <-done:
	case <-timer.C:
		r.logger.Warn("remote command timed out", "timeout", timeout)
		r.kill(client, session, pgidFile)
		return Result{ExitCode: ExitTimeout, Output: out.String()}, nil
	case <-ctx.Done():
		r.logger.Warn("remote command cancelled", "error", context.Cause(ctx))
		r.kill(client, session, pgidFile)
		return Result{}, ctx.Err()
	}

	res := Result{Output: out.String()}
	if runErr == nil {
		return res, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}

	// Exit status missing or transport error: the session died under us
	r.invalidate(client)
	return Result{}, fmt.Errorf("%w: %w", ErrConnection, runErr)
}

// kill stops a running job. Signalling the session only reaches the top-level
// process on a real sshd, so the job's process group is killed through a
// second session. Both are best effort and bounded by killTimeout.
func (r *Remote) kill(client *ssh.Client, session *ssh.Session, pgidFile string) {
	_ = session.Signal(ssh.SIGKILL)
	if pgidFile == "" {
		return
	}

	killer, err := client.NewSession()
	if err != nil {
		r.logger.Warn("failed to open session to kill remote job", "error", err)
		return
	}
	defer func() { _ = killer.Close() }()

	done := make(chan error, 1)
	go func() { done <- killer.Run(killLine(pgidFile)) }()

	select {
	case err := <-done:
		if err != nil {
			r.logger.Warn("failed to kill remote job", "error", err)
		}
	case <-time.After(r.killTimeout):
		r.logger.Warn("timed out killing remote job", "timeout", r.killTimeout)
	}
}

func (r *Remote) connectLocked(ctx context.Context) (*ssh.Client, error) {
	addr := r.Addr()
	dialer := net.Dialer{Timeout: r.cfg.ConnectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", ErrConnection, addr, err)
	}

	// Bound the handshake; cleared once the client is up
	_ = conn.SetDeadline(time.Now().Add(r.cfg.ConnectTimeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, r.clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ssh handshake with %s failed: %w", ErrConnection, addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	r.client = ssh.NewClient(c, chans, reqs)
	r.logger.Info("ssh session established")
	return r.client, nil
}

func (r *Remote) invalidate(client *ssh.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == client {
		r.closeLocked()
	}
}

func (r *Remote) closeLocked() {
	if r.client == nil {
		return
	}
	if err := r.client.Close(); err != nil {
		r.logger.Debug("error closing ssh client", "error", err)
	}
	r.client = nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
