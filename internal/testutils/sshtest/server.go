// Package sshtest runs an in-process SSH server for exercising the remote
// execution backend and the SFTP result locator.
package sshtest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// NoExitStatus makes the server close the session without reporting an exit
// status, which clients see as a dropped session.
const NoExitStatus = -1 << 31

// Handler runs an exec request. ctx is cancelled when the client signals or
// closes the session. The returned value is sent as the exit status.
type Handler func(ctx context.Context, command string, out io.Writer) int

// Server is a password-authenticated SSH server bound to localhost.
type Server struct {
	Host     string
	Port     int
	User     string
	Password string

	handler  Handler
	sftp     bool
	config   *ssh.ServerConfig
	listener net.Listener

	mu       sync.Mutex
	conns    []net.Conn
	accepted int
	commands []string
}

// Option configures a Server.
type Option func(*Server)

// WithSFTP enables the sftp subsystem, serving the local filesystem.
func WithSFTP() Option {
	return func(s *Server) { s.sftp = true }
}

// New starts a server that answers exec requests with handler. It is shut
// down when the test ends.
func New(t testing.TB, handler Handler, opts ...Option) *Server {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err, "failed to generate host key")
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err, "failed to create host key signer")

	s := &Server{
		User:     "root",
		Password: "test-password",
		handler:  handler,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if c.User() == s.User && string(password) == s.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	s.config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen")
	s.listener = ln

	addr := ln.Addr().(*net.TCPAddr)
	s.Host = addr.IP.String()
	s.Port = addr.Port

	go s.serve()
	t.Cleanup(s.Close)

	return s
}

// Close stops accepting connections and drops the open ones.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.DropConnections()
}

// DropConnections closes every open connection at the TCP level.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Commands returns every exec request received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepted++
		s.mu.Unlock()

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() { _ = sconn.Close() }()

	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			go func() {
				code := s.handler(ctx, payload.Command, ch)
				if code != NoExitStatus {
					status := struct{ Status uint32 }{uint32(code)}
					_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&status))
				}
				_ = ch.Close()
			}()

		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" || !s.sftp {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			go func() {
				defer func() { _ = ch.Close() }()
				server, err := sftp.NewServer(ch)
				if err != nil {
					return
				}
				_ = server.Serve()
				_ = server.Close()
			}()

		case "signal":
			cancel()
			if req.WantReply {
				_ = req.Reply(true, nil)
			}

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// Shell runs each command through the local bash, mimicking a real host.
func Shell(ctx context.Context, command string, out io.Writer) int {
	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return 137
	}
	_, _ = io.WriteString(out, err.Error())
	return 127
}

// Reply answers every command with fixed output and exit code.
func Reply(output string, code int) Handler {
	return func(_ context.Context, _ string, out io.Writer) int {
		_, _ = io.WriteString(out, output)
		return code
	}
}

// Hang blocks until the session is cancelled.
func Hang(ctx context.Context, _ string, _ io.Writer) int {
	<-ctx.Done()
	return 143
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
