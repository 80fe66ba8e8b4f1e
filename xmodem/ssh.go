package xmodem

import (
	"context"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SSHSession runs XMODEM transfers against lrzsz's rx/sx on a remote host.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	stdin      io.WriteCloser
	stdout     io.Reader
	stderr     io.Reader
}

// sshPipe joins the remote command's stdout and stdin into one transport.
type sshPipe struct {
	io.Reader
	io.Writer
}

// NewSSHSession creates an XMODEM session from an SSH session. The SSH
// session must not have started a command yet.
func NewSSHSession(sshSession *ssh.Session, opts ...Option) (*SSHSession, error) {
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderr, err := sshSession.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	session := NewSession(sshPipe{Reader: stdout, Writer: stdin}, opts...)

	return &SSHSession{
		Session:    session,
		sshSession: sshSession,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
	}, nil
}

// SendFile uploads file as remoteName by running `rx remoteName` remotely.
func (s *SSHSession) SendFile(ctx context.Context, remoteName string, file io.Reader) error {
	return s.run(ctx, "rx "+shellQuote(remoteName), func() error {
		return s.Session.SendFile(ctx, file)
	})
}

// ReceiveFile downloads remoteName by running `sx remoteName` remotely and
// writes the padded blocks to w.
func (s *SSHSession) ReceiveFile(ctx context.Context, remoteName string, w io.Writer) (int64, error) {
	var written int64
	err := s.run(ctx, "sx "+shellQuote(remoteName), func() error {
		n, err := s.Session.ReceiveFile(ctx, w)
		written = n
		return err
	})
	return written, err
}

// run starts cmd remotely, performs the transfer, then waits for the remote
// command to exit.
func (s *SSHSession) run(ctx context.Context, cmd string, transfer func() error) error {
	if ctx == nil {
		ctx = s.ctx
	}

	if err := s.sshSession.Start(cmd); err != nil {
		return err
	}

	// Wait for command to finish in background
	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	err := transfer()

	// Close stdin to signal completion
	s.stdin.Close()

	select {
	case err2 := <-done:
		if err == nil {
			err = err2
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return err
}

// Close closes the SSH session and cleans up resources.
func (s *SSHSession) Close() error {
	var first error

	if s.stdin != nil {
		if err := s.stdin.Close(); err != nil && err != io.EOF {
			first = err
		}
	}

	if s.sshSession != nil {
		if err := s.sshSession.Close(); err != nil && err != io.EOF && first == nil {
			first = err
		}
	}

	return first
}

// Stderr returns the stderr reader for monitoring remote command output.
func (s *SSHSession) Stderr() io.Reader {
	return s.stderr
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
