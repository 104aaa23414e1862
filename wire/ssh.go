package wire

import (
	"context"
	"io"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshReader adapts an SSH session's stdout pipe to ReaderWithDeadline.
// SSH pipes have no deadline support of their own, so SetReadDeadline is
// a no-op here, matching the teacher's zmodem/ssh.go sshReader. A read
// blocks until data arrives or the pipe closes; the serialChannel's
// context check runs only before each read, so it does not end a read
// that is already blocked.
type sshReader struct {
	r io.Reader
}

func (s *sshReader) Read(p []byte) (int, error)            { return s.r.Read(p) }
func (s *sshReader) SetReadDeadline(t time.Time) error      { return nil }

// SSHChannel wraps an *ssh.Session's stdin/stdout as a Channel, ported
// from the teacher's SSHSession (zmodem/ssh.go), generalized from a
// Zmodem-only wrapper to the protocol-agnostic wire.Channel interface so
// any of this module's four engines can run over an SSH-tunneled shell.
type SSHChannel struct {
	inner   Channel
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

// NewSSHChannel opens stdin/stdout/stderr pipes on sess and wraps them
// in a Channel. timeoutTenths is passed to the underlying serialChannel;
// because SetReadDeadline is a no-op over SSH pipes it does not bound a
// read, and ctx is checked only between reads.
func NewSSHChannel(sess *ssh.Session, timeoutTenths int) (*SSHChannel, error) {
	stdin, err := sess.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	inner := NewSerialChannel(&sshReader{r: stdout}, stdin, timeoutTenths)
	return &SSHChannel{inner: inner, session: sess, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (c *SSHChannel) ReadByte(ctx context.Context) (byte, error)   { return c.inner.ReadByte(ctx) }
func (c *SSHChannel) Write(ctx context.Context, p []byte) (int, error) { return c.inner.Write(ctx, p) }
func (c *SSHChannel) WriteByte(ctx context.Context, b byte) error   { return c.inner.WriteByte(ctx, b) }
func (c *SSHChannel) Flush() error                                  { return c.inner.Flush() }
func (c *SSHChannel) Drain(ctx context.Context) int                 { return c.inner.Drain(ctx) }

// Stderr exposes the SSH session's stderr stream for a caller to relay,
// matching the teacher's SSHSession.Stderr().
func (c *SSHChannel) Stderr() io.Reader { return c.stderr }

// Close closes stdin and the underlying SSH session, matching the
// teacher's SSHSession.Close() first-error-wins behavior.
func (c *SSHChannel) Close() error {
	err := c.stdin.Close()
	if sessErr := c.session.Close(); err == nil {
		err = sessErr
	}
	return err
}
