package wire

import (
	"context"
	"io"
	"time"
)

// ReaderWithDeadline is satisfied by any reader that can be given a hard
// read deadline, matching the teacher's ReaderWithTimeout (zmodem/io.go).
// Real serial ports, ptys, and net.Conn all implement this.
type ReaderWithDeadline interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// serialChannel is a buffered, deadline-driven Channel over a local
// byte stream, ported from the teacher's zmodemIO (zmodem/io.go), which
// itself mirrors zreadline.c's READLINE_PF() single-byte-with-timeout
// convention.
type serialChannel struct {
	reader ReaderWithDeadline
	writer io.Writer

	rbuf  []byte
	rpos  int
	rleft int

	timeoutTenths int
}

// NewSerialChannel wraps reader/writer (typically a raw-mode local
// terminal or pty put in raw mode via golang.org/x/term, or a plain
// net.Conn for a TCP-tunneled serial link) as a Channel. timeoutTenths
// is the per-read timeout in tenths of a second, 0 meaning no deadline.
func NewSerialChannel(reader ReaderWithDeadline, writer io.Writer, timeoutTenths int) Channel {
	return &serialChannel{
		reader:        reader,
		writer:        writer,
		rbuf:          make([]byte, 1024),
		timeoutTenths: timeoutTenths,
	}
}

// SetTimeout implements TimeoutSetter.
func (c *serialChannel) SetTimeout(tenths int) { c.timeoutTenths = tenths }

func (c *serialChannel) ReadByte(ctx context.Context) (byte, error) {
	if c.rleft > 0 {
		c.rleft--
		b := c.rbuf[c.rpos]
		c.rpos++
		return b, nil
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if c.timeoutTenths > 0 {
		deadline := time.Now().Add(time.Duration(c.timeoutTenths) * 100 * time.Millisecond)
		if err := c.reader.SetReadDeadline(deadline); err != nil {
			return 0, err
		}
	}

	n, err := c.reader.Read(c.rbuf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}

	c.rpos = 0
	c.rleft = n - 1
	b := c.rbuf[0]
	if c.rleft > 0 {
		c.rpos = 1
	}
	return b, nil
}

func (c *serialChannel) Write(ctx context.Context, p []byte) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	return c.writer.Write(p)
}

func (c *serialChannel) WriteByte(ctx context.Context, b byte) error {
	_, err := c.Write(ctx, []byte{b})
	return err
}

func (c *serialChannel) Flush() error {
	if f, ok := c.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Drain discards buffered input plus whatever arrives within a short
// grace window, matching purgeline()'s role in resynchronizing after a
// framing error.
func (c *serialChannel) Drain(ctx context.Context) int {
	discarded := c.rleft
	c.rleft = 0
	c.rpos = 0

	if setter, ok := c.reader.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = setter.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		var buf [256]byte
		for {
			n, err := c.reader.Read(buf[:])
			discarded += n
			if err != nil || n == 0 {
				break
			}
		}
	}
	return discarded
}

func (c *serialChannel) Close() error {
	if closer, ok := c.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// PrefixReader prepends buffered bytes ahead of an underlying reader,
// promoted from the teacher's private bufferedReader helper
// (zmodem/terminal.go) so both wire.NewSerialChannel callers and any
// future protocol-sniffing passthrough can reuse it.
type PrefixReader struct {
	Prefix []byte
	offset int
	Reader io.Reader
}

func (p *PrefixReader) Read(buf []byte) (int, error) {
	if p.offset < len(p.Prefix) {
		n := copy(buf, p.Prefix[p.offset:])
		p.offset += n
		return n, nil
	}
	return p.Reader.Read(buf)
}
