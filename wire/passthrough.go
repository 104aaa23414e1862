package wire

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// zrinitSignature is the byte sequence an interactive terminal session
// sees right before a Zmodem batch starts: two ZPAD bytes, ZDLE, ZHEX,
// then the hex-encoded frame type. Frame type 1 is ZRINIT — the only
// frame that should trigger automatic handoff, since it means the peer
// just ran the equivalent of `gorz` and is waiting for a sender.
var zrinitSignature = []byte{'*', '*', 0x18, 'B', '0', '1'}

// PassthroughDetector wraps an interactive terminal's output stream,
// passing bytes through untouched until it spots a Zmodem ZRINIT frame,
// at which point Read starts returning io.EOF and Handoff exposes a
// Channel over the same stream (replaying whatever signature bytes it
// already consumed) so the caller can drive transfer.New instead.
//
// Ported from the teacher's TerminalIO (zmodem/terminal.go), stripped of
// its session-role business logic: deciding who sends and who receives,
// and actually running the transfer, now belongs to the protocol/zmodem
// engine and the transfer façade, not to the terminal layer.
type PassthroughDetector struct {
	reader io.Reader
	writer io.Writer

	mu        sync.Mutex
	detected  bool
	pending   bytes.Buffer // bytes read but not yet confirmed passthrough-safe
	carryover []byte       // signature bytes buffered for Handoff
}

// NewPassthroughDetector wraps reader/writer, typically the stdout/stdin
// pair of an SSH session carrying an interactive shell.
func NewPassthroughDetector(reader io.Reader, writer io.Writer) *PassthroughDetector {
	return &PassthroughDetector{reader: reader, writer: writer}
}

// Read implements io.Reader, passing terminal bytes through unchanged
// until a ZRINIT signature is found, after which it returns io.EOF.
func (d *PassthroughDetector) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.detected {
		return 0, io.EOF
	}

	keepBack := len(zrinitSignature) - 1
	for {
		window := d.pending.Bytes()

		if idx := bytes.Index(window, zrinitSignature); idx >= 0 {
			d.detected = true
			d.carryover = append([]byte(nil), window[idx:]...)
			n := copy(p, window[:idx])
			d.pending.Next(n)
			return n, nil
		}

		// Hold back the last len(signature)-1 bytes in case the
		// signature straddles this chunk and the next one; release the
		// rest as confirmed passthrough-safe.
		if len(window) > keepBack {
			n := copy(p, window[:len(window)-keepBack])
			d.pending.Next(n)
			return n, nil
		}

		var buf [4096]byte
		n, err := d.reader.Read(buf[:])
		if n > 0 {
			d.pending.Write(buf[:n])
			continue
		}
		if err != nil {
			if d.pending.Len() > 0 {
				// Too short to ever match; flush it before surfacing
				// the underlying error on the next call.
				n := copy(p, d.pending.Bytes())
				d.pending.Next(n)
				return n, nil
			}
			return 0, err
		}
	}
}

// Detected reports whether the ZRINIT signature has been found yet.
func (d *PassthroughDetector) Detected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected
}

// Handoff returns a Channel over the underlying stream, replaying
// whatever signature bytes Read already consumed ahead of unread data.
// The remote already sent ZRINIT, so from this side's perspective it is
// about to drive transfer.New(session.Zmodem, ..., session.Upload, ...).
// It must only be called after Detected reports true.
func (d *PassthroughDetector) Handoff(timeoutTenths int) Channel {
	d.mu.Lock()
	prefix := d.carryover
	d.mu.Unlock()

	reader := &prefixDeadlineReader{
		PrefixReader: PrefixReader{Prefix: prefix, Reader: d.reader},
		underlying:   d.reader,
	}
	return NewSerialChannel(reader, d.writer, timeoutTenths)
}

// prefixDeadlineReader adds SetReadDeadline to PrefixReader by forwarding
// to the underlying reader when it supports deadlines, so Handoff's
// result still satisfies ReaderWithDeadline once the prefix is drained.
type prefixDeadlineReader struct {
	PrefixReader
	underlying io.Reader
}

func (p *prefixDeadlineReader) SetReadDeadline(t time.Time) error {
	if setter, ok := p.underlying.(ReaderWithDeadline); ok {
		return setter.SetReadDeadline(t)
	}
	return nil
}
