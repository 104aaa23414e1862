// Package wire provides the byte-channel abstraction every protocol
// engine reads from and writes to, generalizing the teacher's
// zmodem.ReaderWithTimeout (zmodem/io.go) into a protocol-agnostic
// Channel with context-based cancellation per spec.md §5.
package wire

import (
	"context"
	"io"
)

// Channel is a paired, timeout-aware byte stream. Every blocking method
// takes a context; serialChannel checks it before each underlying read or
// write, so a cancel request takes effect at the next call. A read already
// blocked in the underlying reader returns only when data arrives or the
// read deadline passes.
type Channel interface {
	// ReadByte blocks for at most the channel's configured timeout (with
	// no limit when that timeout is 0), returning the underlying reader's
	// deadline error on expiry.
	ReadByte(ctx context.Context) (byte, error)

	// Write writes p in full.
	Write(ctx context.Context, p []byte) (int, error)

	// WriteByte writes a single byte.
	WriteByte(ctx context.Context, b byte) error

	// Flush pushes any buffered output.
	Flush() error

	// Drain discards any input already buffered or immediately
	// available, used when resynchronizing after a protocol error.
	Drain(ctx context.Context) int

	io.Closer
}

// SetTimeout changes the read timeout, in tenths of a second, matching
// the unit convention the teacher's Config.Timeout already uses.
type TimeoutSetter interface {
	SetTimeout(tenthsOfSecond int)
}
