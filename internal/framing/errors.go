package framing

import "errors"

// Errors returned by the codec layer. Engines wrap these into the
// session-level taxonomy (session.TransferError) rather than exposing
// them directly.
var (
	ErrBadEscapeSequence = errors.New("framing: invalid ZDLE escape sequence")
	ErrBadCRC             = errors.New("framing: CRC check failed")
	ErrBadHeaderByte       = errors.New("framing: invalid header byte")
	ErrSubpacketTooLong    = errors.New("framing: data subpacket too long")
	ErrBadBlockNumber      = errors.New("framing: block number mismatch")
	ErrBadChecksum         = errors.New("framing: checksum mismatch")
	ErrShortBlock          = errors.New("framing: block shorter than declared size")
)
