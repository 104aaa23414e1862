// Package zmodem implements the Zmodem file-transfer engine: streaming
// ZDLE-escaped frames negotiated over ZRQINIT/ZRINIT, file metadata
// carried in ZFILE, data streamed in ZDATA subpackets terminated by
// ZEOF, and a batch ended by ZFIN. Grounded on the teacher's
// zmodem/sender.go, zmodem/receiver.go, and zmodem/zmodem.go, adapted to
// drive a shared *session.Session instead of a private Zmodem-only
// struct, and to use internal/framing's header/escape/CRC codec instead
// of a private copy.
package zmodem

// Frame types, ported verbatim from the teacher's zmodem/zmodem.go so
// wire captures stay byte-identical with lrzsz.
const (
	ZRQINIT = iota
	ZRINIT
	ZSINIT
	ZACK
	ZFILE
	ZSKIP
	ZNAK
	ZABORT
	ZFIN
	ZRPOS
	ZDATA
	ZEOF
	ZFERR
	ZCRC
	ZCHALLENGE
	ZCOMPL
	ZCAN
	ZFREECNT
	ZCOMMAND
	ZSTDERR
)

// Bit masks for the ZRINIT flags byte (header[ZF0]).
const (
	CANFDX  = 0x01
	CANOVIO = 0x02
	CANBRK  = 0x04
	CANCRY  = 0x08
	CANLZW  = 0x10
	CANFC32 = 0x20
	ESCCTL  = 0x40
	ESC8    = 0x80
)

// frameTypeNames mirrors the teacher's frametypes table for debug logging.
var frameTypeNames = []string{
	"ZRQINIT", "ZRINIT", "ZSINIT", "ZACK", "ZFILE", "ZSKIP", "ZNAK",
	"ZABORT", "ZFIN", "ZRPOS", "ZDATA", "ZEOF", "ZFERR", "ZCRC",
	"ZCHALLENGE", "ZCOMPL", "ZCAN", "ZFREECNT", "ZCOMMAND", "ZSTDERR",
}

// FrameTypeName returns a human-readable name for frameType, or
// "UNKNOWN" if it is out of range.
func FrameTypeName(frameType int) string {
	if frameType < 0 || frameType >= len(frameTypeNames) {
		return "UNKNOWN"
	}
	return frameTypeNames[frameType]
}

// Config tunes the Zmodem engine, matching the teacher's zmodem.Config
// fields that still apply once Session/Sender/Receiver drive a shared
// session.Session instead of a private one.
type Config struct {
	Use32BitCRC   bool
	EscapeControl bool
	TurboEscape   bool
	Timeout       int // tenths of a second
	BlockSize     int
	MaxBlockSize  int
	ZNulls        int
	MaxRetries    int // spec.md §9's resolved Open Question: bounded retry budget
}

// DefaultConfig returns the teacher's defaults, plus the retry budget
// the distilled spec left unspecified.
func DefaultConfig() *Config {
	return &Config{
		Use32BitCRC:  true,
		Timeout:      100,
		BlockSize:    1024,
		MaxBlockSize: 8 * 1024,
		ZNulls:       0,
		MaxRetries:   10,
	}
}
