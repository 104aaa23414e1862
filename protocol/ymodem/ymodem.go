// Package ymodem implements the Ymodem batch file-transfer engine:
// Ymodem Standard and Ymodem-G, both layered on the same CRC-16 block
// transport as protocol/xmodem's CRC flavor, plus the block-0
// file-metadata frame and the null-filename end-of-batch block that
// distinguish Ymodem from plain Xmodem. Grounded on spec.md §4.4 and on
// the teacher's Zmodem sender/receiver retry control flow.
package ymodem

import "github.com/dlamine/goxfer/session"

// Flavor selects Ymodem's ACK/streaming discipline.
type Flavor session.Flavor

const (
	// Standard ACKs every data block, same as Xmodem-CRC.
	Standard Flavor = "standard"
	// G streams data blocks without waiting for an ACK, aborting the
	// whole file on the first CRC error instead of retrying it — this is
	// spec.md §9's resolved Open Question for Y_G mid-transfer errors.
	G Flavor = "g"
)

// ValidFlavors lists every Flavor this engine accepts.
func ValidFlavors() []Flavor { return []Flavor{Standard, G} }

func streaming(f Flavor) bool { return f == G }

const blockSize = 1024

// Config tunes the Ymodem engine.
type Config struct {
	Flavor     Flavor
	MaxRetries int
}

// DefaultConfig returns Standard with the shared retry budget.
func DefaultConfig() *Config {
	return &Config{Flavor: Standard, MaxRetries: 10}
}
