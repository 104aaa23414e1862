// Package xmodem implements the Xmodem family of engines (Vanilla,
// Relaxed, CRC, 1K, and 1K-G), grounded on the retry/timeout control
// flow the teacher's Zmodem sender/receiver already establish
// (zmodem/sender.go, zmodem/receiver.go) and on spec.md §4.3.
package xmodem

import (
	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
)

// Flavor selects the block trailer/size and retry semantics.
type Flavor session.Flavor

const (
	Vanilla Flavor = "vanilla" // 128-byte blocks, 8-bit checksum
	Relaxed Flavor = "relaxed" // handled exactly as Vanilla; no separate timeout
	CRC     Flavor = "crc"     // 128-byte blocks, CRC-16 trailer
	OneK    Flavor = "1k"      // 1024-byte blocks, CRC-16 trailer
	OneKG   Flavor = "1k-g"    // 1024-byte blocks, streaming, no per-block ACK
)

// ValidFlavors lists every Flavor this engine accepts.
func ValidFlavors() []Flavor { return []Flavor{Vanilla, Relaxed, CRC, OneK, OneKG} }

func blockSize(f Flavor) int {
	if f == OneK || f == OneKG {
		return 1024
	}
	return 128
}

func usesCRC(f Flavor) bool {
	return f != Vanilla && f != Relaxed
}

func streaming(f Flavor) bool { return f == OneKG }

// Config tunes the Xmodem engine, per spec.md §9's Open Question:
// receiving the first EOT must be NAK'd (the sender resends EOT once
// more before the transfer is considered acknowledged) — this is not
// configurable, it is the documented wire behavior every Xmodem sender
// and receiver in the wild relies on.
type Config struct {
	Flavor     Flavor
	MaxRetries int
}

// DefaultConfig returns Vanilla with the shared retry budget.
func DefaultConfig() *Config {
	return &Config{Flavor: Vanilla, MaxRetries: 10}
}

const (
	poll = framing.NAK // vanilla/relaxed poll with NAK; CRC flavors poll with 'C', 1k-g with 'G'
)
