package kermit

import (
	"context"

	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// readPacket reads one Mark-prefixed packet off ch, skipping any noise
// bytes ahead of the Mark, matching Kermit's tolerant packet-start
// detection.
func readPacket(ctx context.Context, ch wire.Channel) (Packet, error) {
	for {
		b, err := ch.ReadByte(ctx)
		if err != nil {
			return Packet{}, err
		}
		if b != Mark {
			continue
		}
		lenByte, err := ch.ReadByte(ctx)
		if err != nil {
			return Packet{}, err
		}
		n := PacketLen(lenByte)
		if n <= 0 || n > 256 {
			return Packet{}, session.NewError(session.ErrProtocolKind, "implausible packet length")
		}
		buf := make([]byte, n+1)
		buf[0] = lenByte
		for i := 1; i < len(buf); i++ {
			b, err := ch.ReadByte(ctx)
			if err != nil {
				return Packet{}, err
			}
			buf[i] = b
		}
		return Decode(buf)
	}
}
