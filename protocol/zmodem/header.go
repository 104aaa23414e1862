package zmodem

import (
	"context"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/wire"
)

// recvHeader reads one ZPAD(-ZPAD)-ZDLE-prefixed frame header in
// whichever of ZBIN/ZHEX/ZBIN32 encoding the sender chose, matching the
// teacher's zgethdr() dispatch on the byte following ZDLE. Leading
// garbage bytes before the first ZPAD are discarded, matching lrzsz's
// tolerance for line noise ahead of a frame.
func recvHeader(ctx context.Context, ch wire.Channel, cfg *Config) (int, framing.Header, error) {
	cr := chanReader{ctx: ctx, ch: ch}

	for {
		b, err := ch.ReadByte(ctx)
		if err != nil {
			return 0, framing.Header{}, err
		}
		if b != framing.ZPAD {
			continue
		}
		// Consume any run of additional ZPADs, then the mandatory ZDLE.
		for {
			b, err = ch.ReadByte(ctx)
			if err != nil {
				return 0, framing.Header{}, err
			}
			if b != framing.ZPAD {
				break
			}
		}
		if b != framing.ZDLE {
			continue
		}
		b, err = ch.ReadByte(ctx)
		if err != nil {
			return 0, framing.Header{}, err
		}
		switch b {
		case framing.ZBIN:
			frameType, hdr, err := framing.RecvBinaryHeader(framing.NewUnescaper(cr))
			return frameType, hdr, err
		case framing.ZBIN32:
			frameType, hdr, err := framing.RecvBinaryHeader32(framing.NewUnescaper(cr))
			return frameType, hdr, err
		case framing.ZHEX:
			return framing.RecvHexHeader(cr)
		default:
			continue
		}
	}
}
