// Xmodem has no file-metadata frame (that is Ymodem's job), so a
// Receiver always downloads into a single, caller-supplied LocalFile.
package xmodem

import (
	"context"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// Receiver implements the receiving side of the Xmodem state machine.
type Receiver struct {
	cfg *Config
	ch  wire.Channel
	sn  *session.Session
}

// NewReceiver builds a Receiver for sess, driving traffic over ch.
func NewReceiver(cfg *Config, ch wire.Channel, sn *session.Session) *Receiver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Receiver{cfg: cfg, ch: ch, sn: sn}
}

// Run drives a single-file download into info.LocalFile.
//
// Per jermit's getPercentComplete() special case (ported to
// session.Session.PercentComplete), Xmodem downloads cannot report
// per-file progress because the protocol never tells the receiver how
// big the incoming file is.
func (r *Receiver) Run(ctx context.Context, info *session.FileInfo) error {
	r.sn.SetState(session.Transfer)
	r.sn.BeginFile(info)

	useCRC := usesCRC(r.cfg.Flavor)
	size := blockSize(r.cfg.Flavor)
	expected := byte(1)

	if err := r.sendPoll(ctx, useCRC); err != nil {
		return err
	}

	for {
		start, err := r.nextBlockStart(ctx)
		if err != nil {
			return err
		}
		if start == framing.EOT {
			return r.finishOnEOT(ctx)
		}
		if start == framing.CAN {
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "sender cancelled transfer")
		}

		payload, dup, err := r.readBlock(ctx, start, size, useCRC, expected)
		if err != nil {
			if session.IsIntegrity(err) {
				if writeErr := r.ch.WriteByte(ctx, framing.NAK); writeErr != nil {
					return writeErr
				}
				continue
			}
			if session.IsProtocolKind(err) {
				if writeErr := r.abort(ctx); writeErr != nil {
					return writeErr
				}
				return err
			}
			return err
		}

		if dup {
			// One-behind seq: the sender never saw our ACK and
			// retransmitted. Re-ACK without writing the block again.
			if !streaming(r.cfg.Flavor) {
				if err := r.ch.WriteByte(ctx, framing.ACK); err != nil {
					return err
				}
			}
			continue
		}

		if _, werr := info.LocalFile.Write(payload); werr != nil {
			r.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "writing local file", werr)
		}
		r.sn.AddBytes(int64(len(payload)))
		expected++

		if !streaming(r.cfg.Flavor) {
			if err := r.ch.WriteByte(ctx, framing.ACK); err != nil {
				return err
			}
		}
	}
}

func (r *Receiver) sendPoll(ctx context.Context, useCRC bool) error {
	b := byte(framing.NAK)
	if useCRC {
		b = framing.WantCRC
	}
	if streaming(r.cfg.Flavor) {
		b = framing.WantG
	}
	return r.ch.WriteByte(ctx, b)
}

func (r *Receiver) nextBlockStart(ctx context.Context) (byte, error) {
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		b, err := r.ch.ReadByte(ctx)
		if err != nil {
			continue
		}
		return b, nil
	}
	r.sn.SetState(session.Abort)
	return 0, session.NewError(session.ErrTimeout, "no block header from sender")
}

// readBlock reads one block body and reports whether it is a duplicate
// of the block just ACKed (the sender retransmitting after losing our
// ACK). Per spec.md §4.3, a one-behind seq is re-ACKed without being
// written; any other mismatch is a protocol error the caller aborts on.
func (r *Receiver) readBlock(ctx context.Context, start byte, size int, useCRC bool, expected byte) ([]byte, bool, error) {
	trailer := 1
	if useCRC {
		trailer = 2
	}
	body := make([]byte, 2+size+trailer)
	for i := range body {
		b, err := r.ch.ReadByte(ctx)
		if err != nil {
			return nil, false, err
		}
		body[i] = b
	}

	var block framing.Block
	var err error
	if useCRC {
		block, err = framing.DecodeCRC(body, size)
	} else {
		block, err = framing.DecodeChecksum(body, size)
	}
	if err != nil {
		return nil, false, session.WrapError(session.ErrIntegrity, "bad block", err)
	}
	if block.Number == expected-1 {
		return nil, true, nil
	}
	if block.Number != expected {
		return nil, false, session.NewError(session.ErrProtocolKind, "unexpected block number")
	}
	return block.Payload, false, nil
}

// abort sends the CAN CAN CAN sequence spec.md §4.3 and §8 require when
// the receiver gives up on a truly out-of-sequence block.
func (r *Receiver) abort(ctx context.Context) error {
	r.sn.SetState(session.Abort)
	for i := 0; i < 3; i++ {
		if err := r.ch.WriteByte(ctx, framing.CAN); err != nil {
			return err
		}
	}
	return nil
}

// finishOnEOT implements spec.md §9's resolved dance: NAK the first EOT,
// then ACK the second.
func (r *Receiver) finishOnEOT(ctx context.Context) error {
	if err := r.ch.WriteByte(ctx, framing.NAK); err != nil {
		return err
	}
	b, err := r.ch.ReadByte(ctx)
	if err != nil {
		return session.WrapError(session.ErrTimeout, "no second EOT", err)
	}
	if b != framing.EOT {
		return session.NewError(session.ErrProtocolKind, "expected second EOT")
	}
	if err := r.ch.WriteByte(ctx, framing.ACK); err != nil {
		return err
	}
	r.sn.SetState(session.FileDone)
	return nil
}
