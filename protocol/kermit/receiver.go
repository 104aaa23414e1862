package kermit

import (
	"context"

	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// FileOpener creates the LocalFile a received file's bytes should be
// written into, given the filename carried in its File-Header packet.
type FileOpener func(filename string) (session.LocalFile, error)

// Receiver implements the receiving side of a Kermit batch transfer.
type Receiver struct {
	cfg    *Config
	ch     wire.Channel
	sn     *session.Session
	opener FileOpener
}

// NewReceiver builds a Receiver driving traffic over ch.
func NewReceiver(cfg *Config, ch wire.Channel, sn *session.Session, opener FileOpener) *Receiver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Receiver{cfg: cfg, ch: ch, sn: sn, opener: opener}
}

// RunBatch receives files until the sender's Break packet ends the batch.
func (r *Receiver) RunBatch(ctx context.Context) error {
	if _, err := r.recvWithRetry(ctx); err != nil { // Send-Init
		return err
	}

	for {
		pkt, err := r.recvWithRetry(ctx)
		if err != nil {
			return err
		}
		switch pkt.Type {
		case TypeFile:
			if err := r.receiveFile(ctx, string(pkt.Data)); err != nil {
				return err
			}
		case TypeBreak:
			r.sn.SetState(session.End)
			return nil
		case TypeError:
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "sender sent an error packet")
		default:
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrProtocolKind, "unexpected packet at batch top level")
		}
	}
}

func (r *Receiver) receiveFile(ctx context.Context, filename string) error {
	localFile, err := r.opener(filename)
	if err != nil {
		r.sn.SetState(session.Abort)
		return session.WrapError(session.ErrFile, "opening destination file", err)
	}
	info := &session.FileInfo{LocalFile: localFile, Filename: filename, BlockSize: r.cfg.PacketSize}
	r.sn.SetState(session.Transfer)
	r.sn.BeginFile(info)

	for {
		if r.sn.CancelRequested() {
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrLocalCancel, "transfer cancelled")
		}
		if r.sn.SkipRequested() {
			r.sn.ClearSkip()
			info.Skipped = true
			r.sn.SetState(session.FileDone)
			r.drainUntilEOF(ctx)
			return nil
		}

		pkt, err := r.recvWithRetry(ctx)
		if err != nil {
			return err
		}
		switch pkt.Type {
		case TypeData:
			if _, werr := info.LocalFile.Write(pkt.Data); werr != nil {
				r.sn.SetState(session.Abort)
				return session.WrapError(session.ErrFile, "writing local file", werr)
			}
			r.sn.AddBytes(int64(len(pkt.Data)))
		case TypeEOF:
			r.sn.SetState(session.FileDone)
			return nil
		case TypeError:
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "sender sent an error packet")
		default:
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrProtocolKind, "unexpected packet mid-file")
		}
	}
}

// drainUntilEOF keeps ACKing packets without writing them, for a file
// skipped mid-transfer, until the sender's End-Of-File packet arrives.
// This is the skip-anywhere capability spec.md §4.6 singles Kermit out
// for: the other three engines have no packet-level addressing to skip
// a file already in flight.
func (r *Receiver) drainUntilEOF(ctx context.Context) {
	for {
		pkt, err := r.recvWithRetry(ctx)
		if err != nil || pkt.Type == TypeEOF {
			return
		}
	}
}

// recvWithRetry reads a packet and ACKs it, sending NAKs for malformed
// packets until a good one arrives or the retry budget is exhausted.
func (r *Receiver) recvWithRetry(ctx context.Context) (Packet, error) {
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		pkt, err := readPacket(ctx, r.ch)
		if err != nil {
			if _, werr := r.ch.Write(ctx, Encode(Packet{Type: TypeNAK})); werr != nil {
				return Packet{}, werr
			}
			continue
		}
		ack := Encode(Packet{Seq: pkt.Seq, Type: TypeACK})
		if _, werr := r.ch.Write(ctx, ack); werr != nil {
			return Packet{}, werr
		}
		return pkt, nil
	}
	r.sn.SetState(session.Abort)
	return Packet{}, session.NewError(session.ErrTimeout, "no valid packet from sender")
}
