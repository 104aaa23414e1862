package zmodem

import (
	"context"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// FileOpener creates the LocalFile a received file's bytes should be
// written into, given the metadata parsed from its ZFILE subpacket.
type FileOpener func(meta framing.FileMetadata) (session.LocalFile, error)

// Receiver implements the receiving side of a Zmodem transfer.
type Receiver struct {
	cfg    *Config
	ch     wire.Channel
	sn     *session.Session
	opener FileOpener
}

// NewReceiver builds a Receiver driving traffic over ch. opener is
// invoked once per incoming file to obtain somewhere to write it.
func NewReceiver(cfg *Config, ch wire.Channel, sn *session.Session, opener FileOpener) *Receiver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Receiver{cfg: cfg, ch: ch, sn: sn, opener: opener}
}

// RunBatch receives files until the sender ZFIN's the batch.
func (r *Receiver) RunBatch(ctx context.Context) error {
	if err := r.sendRinit(ctx); err != nil {
		return err
	}

	for {
		frameType, hdr, err := recvHeader(ctx, r.ch, r.cfg)
		if err != nil {
			r.sn.SetState(session.Abort)
			return session.WrapError(session.ErrTimeout, "waiting for ZFILE or ZFIN", err)
		}

		switch frameType {
		case ZFILE:
			if err := r.receiveOneFile(ctx); err != nil {
				return err
			}
		case ZFIN:
			return r.sendFinAck(ctx)
		case ZCAN:
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "sender cancelled batch")
		default:
			_ = hdr
			// Unexpected frame at the top level; ask the sender to retry.
			w := newFrameWriter(ctx, r.ch)
			if err := framing.SendHexHeader(w, ZRINIT, rinitHeader(), false); err != nil {
				return err
			}
		}
	}
}

func (r *Receiver) sendRinit(ctx context.Context) error {
	w := newFrameWriter(ctx, r.ch)
	return framing.SendHexHeader(w, ZRINIT, rinitHeader(), false)
}

func rinitHeader() framing.Header {
	flags := byte(CANFDX | CANOVIO | CANFC32)
	return framing.Header{flags, 0, 0, 0}
}

func (r *Receiver) receiveOneFile(ctx context.Context) error {
	cr := chanReader{ctx: ctx, ch: r.ch}
	var buf [1024]byte
	n, _, err := framing.RecvDataSubpacket(framing.NewUnescaper(cr), buf[:], r.cfg.Use32BitCRC)
	if err != nil {
		r.sn.SetState(session.Abort)
		return session.WrapError(session.ErrProtocolKind, "reading ZFILE subpacket", err)
	}
	meta, err := framing.DecodeFileMetadata(buf[:n])
	if err != nil {
		r.sn.SetState(session.Abort)
		return session.WrapError(session.ErrProtocolKind, "bad ZFILE metadata", err)
	}

	localFile, err := r.opener(meta)
	if err != nil {
		r.sn.SetState(session.Abort)
		return session.WrapError(session.ErrFile, "opening destination file", err)
	}

	// Crash recovery (spec.md §4.5): if the opener handed back a file that
	// already has bytes in it (a prior, partial attempt at the same
	// filename), resume from its current length instead of from zero.
	resumePos := localFile.Size()
	if resumePos > 0 {
		if err := localFile.Seek(resumePos); err != nil {
			r.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "seeking to resume position", err)
		}
	}

	info := &session.FileInfo{
		LocalFile:        localFile,
		Filename:         meta.Name,
		Size:             meta.Size,
		ModTime:          meta.ModTime,
		BlockSize:        r.cfg.BlockSize,
		BytesTransferred: resumePos,
	}
	r.sn.SetState(session.Transfer)
	r.sn.BeginFile(info)

	w := newFrameWriter(ctx, r.ch)
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		if err := framing.SendBinaryHeader(w, ZRPOS, framing.PositionHeader(uint32(resumePos)), r.cfg.Use32BitCRC, r.cfg.ZNulls, false); err != nil {
			return err
		}

		frameType, hdr, err := recvHeader(ctx, r.ch, r.cfg)
		if err != nil {
			continue
		}
		switch frameType {
		case ZDATA:
			if err := r.receiveData(ctx, info); err != nil {
				return err
			}
			return nil
		case ZEOF:
			// Zero-length file: ZFILE followed straight by ZEOF.
			_ = hdr
			r.sn.SetState(session.FileDone)
			return r.sendRinit(ctx)
		case ZCAN:
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "sender cancelled transfer")
		}
	}
	r.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "sender never sent ZDATA after ZRPOS")
}

func (r *Receiver) receiveData(ctx context.Context, info *session.FileInfo) error {
	cr := chanReader{ctx: ctx, ch: r.ch}
	u := framing.NewUnescaper(cr)
	buf := make([]byte, r.cfg.MaxBlockSize)

	for {
		if r.sn.CancelRequested() {
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrLocalCancel, "transfer cancelled")
		}
		n, terminator, err := framing.RecvDataSubpacket(u, buf, r.cfg.Use32BitCRC)
		if err != nil {
			r.sn.SetState(session.Abort)
			return session.WrapError(session.ErrIntegrity, "bad data subpacket", err)
		}
		if terminator == framing.ZCAN {
			r.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "sender cancelled transfer")
		}

		if n > 0 {
			if _, werr := info.LocalFile.Write(buf[:n]); werr != nil {
				r.sn.SetState(session.Abort)
				return session.WrapError(session.ErrFile, "writing local file", werr)
			}
			r.sn.AddBytes(int64(n))
		}

		switch terminator {
		case framing.GOTCRCW:
			// End of frame, ACK expected, a header follows: either a
			// continuing ZDATA from a new position or the closing ZEOF.
			if err := r.sendDataAck(ctx, info); err != nil {
				return err
			}
			frameType, _, err := recvHeader(ctx, r.ch, r.cfg)
			if err != nil {
				r.sn.SetState(session.Abort)
				return session.WrapError(session.ErrTimeout, "expected header after ZCRCW", err)
			}
			switch frameType {
			case ZEOF:
				r.sn.SetState(session.FileDone)
				return r.sendRinit(ctx)
			case ZDATA:
				continue
			default:
				r.sn.SetState(session.Abort)
				return session.NewError(session.ErrProtocolKind, "unexpected header after ZCRCW")
			}
		case framing.GOTCRCE:
			return r.expectEOF(ctx, info)
		case framing.GOTCRCG:
			continue
		case framing.GOTCRCQ:
			// ACK requested but frame continues; a bare ZACK is fine here.
			if err := r.sendDataAck(ctx, info); err != nil {
				return err
			}
			continue
		}
	}
}

func (r *Receiver) sendDataAck(ctx context.Context, info *session.FileInfo) error {
	w := newFrameWriter(ctx, r.ch)
	hdr := framing.PositionHeader(uint32(info.BytesTransferred))
	return framing.SendBinaryHeader(w, ZACK, hdr, r.cfg.Use32BitCRC, r.cfg.ZNulls, false)
}

func (r *Receiver) expectEOF(ctx context.Context, info *session.FileInfo) error {
	frameType, _, err := recvHeader(ctx, r.ch, r.cfg)
	if err != nil {
		r.sn.SetState(session.Abort)
		return session.WrapError(session.ErrTimeout, "expected ZEOF", err)
	}
	if frameType != ZEOF {
		r.sn.SetState(session.Abort)
		return session.NewError(session.ErrProtocolKind, "expected ZEOF after final subpacket")
	}
	r.sn.SetState(session.FileDone)
	return r.sendRinit(ctx)
}

func (r *Receiver) sendFinAck(ctx context.Context) error {
	w := newFrameWriter(ctx, r.ch)
	if err := framing.SendHexHeader(w, ZFIN, framing.Header{}, true); err != nil {
		return err
	}
	r.sn.SetState(session.End)
	return nil
}
