package ymodem

import (
	"context"
	"os"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// FileOpener creates the LocalFile a received file's bytes should be
// written into, given the metadata parsed from its block 0. Callers
// typically close over a destination directory and call
// session.CreateOSFile(filepath.Join(dir, meta.Name), ...).
type FileOpener func(meta framing.FileMetadata) (session.LocalFile, error)

// Receiver implements the receiving side of a Ymodem batch transfer.
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

// RunBatch receives files until the sender's end-of-batch (null
// filename) block 0 arrives.
func (r *Receiver) RunBatch(ctx context.Context) error {
	for {
		meta, done, err := r.receiveMetadata(ctx)
		if err != nil {
			return err
		}
		if done {
			r.sn.SetState(session.End)
			return nil
		}

		localFile, err := r.opener(meta)
		if err != nil {
			r.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "opening destination file", err)
		}

		info := &session.FileInfo{
			LocalFile: localFile,
			Filename:  meta.Name,
			Size:      meta.Size,
			ModTime:   meta.ModTime,
			Mode:      os.FileMode(meta.Mode),
			BlockSize: blockSize,
		}
		if err := r.receiveFile(ctx, info); err != nil {
			return err
		}
	}
}

func (r *Receiver) receiveMetadata(ctx context.Context) (framing.FileMetadata, bool, error) {
	if err := r.sendPoll(ctx); err != nil {
		return framing.FileMetadata{}, false, err
	}

	payload, err := r.receiveBlockWithRetry(ctx, 0)
	if err != nil {
		return framing.FileMetadata{}, false, err
	}
	if err := r.ch.WriteByte(ctx, framing.ACK); err != nil {
		return framing.FileMetadata{}, false, err
	}

	trimmed := trimTrailingNulls(payload)
	if len(trimmed) == 0 {
		return framing.FileMetadata{}, true, nil
	}
	meta, err := framing.DecodeFileMetadata(trimmed)
	if err != nil {
		r.sn.SetState(session.Abort)
		return framing.FileMetadata{}, false, session.WrapError(session.ErrProtocolKind, "bad file metadata block", err)
	}
	return meta, false, nil
}

func (r *Receiver) receiveFile(ctx context.Context, info *session.FileInfo) error {
	r.sn.SetState(session.Transfer)
	r.sn.BeginFile(info)

	if err := r.sendPoll(ctx); err != nil {
		return err
	}

	expected := byte(1)
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

		payload, err := r.readBlockBody(ctx, expected)
		if err != nil {
			if session.IsIntegrity(err) {
				if streaming(r.cfg.Flavor) {
					r.sn.SetState(session.Abort)
					return err
				}
				if werr := r.ch.WriteByte(ctx, framing.NAK); werr != nil {
					return werr
				}
				continue
			}
			return err
		}

		if _, werr := info.LocalFile.Write(trimToSize(payload, info, len(payload))); werr != nil {
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

// receiveBlockWithRetry reads one CRC block and expects it numbered
// expected; on an integrity failure it sends NAK and reads the whole
// header+body again, up to MaxRetries times. Used only for block 0; the
// caller sends its poll byte once before calling and does not re-poll.
func (r *Receiver) receiveBlockWithRetry(ctx context.Context, expected byte) ([]byte, error) {
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		start, err := r.nextBlockStart(ctx)
		if err != nil {
			return nil, err
		}
		if start == framing.CAN {
			r.sn.SetState(session.Abort)
			return nil, session.NewError(session.ErrRemoteCancel, "sender cancelled transfer")
		}
		payload, err := r.readBlockBody(ctx, expected)
		if err != nil {
			if session.IsIntegrity(err) {
				_ = r.ch.WriteByte(ctx, framing.NAK)
				continue
			}
			return nil, err
		}
		return payload, nil
	}
	r.sn.SetState(session.Abort)
	return nil, session.NewError(session.ErrTimeout, "block 0 retry budget exceeded")
}

func (r *Receiver) sendPoll(ctx context.Context) error {
	b := byte(framing.WantCRC)
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

func (r *Receiver) readBlockBody(ctx context.Context, expected byte) ([]byte, error) {
	body := make([]byte, 2+blockSize+2)
	for i := range body {
		b, err := r.ch.ReadByte(ctx)
		if err != nil {
			return nil, err
		}
		body[i] = b
	}
	block, err := framing.DecodeCRC(body, blockSize)
	if err != nil {
		return nil, session.WrapError(session.ErrIntegrity, "bad block", err)
	}
	if block.Number != expected {
		return nil, session.NewError(session.ErrProtocolKind, "unexpected block number")
	}
	return block.Payload, nil
}

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

func trimTrailingNulls(payload []byte) []byte {
	end := len(payload)
	for end > 0 && payload[end-1] == 0 {
		end--
	}
	return payload[:end]
}

// trimToSize trims the final, padded data block down to the file's
// declared size so CPMEOF filler bytes never land in the output.
func trimToSize(payload []byte, info *session.FileInfo, n int) []byte {
	if info.Size <= 0 {
		return payload[:n]
	}
	remaining := info.Size - info.BytesTransferred
	if remaining < int64(n) && remaining >= 0 {
		return payload[:remaining]
	}
	return payload[:n]
}
