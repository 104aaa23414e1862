package zmodem

import (
	"context"
	"io"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// frameWriter adapts a wire.Channel to internal/framing.FrameWriter.
// Every write goes straight to the channel, so Flush is a no-op kept
// only to satisfy the FrameWriter interface; internal/framing's header
// codec calls it unconditionally on some paths (and not others), so
// callers here never need to flush explicitly.
type frameWriter struct {
	ctx context.Context
	ch  wire.Channel
}

func newFrameWriter(ctx context.Context, ch wire.Channel) *frameWriter {
	return &frameWriter{ctx: ctx, ch: ch}
}

func (f *frameWriter) Write(p []byte) (int, error) { return f.ch.Write(f.ctx, p) }
func (f *frameWriter) WriteByte(b byte) error      { return f.ch.WriteByte(f.ctx, b) }
func (f *frameWriter) Flush() error                { return nil }

// chanReader adapts wire.Channel's ReadByte to io.Reader, for the
// Unescaper/RecvHexHeader functions that take a plain io.Reader.
type chanReader struct {
	ctx context.Context
	ch  wire.Channel
}

func (c chanReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := c.ch.ReadByte(c.ctx)
	if err != nil {
		return 0, err
	}
	p[0] = b
	return 1, nil
}

// Sender implements the sending side of a Zmodem transfer.
type Sender struct {
	cfg *Config
	ch  wire.Channel
	sn  *session.Session
}

// NewSender builds a Sender driving traffic over ch.
func NewSender(cfg *Config, ch wire.Channel, sn *session.Session) *Sender {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Sender{cfg: cfg, ch: ch, sn: sn}
}

// RunBatch sends every file in files, negotiating ZRQINIT/ZRINIT once up
// front, then ending the batch with ZFIN.
func (s *Sender) RunBatch(ctx context.Context, files []*session.FileInfo) error {
	if err := s.negotiateInit(ctx); err != nil {
		return err
	}
	for _, info := range files {
		if s.sn.CancelRequested() {
			return s.abort(ctx)
		}
		if err := s.sendFile(ctx, info); err != nil {
			return err
		}
	}
	return s.finish(ctx)
}

func (s *Sender) negotiateInit(ctx context.Context) error {
	w := newFrameWriter(ctx, s.ch)
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if err := framing.SendHexHeader(w, ZRQINIT, framing.Header{}, false); err != nil {
			return err
		}
		frameType, _, err := s.recvHeader(ctx)
		if err != nil {
			continue
		}
		if frameType == ZRINIT {
			return nil
		}
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "no ZRINIT from receiver")
}

func (s *Sender) sendFile(ctx context.Context, info *session.FileInfo) error {
	s.sn.SetState(session.Transfer)
	s.sn.BeginFile(info)

	meta := framing.FileMetadata{
		Name:    info.Filename,
		Size:    info.Size,
		ModTime: info.ModTime,
		Mode:    uint32(info.Mode),
	}
	payload := framing.EncodeFileMetadata(meta)

	w := newFrameWriter(ctx, s.ch)
	var startPos uint32
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if err := framing.SendBinaryHeader(w, ZFILE, framing.Header{}, s.cfg.Use32BitCRC, s.cfg.ZNulls, false); err != nil {
			return err
		}
		if err := framing.SendDataSubpacket(w, payload, 'h', s.cfg.Use32BitCRC); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}

		frameType, hdr, err := s.recvHeader(ctx)
		if err != nil {
			continue
		}
		switch frameType {
		case ZRPOS:
			startPos = framing.HeaderPosition(hdr)
			goto stream
		case ZSKIP:
			info.Skipped = true
			s.sn.SetState(session.FileDone)
			return nil
		case ZCAN:
			return s.remoteCancelled()
		}
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "receiver never ZRPOS'd the file")

stream:
	if startPos > 0 {
		if err := info.LocalFile.Seek(int64(startPos)); err != nil {
			s.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "seeking to resume position", err)
		}
		info.BytesTransferred = int64(startPos)
	}

	if err := s.streamData(ctx, info, int64(startPos)); err != nil {
		return err
	}

	s.sn.SetState(session.FileDone)
	return nil
}

func (s *Sender) streamData(ctx context.Context, info *session.FileInfo, pos int64) error {
	w := newFrameWriter(ctx, s.ch)
	if err := framing.SendBinaryHeader(w, ZDATA, framing.PositionHeader(uint32(pos)), s.cfg.Use32BitCRC, s.cfg.ZNulls, true); err != nil {
		return err
	}

	buf := make([]byte, s.cfg.BlockSize)
	for {
		if s.sn.CancelRequested() {
			return s.abort(ctx)
		}
		n, err := info.LocalFile.Read(buf)
		if n == 0 && err == io.EOF {
			// The previous subpacket ended with ZCRCG; close the frame
			// with an empty ZCRCE so the receiver expects ZEOF next.
			if err := framing.SendDataSubpacket(w, nil, int(framing.ZCRCE), s.cfg.Use32BitCRC); err != nil {
				return err
			}
			break
		}
		if err != nil && err != io.EOF {
			s.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "reading local file", err)
		}
		terminator := int(framing.ZCRCG) // keep streaming, no ack
		if err == io.EOF {
			terminator = int(framing.ZCRCE) // data complete, header follows
		}
		if err := framing.SendDataSubpacket(w, buf[:n], terminator, s.cfg.Use32BitCRC); err != nil {
			return err
		}
		s.sn.AddBytes(int64(n))
		if err == io.EOF {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	return s.sendEOF(ctx, info)
}

func (s *Sender) sendEOF(ctx context.Context, info *session.FileInfo) error {
	w := newFrameWriter(ctx, s.ch)
	hdr := framing.PositionHeader(uint32(info.BytesTransferred))
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if err := framing.SendBinaryHeader(w, ZEOF, hdr, s.cfg.Use32BitCRC, s.cfg.ZNulls, false); err != nil {
			return err
		}
		frameType, _, err := s.recvHeader(ctx)
		if err != nil {
			continue
		}
		if frameType == ZRINIT {
			return nil
		}
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "receiver never acknowledged ZEOF")
}

func (s *Sender) finish(ctx context.Context) error {
	w := newFrameWriter(ctx, s.ch)
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if err := framing.SendHexHeader(w, ZFIN, framing.Header{}, true); err != nil {
			return err
		}
		frameType, _, err := s.recvHeader(ctx)
		if err != nil {
			continue
		}
		if frameType == ZFIN {
			_, err := s.ch.Write(ctx, []byte("OO"))
			s.sn.SetState(session.End)
			return err
		}
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "receiver never ZFIN'd the batch")
}

func (s *Sender) abort(ctx context.Context) error {
	_, _ = s.ch.Write(ctx, framing.CancelSequence[:])
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrLocalCancel, "transfer cancelled")
}

func (s *Sender) remoteCancelled() error {
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrRemoteCancel, "receiver cancelled transfer")
}

// recvHeader reads one ZPAD-prefixed frame header in any of ZBIN/ZHEX/
// ZBIN32 encoding, matching the teacher's zgethdr() dispatch on the byte
// following ZDLE.
func (s *Sender) recvHeader(ctx context.Context) (int, framing.Header, error) {
	return recvHeader(ctx, s.ch, s.cfg)
}
