package ymodem

import (
	"context"
	"io"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// Sender implements the sending side of a Ymodem batch transfer: for
// each file it sends a block-0 metadata frame, then the file's data
// blocks, then hands off to the next file; the batch ends with a
// null-filename block-0.
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

// RunBatch sends every file in files in order, then the end-of-batch block.
func (s *Sender) RunBatch(ctx context.Context, files []*session.FileInfo) error {
	s.sn.SetTotals(totalBytes(files), 0)

	for _, info := range files {
		if s.sn.CancelRequested() {
			s.sn.SetState(session.Abort)
			return session.NewError(session.ErrLocalCancel, "transfer cancelled")
		}
		if err := s.runFile(ctx, info); err != nil {
			return err
		}
	}
	return s.sendEndOfBatch(ctx)
}

func (s *Sender) runFile(ctx context.Context, info *session.FileInfo) error {
	s.sn.SetState(session.Transfer)
	s.sn.BeginFile(info)

	if err := s.awaitPoll(ctx); err != nil {
		return err
	}

	meta := framing.FileMetadata{
		Name:    info.Filename,
		Size:    info.Size,
		ModTime: info.ModTime,
		Mode:    uint32(info.Mode),
	}
	if err := s.sendBlock(ctx, 0, framing.PadPayload(framing.EncodeFileMetadata(meta), blockSize)); err != nil {
		return err
	}

	if err := s.awaitPoll(ctx); err != nil {
		return err
	}

	block := byte(1)
	buf := make([]byte, blockSize)
	last := false
	for !last {
		n, rerr := io.ReadFull(info.LocalFile, buf)
		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			last = true
		} else if rerr != nil {
			s.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "reading local file", rerr)
		}
		payload := framing.PadPayload(buf[:n], blockSize)
		if err := s.sendBlock(ctx, block, payload); err != nil {
			return err
		}
		s.sn.AddBytes(int64(n))
		block++
	}

	if err := s.sendEOT(ctx); err != nil {
		return err
	}

	s.sn.SetState(session.FileDone)
	return nil
}

func (s *Sender) sendEndOfBatch(ctx context.Context) error {
	if err := s.awaitPoll(ctx); err != nil {
		return err
	}
	return s.sendBlock(ctx, 0, make([]byte, blockSize))
}

// awaitPoll waits for the receiver's 'C' (CRC) or 'G' (streaming) poll
// byte, skipping any other byte; retries up to MaxRetries times.
func (s *Sender) awaitPoll(ctx context.Context) error {
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		b, err := s.ch.ReadByte(ctx)
		if err != nil {
			continue
		}
		switch b {
		case framing.WantCRC, framing.WantG:
			return nil
		case framing.CAN:
			s.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "receiver cancelled before transfer began")
		}
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "no poll byte from receiver")
}

func (s *Sender) sendBlock(ctx context.Context, block byte, payload []byte) error {
	wireBytes := framing.EncodeCRC(block, payload)

	// Streaming drops the per-block ACK for data blocks only; the
	// receiver still ACKs every block 0.
	if streaming(s.cfg.Flavor) && block != 0 {
		_, err := s.ch.Write(ctx, wireBytes)
		return err
	}

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if _, err := s.ch.Write(ctx, wireBytes); err != nil {
			return err
		}
		resp, err := s.ch.ReadByte(ctx)
		if err != nil {
			continue
		}
		switch resp {
		case framing.ACK:
			return nil
		case framing.CAN:
			s.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "receiver cancelled mid-transfer")
		case framing.NAK:
			continue
		}
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "block retry budget exceeded")
}

// sendEOT implements the same NAK-then-ACK dance as Xmodem, which Ymodem
// inherits unchanged per spec.md §9.
func (s *Sender) sendEOT(ctx context.Context) error {
	for i := 0; i < 2; i++ {
		if err := s.ch.WriteByte(ctx, framing.EOT); err != nil {
			return err
		}
		resp, err := s.ch.ReadByte(ctx)
		if err != nil {
			return session.WrapError(session.ErrTimeout, "no response to EOT", err)
		}
		if resp == framing.ACK {
			return nil
		}
		if resp != framing.NAK {
			return session.NewError(session.ErrProtocolKind, "unexpected response to EOT")
		}
	}
	return session.NewError(session.ErrProtocolKind, "receiver never ACKed EOT")
}

func totalBytes(files []*session.FileInfo) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
