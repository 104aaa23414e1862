package xmodem

import (
	"context"
	"io"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// Sender implements the sending side of the Xmodem state machine.
type Sender struct {
	cfg *Config
	ch  wire.Channel
	sn  *session.Session
}

// NewSender builds a Sender for sess, driving traffic over ch.
func NewSender(cfg *Config, ch wire.Channel, sn *session.Session) *Sender {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Sender{cfg: cfg, ch: ch, sn: sn}
}

// Run drives the whole single-file upload described by info, matching
// the sb/sx state machine: wait for the receiver's initial NAK/C/G poll,
// then stream blocks until EOF, then perform the EOT/NAK/EOT/ACK dance.
func (s *Sender) Run(ctx context.Context, info *session.FileInfo) error {
	s.sn.SetState(session.Transfer)
	s.sn.BeginFile(info)

	useCRC, err := s.awaitPoll(ctx)
	if err != nil {
		return err
	}

	size := blockSize(s.cfg.Flavor)
	block := byte(1)
	buf := make([]byte, size)
	last := false

	for !last {
		n, rerr := io.ReadFull(info.LocalFile, buf)
		if rerr == io.ErrUnexpectedEOF || rerr == io.EOF {
			last = true
		} else if rerr != nil {
			s.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "reading local file", rerr)
		}
		payload := framing.PadPayload(buf[:n], size)

		if err := s.sendBlock(ctx, block, payload, useCRC); err != nil {
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

// awaitPoll waits for the receiver's initial NAK (checksum) or 'C'
// (CRC) poll byte, retrying up to MaxRetries times.
func (s *Sender) awaitPoll(ctx context.Context) (bool, error) {
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		b, err := s.ch.ReadByte(ctx)
		if err != nil {
			continue
		}
		switch b {
		case framing.WantCRC:
			return true, nil
		case framing.NAK:
			return usesCRC(s.cfg.Flavor), nil
		case framing.WantG:
			return true, nil
		case framing.CAN:
			s.sn.SetState(session.Abort)
			return false, session.NewError(session.ErrRemoteCancel, "receiver cancelled before transfer began")
		}
	}
	s.sn.SetState(session.Abort)
	return false, session.NewError(session.ErrTimeout, "no poll byte from receiver")
}

func (s *Sender) sendBlock(ctx context.Context, block byte, payload []byte, useCRC bool) error {
	var wireBytes []byte
	if useCRC {
		wireBytes = framing.EncodeCRC(block, payload)
	} else {
		wireBytes = framing.EncodeChecksum(block, payload)
	}

	if streaming(s.cfg.Flavor) {
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

// sendEOT implements spec.md §9's resolved Open Question: the first EOT
// must be answered with NAK (some receivers use it as a final integrity
// check point), and only the second EOT is ACK'd.
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
