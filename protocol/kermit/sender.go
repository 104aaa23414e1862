package kermit

import (
	"context"
	"io"

	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

// Sender implements the sending side of a Kermit batch transfer.
type Sender struct {
	cfg *Config
	ch  wire.Channel
	sn  *session.Session
	seq byte
}

// NewSender builds a Sender driving traffic over ch.
func NewSender(cfg *Config, ch wire.Channel, sn *session.Session) *Sender {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Sender{cfg: cfg, ch: ch, sn: sn}
}

// RunBatch sends a Send-Init handshake, then every file in files, then a
// Break packet ending the batch.
func (s *Sender) RunBatch(ctx context.Context, files []*session.FileInfo) error {
	if err := s.exchange(ctx, TypeSendInit, []byte{toPrintable(s.cfg.PacketSize)}); err != nil {
		return err
	}
	for _, info := range files {
		if s.sn.CancelRequested() {
			s.sn.SetState(session.Abort)
			return session.NewError(session.ErrLocalCancel, "transfer cancelled")
		}
		if err := s.sendFile(ctx, info); err != nil {
			return err
		}
	}
	if err := s.exchange(ctx, TypeBreak, nil); err != nil {
		return err
	}
	s.sn.SetState(session.End)
	return nil
}

func (s *Sender) sendFile(ctx context.Context, info *session.FileInfo) error {
	s.sn.SetState(session.Transfer)
	s.sn.BeginFile(info)

	if err := s.exchange(ctx, TypeFile, []byte(info.Filename)); err != nil {
		return err
	}

	buf := make([]byte, s.cfg.PacketSize)
	for {
		if s.sn.CancelRequested() {
			s.sn.SetState(session.Abort)
			return session.NewError(session.ErrLocalCancel, "transfer cancelled")
		}
		if s.sn.SkipRequested() {
			s.sn.ClearSkip()
			info.Skipped = true
			break
		}

		n, err := info.LocalFile.Read(buf)
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil && err != io.EOF {
			s.sn.SetState(session.Abort)
			return session.WrapError(session.ErrFile, "reading local file", err)
		}
		if err := s.exchange(ctx, TypeData, buf[:n]); err != nil {
			return err
		}
		s.sn.AddBytes(int64(n))
		if err == io.EOF {
			break
		}
	}

	if err := s.exchange(ctx, TypeEOF, nil); err != nil {
		return err
	}
	s.sn.SetState(session.FileDone)
	return nil
}

// exchange sends one packet with the current sequence number and waits
// for an ACK carrying the same sequence number, retrying on NAK or
// timeout up to MaxRetries times, then advances the sequence counter.
func (s *Sender) exchange(ctx context.Context, typ byte, data []byte) error {
	pkt := Packet{Seq: s.seq, Type: typ, Data: data}
	raw := Encode(pkt)

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if _, err := s.ch.Write(ctx, raw); err != nil {
			return err
		}
		resp, err := readPacket(ctx, s.ch)
		if err != nil {
			continue
		}
		if resp.Type == TypeACK && resp.Seq == pkt.Seq {
			s.seq = (s.seq + 1) % 64
			return nil
		}
		if resp.Type == TypeError {
			s.sn.SetState(session.Abort)
			return session.NewError(session.ErrRemoteCancel, "receiver sent an error packet")
		}
		// NAK or mismatched ACK: resend the same packet.
	}
	s.sn.SetState(session.Abort)
	return session.NewError(session.ErrTimeout, "packet retry budget exceeded")
}
