package session

import "time"

// MessageTag distinguishes informational log lines from error log lines,
// matching jermit.protocol.SerialFileTransferMessage's INFO/ERROR tags.
type MessageTag int

const (
	Info MessageTag = iota
	ErrorMsg
)

// Message is one entry in a Session's message log.
type Message struct {
	Tag  MessageTag
	Text string
	At   time.Time
}

// IsError reports whether m is an ERROR-tagged message.
func (m Message) IsError() bool { return m.Tag == ErrorMsg }

// IsInfo reports whether m is an INFO-tagged message.
func (m Message) IsInfo() bool { return m.Tag == Info }
