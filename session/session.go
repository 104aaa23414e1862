package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session encapsulates all the state used by an upload or download,
// ported from jermit.protocol.SerialFileTransferSession. Java's
// synchronized/wait/notifyAll become a sync.Mutex plus a buffered
// Subscribe channel; the cancel/skip flags become atomic.Bool per
// spec.md §5's concurrency model (engine goroutine owns mutation,
// observer goroutines only read snapshots or raise flags).
type Session struct {
	mu sync.Mutex

	state             State
	protocol          Protocol
	flavor            Flavor
	transferDirectory string
	files             []*FileInfo
	download          bool

	bytesTransferred  int64
	bytesTotal        int64
	blocksTransferred int64
	blocksTotal       int64
	lastBlockMillis   int64

	startTime int64
	endTime   int64

	currentStatus string
	messages      []Message

	cancelRequested atomic.Bool
	skipRequested   atomic.Bool
	keepPartial     atomic.Bool

	config *Config
	logger Logger

	subscribers []chan Snapshot
}

// NewUploadSession constructs a Session representing a batch upload,
// matching jermit's list-of-files protected constructor.
func NewUploadSession(protocol Protocol, flavor Flavor, files []*FileInfo, opts ...Option) *Session {
	s := newSession(protocol, flavor, opts...)
	s.files = files
	s.download = false
	return s
}

// NewDownloadSession constructs a Session representing a download into
// dir, matching jermit's single-file/download protected constructor
// generalized to a directory target for multi-file protocols.
func NewDownloadSession(protocol Protocol, flavor Flavor, dir string, opts ...Option) *Session {
	s := newSession(protocol, flavor, opts...)
	s.transferDirectory = dir
	s.download = true
	return s
}

func newSession(protocol Protocol, flavor Flavor, opts ...Option) *Session {
	s := &Session{
		state:    Init,
		protocol: protocol,
		flavor:   flavor,
		config:   DefaultConfig(),
		logger:   NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the session's configuration.
func (s *Session) Config() *Config { return s.config }

// Logger returns the session's logger.
func (s *Session) Logger() Logger { return s.logger }

// Protocol returns the protocol this session is running.
func (s *Session) Protocol() Protocol { return s.protocol }

// Flavor returns the protocol variant this session is running.
func (s *Session) Flavor() Flavor { return s.flavor }

// IsDownload reports whether this session represents a download.
func (s *Session) IsDownload() bool { return s.download }

// TransferDirectory returns the download destination directory.
func (s *Session) TransferDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferDirectory
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session to state, enforcing the terminal
// latch invariant: once ABORT or END is entered, it cannot be left.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	if s.state == Init && s.startTime == 0 {
		s.startTime = nowMillis()
	}
	s.state = state
	if state.Terminal() {
		s.endTime = nowMillis()
	}
	s.notify()
}

// BeginFile appends info to the file list and makes it the current file,
// matching jermit's files.getLast() convention where the most recently
// added file is "current".
func (s *Session) BeginFile(info *FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, info)
	s.notify()
}

// CurrentFile returns the file currently being transferred, or nil if
// the session is still in INIT.
func (s *Session) CurrentFile() *FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Init || len(s.files) == 0 {
		return nil
	}
	return s.files[len(s.files)-1]
}

// Files returns every file known to this session.
func (s *Session) Files() []*FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*FileInfo, len(s.files))
	copy(out, s.files)
	return out
}

// AddBytes records bytesSent bytes transferred for the current file and
// the session total, and bumps the block counters by one.
func (s *Session) AddBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesTransferred += n
	s.blocksTransferred++
	s.lastBlockMillis = nowMillis()
	if len(s.files) > 0 {
		s.files[len(s.files)-1].BytesTransferred += n
	}
	s.notify()
}

// SetTotals records the expected byte/block totals for the whole
// session, usually once file sizes are known.
func (s *Session) SetTotals(bytesTotal, blocksTotal int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesTotal = bytesTotal
	s.blocksTotal = blocksTotal
}

// SetCurrentStatus sets the UI-facing status string.
func (s *Session) SetCurrentStatus(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentStatus = msg
	s.notify()
}

// CurrentStatus returns the UI-facing status string.
func (s *Session) CurrentStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStatus
}

// AddInfoMessage appends an INFO entry to the message log, matching
// jermit's addInfoMessage().
func (s *Session) AddInfoMessage(text string) {
	s.addMessage(Info, text)
	s.logger.Info(text)
}

// AddErrorMessage appends an ERROR entry to the message log, matching
// jermit's addErrorMessage().
func (s *Session) AddErrorMessage(text string) {
	s.addMessage(ErrorMsg, text)
	s.logger.Error(text)
}

func (s *Session) addMessage(tag MessageTag, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Tag: tag, Text: text, At: time.Now()})
	s.currentStatus = text
	s.notify()
}

// ErrorCount returns the number of ERROR messages logged, restoring
// jermit's errorCount() that the distilled spec dropped.
func (s *Session) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.IsError() {
			n++
		}
	}
	return n
}

// InfoCount returns the number of INFO messages logged, restoring
// jermit's infoCount().
func (s *Session) InfoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.IsInfo() {
			n++
		}
	}
	return n
}

// MessageCount returns the total number of messages logged.
func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Message returns the message at index, restoring jermit's
// getMessage(index). The bool is false if index is out of range.
func (s *Session) Message(index int) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return Message{}, false
	}
	return s.messages[index], true
}

// LastMessage returns the most recent message, or the zero Message and
// false if the log is empty.
func (s *Session) LastMessage() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Messages returns a snapshot of the full message log.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// RequestCancel raises the cancel flag an engine's Run loop polls,
// matching the abstract cancelTransfer() contract: keepPartial controls
// whether a partially downloaded file is kept or deleted.
func (s *Session) RequestCancel(keepPartial bool) {
	s.keepPartial.Store(keepPartial)
	s.cancelRequested.Store(true)
}

// CancelRequested reports whether RequestCancel has been called. Once
// true it stays true for the life of the session — cancellation is
// idempotent and cannot be un-requested.
func (s *Session) CancelRequested() bool { return s.cancelRequested.Load() }

// RequestSkip raises the skip flag. Only the Kermit engine polls it, at
// each packet of a file in flight; the Xmodem, Ymodem and Zmodem engines
// do not read it.
func (s *Session) RequestSkip(keepPartial bool) {
	s.keepPartial.Store(keepPartial)
	s.skipRequested.Store(true)
}

// SkipRequested reports whether RequestSkip has been called since the
// last ClearSkip.
func (s *Session) SkipRequested() bool { return s.skipRequested.Load() }

// ClearSkip resets the skip flag once an engine has acted on it, so the
// next file is not skipped too.
func (s *Session) ClearSkip() { s.skipRequested.Store(false) }

// KeepPartial reports whether the most recent cancel/skip request asked
// to keep whatever had already been downloaded.
func (s *Session) KeepPartial() bool { return s.keepPartial.Load() }

// TransferRate returns bytes/second for this session, or -1 if the
// transfer has not yet started, matching jermit's getTransferRate()
// state-dependent millis calculation exactly (including its "called too
// fast, disambiguate via 0 instead of -1" behavior).
func (s *Session) TransferRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var millis int64
	switch s.state {
	case Init:
		return -1
	case DownloadFileInfo, Transfer, FileDone:
		millis = s.lastBlockMillis - s.startTime
	case Abort, End:
		millis = s.endTime - s.startTime
	}
	if millis > 0 {
		return float64(s.bytesTransferred) / (float64(millis) / 1000.0)
	}
	return 0
}

// TotalPercentComplete returns 0.0-100.0 for the whole session, matching
// jermit's getTotalPercentComplete().
func (s *Session) TotalPercentComplete() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Init || s.bytesTotal == 0 {
		return 0.0
	}
	if s.bytesTransferred >= s.bytesTotal {
		return 100.0
	}
	return float64(s.bytesTransferred) / float64(s.bytesTotal) * 100.0
}

// PercentComplete returns 0.0-100.0 for the current file, matching
// jermit's getPercentComplete() including its Xmodem-download special
// case: Xmodem has no way to learn the remote file's size in advance, so
// a download's per-file percentage is always reported as 0.0.
func (s *Session) PercentComplete() float64 {
	file := s.CurrentFile()
	if file == nil {
		return 0.0
	}
	if s.protocol == Xmodem && s.download {
		return 0.0
	}
	return file.PercentComplete()
}

// Snapshot is a single consistent read of every field an observer needs
// to render progress, avoiding the teardown race of reading several
// fields across separate locked calls.
type Snapshot struct {
	State             State
	CurrentFile       string
	BytesTransferred  int64
	BytesTotal        int64
	BlocksTransferred int64
	BlocksTotal       int64
	PercentComplete   float64
	TransferRate      float64
	CurrentStatus     string
}

// Observe returns a single coherent Snapshot of the session.
func (s *Session) Observe() Snapshot {
	s.mu.Lock()
	state := s.state
	bytesTransferred := s.bytesTransferred
	bytesTotal := s.bytesTotal
	blocksTransferred := s.blocksTransferred
	blocksTotal := s.blocksTotal
	status := s.currentStatus
	var filename string
	if len(s.files) > 0 {
		filename = s.files[len(s.files)-1].Filename
	}
	s.mu.Unlock()

	return Snapshot{
		State:             state,
		CurrentFile:       filename,
		BytesTransferred:  bytesTransferred,
		BytesTotal:        bytesTotal,
		BlocksTransferred: blocksTransferred,
		BlocksTotal:       blocksTotal,
		PercentComplete:   s.PercentComplete(),
		TransferRate:      s.TransferRate(),
		CurrentStatus:     status,
	}
}

// Subscribe returns a buffered channel that receives a Snapshot on every
// state change; the latest snapshot always wins if the subscriber falls
// behind. Callers that only need the occasional read should prefer
// Observe() instead. Snapshots sent on this channel leave TransferRate
// at zero; Observe() fills it in.
func (s *Session) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// notify must be called with s.mu held.
func (s *Session) notify() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := Snapshot{
		State:             s.state,
		BytesTransferred:  s.bytesTransferred,
		BytesTotal:        s.bytesTotal,
		BlocksTransferred: s.blocksTransferred,
		BlocksTotal:       s.blocksTotal,
		CurrentStatus:     s.currentStatus,
	}
	if len(s.files) > 0 {
		file := s.files[len(s.files)-1]
		snap.CurrentFile = file.Filename
		if s.state != Init && !(s.protocol == Xmodem && s.download) {
			snap.PercentComplete = file.PercentComplete()
		}
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
				ch <- snap
			default:
			}
		}
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }
