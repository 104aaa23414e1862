package session

import (
	"bytes"
	"io"
	"os"
	"time"
)

// LocalFile is the local filesystem interface every engine reads from or
// writes to, matching spec.md §6's local file contract. OSFile backs it
// with a real *os.File; MemFile backs it with an in-memory buffer so the
// §8 loopback tests never touch disk.
type LocalFile interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64) error
	Truncate(size int64) error
	Close() error
	Size() int64
	ModTime() time.Time
	Mode() os.FileMode
	Name() string
	Delete() error
}

// OSFile adapts *os.File to LocalFile.
type OSFile struct {
	f    *os.File
	path string
}

// OpenOSFile opens path for reading.
func OpenOSFile(path string) (*OSFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &OSFile{f: f, path: path}, nil
}

// CreateOSFile creates (or truncates) path for writing with the given mode.
func CreateOSFile(path string, mode os.FileMode) (*OSFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, err
	}
	return &OSFile{f: f, path: path}, nil
}

// OpenResumeOSFile opens an existing file at path for read-write without
// truncating it, so Zmodem crash recovery (spec.md §4.5) can seek past
// its current length and resume appending instead of starting over.
func OpenResumeOSFile(path string) (*OSFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &OSFile{f: f, path: path}, nil
}

func (o *OSFile) Read(p []byte) (int, error)  { return o.f.Read(p) }
func (o *OSFile) Write(p []byte) (int, error) { return o.f.Write(p) }
func (o *OSFile) Seek(offset int64) error {
	_, err := o.f.Seek(offset, 0)
	return err
}
func (o *OSFile) Truncate(size int64) error { return o.f.Truncate(size) }
func (o *OSFile) Close() error              { return o.f.Close() }
func (o *OSFile) Name() string              { return o.path }
func (o *OSFile) Delete() error             { return os.Remove(o.path) }

func (o *OSFile) Size() int64 {
	info, err := o.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (o *OSFile) ModTime() time.Time {
	info, err := o.f.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (o *OSFile) Mode() os.FileMode {
	info, err := o.f.Stat()
	if err != nil {
		return 0
	}
	return info.Mode()
}

// MemFile is an in-memory LocalFile, used by tests that exercise the
// round-trip invariant without a real filesystem.
type MemFile struct {
	name    string
	buf     bytes.Buffer
	pos     int64
	mode    os.FileMode
	modTime time.Time
}

// NewMemFile creates a MemFile pre-loaded with data, simulating an
// upload source.
func NewMemFile(name string, data []byte) *MemFile {
	m := &MemFile{name: name, mode: 0644, modTime: time.Unix(0, 0)}
	m.buf.Write(data)
	return m
}

// NewEmptyMemFile creates a MemFile with no content, simulating a
// download destination.
func NewEmptyMemFile(name string) *MemFile {
	return &MemFile{name: name, mode: 0644, modTime: time.Unix(0, 0)}
}

func (m *MemFile) Read(p []byte) (int, error) {
	data := m.buf.Bytes()
	if m.pos >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemFile) Write(p []byte) (int, error) {
	if m.pos == int64(m.buf.Len()) {
		n, err := m.buf.Write(p)
		m.pos += int64(n)
		return n, err
	}
	data := m.buf.Bytes()
	end := m.pos + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[m.pos:end], p)
	m.buf.Reset()
	m.buf.Write(data)
	m.pos = end
	return len(p), nil
}

func (m *MemFile) Seek(offset int64) error { m.pos = offset; return nil }
func (m *MemFile) Truncate(size int64) error {
	data := m.buf.Bytes()
	if int64(len(data)) > size {
		data = data[:size]
	}
	m.buf.Reset()
	m.buf.Write(data)
	return nil
}
func (m *MemFile) Close() error           { return nil }
func (m *MemFile) Delete() error          { m.buf.Reset(); return nil }
func (m *MemFile) Name() string           { return m.name }
func (m *MemFile) Size() int64            { return int64(m.buf.Len()) }
func (m *MemFile) ModTime() time.Time     { return m.modTime }
func (m *MemFile) Mode() os.FileMode      { return m.mode }

// Bytes returns the MemFile's current contents, for test assertions.
func (m *MemFile) Bytes() []byte { return m.buf.Bytes() }
