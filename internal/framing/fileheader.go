package framing

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// FileMetadata is the information carried in a Ymodem block 0 or a
// Zmodem ZFILE data subpacket: a null-terminated filename followed by a
// space-separated "size mtime(octal) mode(octal) 0 filesLeft totalLeft"
// text record. Both protocols inherited this exact text format from
// Unix rz/sz, so one encoder/decoder pair serves both engines.
type FileMetadata struct {
	Name       string
	Size       int64
	ModTime    int64 // Unix seconds
	Mode       uint32
	FilesLeft  int
	TotalLeft  int64
}

// EncodeFileMetadata builds the payload, matching lsz.c's wctxpn().
func EncodeFileMetadata(m FileMetadata) []byte {
	var buf bytes.Buffer
	buf.WriteString(m.Name)
	buf.WriteByte(0)
	fmt.Fprintf(&buf, "%d %o %o 0 %d %d", m.Size, m.ModTime, m.Mode, m.FilesLeft, m.TotalLeft)
	return buf.Bytes()
}

// DecodeFileMetadata parses a payload built by EncodeFileMetadata. Only
// the NUL-terminated Name is required; Size and the remaining fields
// default to zero if the sender omitted them, matching lrzsz's lenient
// receiver.
func DecodeFileMetadata(data []byte) (FileMetadata, error) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return FileMetadata{}, fmt.Errorf("framing: file metadata missing NUL terminator")
	}
	m := FileMetadata{Name: string(data[:nul])}
	fields := strings.Fields(string(data[nul+1:]))
	parseInt := func(s string, base int) int64 {
		v, _ := strconv.ParseInt(s, base, 64)
		return v
	}
	if len(fields) > 0 {
		m.Size = parseInt(fields[0], 10)
	}
	if len(fields) > 1 {
		m.ModTime = parseInt(fields[1], 8)
	}
	if len(fields) > 2 {
		m.Mode = uint32(parseInt(fields[2], 8))
	}
	if len(fields) > 4 {
		m.FilesLeft = int(parseInt(fields[4], 10))
	}
	if len(fields) > 5 {
		m.TotalLeft = parseInt(fields[5], 10)
	}
	return m, nil
}
