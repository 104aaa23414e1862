package wire

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader replays a fixed sequence of chunks, one per Read call,
// regardless of how large the caller's buffer is — used to force
// PassthroughDetector to see the ZRINIT signature split across
// Read-call boundaries, the case its pending-buffer logic exists for.
type chunkedReader struct {
	chunks [][]byte
	i      int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.i >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.i])
	c.i++
	return n, nil
}

func TestPassthroughDetectorPassesThroughWhenSignatureAbsent(t *testing.T) {
	d := NewPassthroughDetector(bytes.NewReader([]byte("just plain terminal chatter, no zmodem here")), io.Discard)

	got, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "just plain terminal chatter, no zmodem here", string(got))
	assert.False(t, d.Detected())
}

func TestPassthroughDetectorFindsSignatureSplitAcrossReads(t *testing.T) {
	sig := []byte{'*', '*', 0x18, 'B', '0', '1'}
	prefix := []byte("login: welcome\r\n")
	suffix := []byte("00123456780000000000\r\n")

	chunks := [][]byte{
		append(append([]byte{}, prefix...), sig[:4]...),
		append(append([]byte{}, sig[4:]...), suffix...),
	}
	d := NewPassthroughDetector(&chunkedReader{chunks: chunks}, io.Discard)

	var out bytes.Buffer
	buf := make([]byte, 4)
	for !d.Detected() {
		n, err := d.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			require.NoError(t, err)
		}
	}

	assert.Equal(t, string(prefix), out.String())

	handed := d.Handoff(0)
	ctx := context.Background()
	var handedOut []byte
	for i := 0; i < len(sig)+len(suffix); i++ {
		b, err := handed.ReadByte(ctx)
		require.NoError(t, err)
		handedOut = append(handedOut, b)
	}
	assert.Equal(t, append(append([]byte{}, sig...), suffix...), handedOut)
}
