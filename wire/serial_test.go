package wire

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialChannelWriteThenReadByteRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	writer := NewSerialChannel(a, a, 0)
	reader := NewSerialChannel(b, b, 0)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := writer.Write(ctx, []byte("hi"))
		assert.NoError(t, err)
	}()

	first, err := reader.ReadByte(ctx)
	require.NoError(t, err)
	second, err := reader.ReadByte(ctx)
	require.NoError(t, err)
	<-done

	assert.Equal(t, byte('h'), first)
	assert.Equal(t, byte('i'), second)
}

func TestSerialChannelReadByteHonorsContextCancellation(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	ch := NewSerialChannel(a, a, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ch.ReadByte(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_ = b
}

func TestPrefixReaderServesPrefixBeforeUnderlying(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	pr := &PrefixReader{Prefix: []byte("ab"), Reader: a}
	buf := make([]byte, 2)
	n, err := pr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Write([]byte("cd"))
	}()
	n, err = pr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "cd", string(buf[:n]))
	<-done
}
