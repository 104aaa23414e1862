package ymodem

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlamine/goxfer/internal/framing"
	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

func pipeChannels(t *testing.T) (wire.Channel, wire.Channel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return wire.NewSerialChannel(a, a, 0), wire.NewSerialChannel(b, b, 0)
}

// runBatchLoopback sends files over one end of a net.Pipe and receives
// them on the other, collecting each received file into a MemFile keyed
// by name so callers can compare against the originals.
func runBatchLoopback(t *testing.T, cfg *Config, files map[string][]byte, order []string) (received map[string]*session.MemFile, sendErr, recvErr error) {
	t.Helper()
	senderCh, receiverCh := pipeChannels(t)

	var infos []*session.FileInfo
	for _, name := range order {
		data := files[name]
		infos = append(infos, &session.FileInfo{
			LocalFile: session.NewMemFile(name, data),
			Filename:  name,
			Size:      int64(len(data)),
		})
	}

	received = make(map[string]*session.MemFile)
	opener := func(meta framing.FileMetadata) (session.LocalFile, error) {
		m := session.NewEmptyMemFile(meta.Name)
		received[meta.Name] = m
		return m, nil
	}

	senderSn := session.NewUploadSession(session.Ymodem, session.Flavor(cfg.Flavor), infos)
	receiverSn := session.NewDownloadSession(session.Ymodem, session.Flavor(cfg.Flavor), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		recvErr = NewReceiver(cfg, receiverCh, receiverSn, opener).RunBatch(ctx)
	}()

	sendErr = NewSender(cfg, senderCh, senderSn).RunBatch(ctx, infos)
	<-done

	return received, sendErr, recvErr
}

func TestYmodemStandardBatchOfTwoFiles(t *testing.T) {
	cfg := &Config{Flavor: Standard, MaxRetries: 10}

	first := make([]byte, 1024+300)
	for i := range first {
		first[i] = byte(i)
	}
	second := []byte("second file, much shorter than one block")

	order := []string{"first.bin", "second.txt"}
	files := map[string][]byte{"first.bin": first, "second.txt": second}

	received, sendErr, recvErr := runBatchLoopback(t, cfg, files, order)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)

	require.Contains(t, received, "first.bin")
	require.Contains(t, received, "second.txt")

	gotFirst := received["first.bin"].Bytes()
	require.GreaterOrEqual(t, len(gotFirst), len(first))
	assert.Equal(t, first, gotFirst[:len(first)])

	gotSecond := received["second.txt"].Bytes()
	require.GreaterOrEqual(t, len(gotSecond), len(second))
	assert.Equal(t, second, gotSecond[:len(second)])
}

func TestYmodemGFlavorBatchStreaming(t *testing.T) {
	cfg := &Config{Flavor: G, MaxRetries: 10}
	data := []byte("streamed without per-block ACKs")
	order := []string{"only.bin"}
	files := map[string][]byte{"only.bin": data}

	received, sendErr, recvErr := runBatchLoopback(t, cfg, files, order)
	require.NoError(t, sendErr)
	require.NoError(t, recvErr)

	got := received["only.bin"].Bytes()
	require.GreaterOrEqual(t, len(got), len(data))
	assert.Equal(t, data, got[:len(data)])
}
