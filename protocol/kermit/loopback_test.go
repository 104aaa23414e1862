package kermit

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlamine/goxfer/session"
	"github.com/dlamine/goxfer/wire"
)

func pipeChannels(t *testing.T) (wire.Channel, wire.Channel) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return wire.NewSerialChannel(a, a, 0), wire.NewSerialChannel(b, b, 0)
}

func TestKermitBatchOfTwoFilesLoopback(t *testing.T) {
	cfg := DefaultConfig()
	senderCh, receiverCh := pipeChannels(t)

	first := make([]byte, 250)
	for i := range first {
		first[i] = byte(i)
	}
	second := []byte("a second, shorter kermit file")

	firstInfo := &session.FileInfo{LocalFile: session.NewMemFile("one.bin", first), Filename: "one.bin", Size: int64(len(first))}
	secondInfo := &session.FileInfo{LocalFile: session.NewMemFile("two.txt", second), Filename: "two.txt", Size: int64(len(second))}
	files := []*session.FileInfo{firstInfo, secondInfo}

	received := make(map[string]*session.MemFile)
	opener := func(filename string) (session.LocalFile, error) {
		m := session.NewEmptyMemFile(filename)
		received[filename] = m
		return m, nil
	}

	senderSn := session.NewUploadSession(session.Kermit, "", files)
	receiverSn := session.NewDownloadSession(session.Kermit, "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	var recvErr error
	go func() {
		defer close(done)
		recvErr = NewReceiver(cfg, receiverCh, receiverSn, opener).RunBatch(ctx)
	}()

	sendErr := NewSender(cfg, senderCh, senderSn).RunBatch(ctx, files)
	<-done

	require.NoError(t, sendErr)
	require.NoError(t, recvErr)

	require.Contains(t, received, "one.bin")
	require.Contains(t, received, "two.txt")
	assert.Equal(t, first, received["one.bin"].Bytes())
	assert.Equal(t, second, received["two.txt"].Bytes())
}

// TestKermitReceiverSkipsFileMidTransfer exercises spec.md §4.6's
// skip-anywhere capability: the receiver requests a skip partway through
// a file's data packets, and the sender must still see a clean EOF/ACK
// exchange for that file and go on to send the next one normally — the
// other three engines can only skip before a file starts, not mid-stream.
func TestKermitReceiverSkipsFileMidTransfer(t *testing.T) {
	cfg := DefaultConfig()
	senderCh, receiverCh := pipeChannels(t)

	skipped := make([]byte, cfg.PacketSize*40)
	for i := range skipped {
		skipped[i] = byte(i)
	}
	kept := []byte("this file arrives after the skip")

	skippedInfo := &session.FileInfo{LocalFile: session.NewMemFile("skip-me.bin", skipped), Filename: "skip-me.bin", Size: int64(len(skipped))}
	keptInfo := &session.FileInfo{LocalFile: session.NewMemFile("keep-me.txt", kept), Filename: "keep-me.txt", Size: int64(len(kept))}
	files := []*session.FileInfo{skippedInfo, keptInfo}

	received := make(map[string]*session.MemFile)
	opener := func(filename string) (session.LocalFile, error) {
		m := session.NewEmptyMemFile(filename)
		received[filename] = m
		return m, nil
	}

	senderSn := session.NewUploadSession(session.Kermit, "", files)
	receiverSn := session.NewDownloadSession(session.Kermit, "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	var recvErr error
	go func() {
		defer close(done)
		recvErr = NewReceiver(cfg, receiverCh, receiverSn, opener).RunBatch(ctx)
	}()

	// Fire the skip request once the receiver has actually ingested some
	// data packets for skip-me.bin, so the sender is partway through
	// streaming the file rather than idle at its start.
	go func() {
		snapshots := receiverSn.Subscribe()
		for {
			select {
			case snap := <-snapshots:
				if snap.CurrentFile == "skip-me.bin" && snap.BytesTransferred > 0 {
					receiverSn.RequestSkip(true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	sendErr := NewSender(cfg, senderCh, senderSn).RunBatch(ctx, files)
	<-done

	require.NoError(t, sendErr)
	require.NoError(t, recvErr)

	receivedFiles := receiverSn.Files()
	require.Len(t, receivedFiles, 2)
	assert.True(t, receivedFiles[0].Skipped, "skip-me.bin should be flagged skipped on the receiver's own record")
	assert.Less(t, receivedFiles[0].BytesTransferred, int64(len(skipped)), "skip should have cut the file off before it fully arrived")
	assert.Equal(t, kept, received["keep-me.txt"].Bytes())
}
