package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStateLatchesTerminal(t *testing.T) {
	sn := NewUploadSession(Xmodem, "", nil)
	sn.SetState(Transfer)
	sn.SetState(Abort)
	require.Equal(t, Abort, sn.State())

	sn.SetState(End)
	assert.Equal(t, Abort, sn.State(), "state must not leave a terminal state once entered")
}

func TestCancelRequestIsIdempotentAndSticky(t *testing.T) {
	sn := NewUploadSession(Xmodem, "", nil)
	assert.False(t, sn.CancelRequested())

	sn.RequestCancel(true)
	assert.True(t, sn.CancelRequested())
	assert.True(t, sn.KeepPartial())

	sn.RequestCancel(false)
	assert.True(t, sn.CancelRequested())
	assert.False(t, sn.KeepPartial(), "the most recent request's keepPartial wins")
}

func TestAddBytesIsMonotonic(t *testing.T) {
	info := &FileInfo{Filename: "a.bin", Size: 100}
	sn := NewUploadSession(Xmodem, "", []*FileInfo{info})
	sn.SetState(Transfer)
	sn.BeginFile(info)

	sn.AddBytes(40)
	sn.AddBytes(40)
	sn.AddBytes(20)

	assert.Equal(t, int64(100), info.BytesTransferred)
	assert.Equal(t, int64(3), sn.Observe().BlocksTransferred)
	assert.Equal(t, 100.0, sn.PercentComplete())
}

func TestSkipRequestClears(t *testing.T) {
	sn := NewUploadSession(Xmodem, "", nil)
	sn.RequestSkip(true)
	assert.True(t, sn.SkipRequested())
	sn.ClearSkip()
	assert.False(t, sn.SkipRequested())
}

func TestMessageLogCounts(t *testing.T) {
	sn := NewUploadSession(Xmodem, "", nil)
	sn.AddInfoMessage("starting")
	sn.AddErrorMessage("block 3 failed CRC")
	sn.AddInfoMessage("retrying")

	assert.Equal(t, 2, sn.InfoCount())
	assert.Equal(t, 1, sn.ErrorCount())
	assert.Equal(t, 3, sn.MessageCount())

	last, ok := sn.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "retrying", last.Text)

	first, ok := sn.Message(0)
	require.True(t, ok)
	assert.True(t, first.IsInfo())
}

func TestXmodemDownloadPercentCompleteAlwaysZero(t *testing.T) {
	info := &FileInfo{Filename: "unknown-size", Size: 0}
	sn := NewDownloadSession(Xmodem, "", "/tmp")
	sn.BeginFile(info)
	sn.AddBytes(500)
	assert.Equal(t, 0.0, sn.PercentComplete())
}

func TestTransferRateBeforeStartIsNegativeOne(t *testing.T) {
	sn := NewUploadSession(Xmodem, "", nil)
	assert.Equal(t, -1.0, sn.TransferRate())
}
