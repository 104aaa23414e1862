package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferErrorIsMatchesByKindOnly(t *testing.T) {
	err := WrapError(ErrTimeout, "waiting for ACK", errors.New("deadline exceeded"))
	assert.True(t, errors.Is(err, Timeout))
	assert.False(t, errors.Is(err, Integrity))
}

func TestIsTimeoutAndIsIntegrityHelpers(t *testing.T) {
	assert.True(t, IsTimeout(NewError(ErrTimeout, "no response")))
	assert.True(t, IsIntegrity(NewError(ErrIntegrity, "bad CRC")))
	assert.False(t, IsTimeout(NewError(ErrIntegrity, "bad CRC")))
}

func TestIsProtocolKindHelper(t *testing.T) {
	assert.True(t, IsProtocolKind(NewError(ErrProtocolKind, "unexpected block number")))
	assert.False(t, IsProtocolKind(NewError(ErrIntegrity, "bad CRC")))
}

func TestIsCancelledMatchesEitherCancelKind(t *testing.T) {
	assert.True(t, IsCancelled(NewError(ErrLocalCancel, "user pressed ctrl-c")))
	assert.True(t, IsCancelled(NewError(ErrRemoteCancel, "peer sent CAN x5")))
	assert.False(t, IsCancelled(NewError(ErrTimeout, "no response")))
}

func TestTransferErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("pipe closed")
	err := WrapError(ErrIO, "writing to channel", cause)
	assert.ErrorIs(t, err, cause)
}

func TestTransferErrorMessageIncludesCause(t *testing.T) {
	err := WrapError(ErrFile, "opening destination", fmt.Errorf("permission denied"))
	assert.Contains(t, err.Error(), "permission denied")
	assert.Contains(t, err.Error(), "file")
}
