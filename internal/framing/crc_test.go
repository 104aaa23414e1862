package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16CCITTCheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), CRC16CCITT([]byte("123456789")))
}

func TestBlockCRC32CheckValue(t *testing.T) {
	assert.Equal(t, uint32(CRC32CheckValue), BlockCRC32([]byte("123456789")))
}

func TestBlockCRC16WireConventionSeed(t *testing.T) {
	// The wire CRC-16 (seed 0x0000) and CRC16CCITT (seed 0xFFFF) must
	// disagree on a nonempty input, or the two-function split documented
	// in DESIGN.md's Open Question #4 would be pointless.
	data := []byte("123456789")
	assert.NotEqual(t, CRC16CCITT(data), BlockCRC16(data))
	assert.Equal(t, uint16(0), BlockCRC16(nil))
}

func TestUpdateCRC16MatchesBlockCRC16(t *testing.T) {
	data := []byte("the quick brown fox")
	var crc uint16
	for _, b := range data {
		crc = UpdateCRC16(crc, b)
	}
	assert.Equal(t, BlockCRC16(data), crc)
}

func TestUpdateCRC32MatchesBlockCRC32(t *testing.T) {
	data := []byte("the quick brown fox")
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = UpdateCRC32(crc, b)
	}
	assert.Equal(t, BlockCRC32(data), FinalizeCRC32(crc))
}

func TestChecksum8Wraps(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = 1
	}
	assert.Equal(t, byte(0), Checksum8(data))
}
