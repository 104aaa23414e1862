package framing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscaperUnescaperRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, ZDLE, XON, XOFF, 0x7F, 'a', 'b', 0x0D, '@', 0x0D}
	var buf bytes.Buffer
	esc := NewEscaper(&buf, false, false)
	_, err := esc.Write(data)
	require.NoError(t, err)

	unesc := NewUnescaper(&buf)
	var got []byte
	for i := 0; i < len(data); i++ {
		b, err := unesc.ReadByte()
		require.NoError(t, err)
		got = append(got, byte(b))
	}
	assert.Equal(t, data, got)
}

func TestUnescaperResolvesZCRCSentinels(t *testing.T) {
	for _, tc := range []struct {
		escaped byte
		want    int
	}{
		{ZCRCE, GOTCRCE},
		{ZCRCG, GOTCRCG},
		{ZCRCQ, GOTCRCQ},
		{ZCRCW, GOTCRCW},
	} {
		r := bytes.NewReader([]byte{ZDLE, tc.escaped})
		got, err := NewUnescaper(r).ReadByte()
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestUnescaperResolvesFiveCANAbort(t *testing.T) {
	r := bytes.NewReader([]byte{ZDLE, CAN, CAN, CAN, CAN, CAN})
	got, err := NewUnescaper(r).ReadByte()
	require.NoError(t, err)
	assert.Equal(t, int(GOTCAN), got)
}

func TestEscaperAlwaysEscapesZDLE(t *testing.T) {
	var buf bytes.Buffer
	esc := NewEscaper(&buf, false, false)
	require.NoError(t, esc.WriteByte(ZDLE))
	assert.Equal(t, []byte{ZDLE, ZDLE ^ 0x40}, buf.Bytes())
}
