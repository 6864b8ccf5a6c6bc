package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	w := NewWriter()
	w.WriteU8(7)
	w.WriteU32(0xdeadbeef)
	w.WriteU64(1 << 40)
	w.WriteF64(-2.5)
	w.WriteString("hv.Position")
	w.WriteBlob([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	require.Equal(t, byte(7), r.ReadU8())
	require.Equal(t, uint32(0xdeadbeef), r.ReadU32())
	require.Equal(t, uint64(1<<40), r.ReadU64())
	require.Equal(t, -2.5, r.ReadF64())
	require.Equal(t, "hv.Position", r.ReadString())
	require.Equal(t, []byte{1, 2, 3}, r.ReadBlob())
	require.NoError(t, r.Err())
	require.Zero(t, r.Remaining())
}

func TestLittleEndianLayout(t *testing.T) {
	w := NewWriter()
	w.WriteU32(1)
	w.WriteString("ab")
	require.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 'a', 'b'}, w.Bytes())
}

func TestShortReadIsSticky(t *testing.T) {
	w := NewWriter()
	w.WriteU32(100) // claims a 100 byte blob
	w.WriteU8(1)

	r := NewReader(w.Bytes())
	require.Nil(t, r.ReadBlob())
	require.ErrorIs(t, r.Err(), ErrShortRead)

	require.Zero(t, r.ReadU32())
	require.ErrorIs(t, r.Err(), ErrShortRead)
}

func TestTrailingBytesTolerated(t *testing.T) {
	w := NewWriter()
	w.WriteBlob([]byte("first"))
	w.WriteBlob([]byte("second"))

	r := NewReader(w.Bytes())
	require.Equal(t, []byte("first"), r.ReadBlob())
	require.NoError(t, r.Err())
	require.Positive(t, r.Remaining())
}

func TestWriteTo(t *testing.T) {
	w := NewWriter()
	w.WriteString("x")
	var buf bytes.Buffer
	n, err := w.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(w.Len()), n)
	require.Equal(t, w.Bytes(), buf.Bytes())
}
