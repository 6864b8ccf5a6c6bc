package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortRead is reported when the stream ends inside a field.
var ErrShortRead = errors.New("wire: unexpected end of stream")

// Reader decodes fields written by Writer. The first short read is sticky:
// later reads return zero values and Err keeps reporting the original failure,
// so a decoder can read a whole record and check once.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: reading %s at offset %d (need %d, have %d)",
			ErrShortRead, what, r.off, n, len(r.data)-r.off)
		return false
	}
	return true
}

// ReadU8 reads 1 byte.
func (r *Reader) ReadU8() byte {
	if !r.need(1, "u8") {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadU32 reads 4 bytes little-endian.
func (r *Reader) ReadU32() uint32 {
	if !r.need(4, "u32") {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadU64 reads 8 bytes little-endian.
func (r *Reader) ReadU64() uint64 {
	if !r.need(8, "u64") {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadF64 reads a float64 written by WriteF64.
func (r *Reader) ReadF64() float64 {
	return math.Float64frombits(r.ReadU64())
}

// ReadString reads a length-prefixed string.
func (r *Reader) ReadString() string {
	n := r.ReadU32()
	if !r.need(int(n), "string") {
		return ""
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s
}

// ReadBlob reads a length-prefixed blob. The result aliases the input buffer.
func (r *Reader) ReadBlob() []byte {
	n := r.ReadU32()
	if !r.need(int(n), "blob") {
		return nil
	}
	b := r.data[r.off : r.off+int(n) : r.off+int(n)]
	r.off += int(n)
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first decoding failure, if any.
func (r *Reader) Err() error {
	return r.err
}
