package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/renproject/id"
)

// MaxCompactSizeLen is the maximum number of bytes used by a compact size.
const MaxCompactSizeLen = 9

// AppendCompactSize appends the compact size encoding of v to buf. Values
// below 0xFD are a single byte. Larger values are a one byte discriminant
// followed by a little-endian u16, u32 or u64.
func AppendCompactSize(buf []byte, v uint64) []byte {
	switch {
	case v < 0xFD:
		return append(buf, byte(v))
	case v <= math.MaxUint16:
		return binary.LittleEndian.AppendUint16(append(buf, 0xFD), uint16(v))
	case v <= math.MaxUint32:
		return binary.LittleEndian.AppendUint32(append(buf, 0xFE), uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(append(buf, 0xFF), v)
	}
}

// CompactSizeLen returns the number of bytes used to encode v.
func CompactSizeLen(v uint64) int {
	switch {
	case v < 0xFD:
		return 1
	case v <= math.MaxUint16:
		return 3
	case v <= math.MaxUint32:
		return 5
	default:
		return 9
	}
}

// DecodeCompactSize reads a compact size from the start of data. It returns
// the value and the number of bytes consumed. Non-canonical encodings (a value
// that would fit in a shorter form) are rejected.
func DecodeCompactSize(data []byte) (uint64, int, error) {
	r := newReader("DecodeCompactSize", data)
	v := r.compactSize()
	if r.err != nil {
		return 0, 0, r.err
	}
	return v, r.off, nil
}

// reader consumes a payload. The first error is sticky: once a read fails,
// all later reads return zero values and the error is reported by finish.
type reader struct {
	fn  string
	buf []byte
	off int
	err error
}

func newReader(fn string, buf []byte) *reader {
	return &reader{fn: fn, buf: buf}
}

func (r *reader) fail(err error, format string, args ...interface{}) {
	if r.err == nil {
		r.err = messageError(r.fn, err, fmt.Sprintf(format, args...))
	}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.fail(ErrTruncatedInput, "need %v bytes at offset %v, have %v", n, r.off, r.remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	b := make([]byte, r.remaining())
	copy(b, r.buf[r.off:])
	r.off = len(r.buf)
	return b
}

func (r *reader) uint8() uint8 {
	b := r.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	switch v := r.uint8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(ErrMalformedField, "boolean byte %v", v)
		return false
	}
}

func (r *reader) uint16BE() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) int32() int32 {
	return int32(r.uint32())
}

func (r *reader) uint64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) int64() int64 {
	return int64(r.uint64())
}

func (r *reader) hash() id.Hash {
	hash := id.Hash{}
	copy(hash[:], r.next(len(hash)))
	return hash
}

func (r *reader) array(dst []byte) {
	copy(dst, r.next(len(dst)))
}

func (r *reader) compactSize() uint64 {
	disc := r.uint8()
	if r.err != nil {
		return 0
	}
	var v, lo uint64
	switch disc {
	case 0xFD:
		b := r.next(2)
		if b == nil {
			return 0
		}
		v, lo = uint64(binary.LittleEndian.Uint16(b)), 0xFD
	case 0xFE:
		b := r.next(4)
		if b == nil {
			return 0
		}
		v, lo = uint64(binary.LittleEndian.Uint32(b)), 0x10000
	case 0xFF:
		b := r.next(8)
		if b == nil {
			return 0
		}
		v, lo = binary.LittleEndian.Uint64(b), 0x100000000
	default:
		return uint64(disc)
	}
	if v < lo {
		r.fail(ErrMalformedField, "non-canonical compact size %v with discriminant %#x", v, disc)
		return 0
	}
	return v
}

// count reads the length prefix of a sequence whose elements occupy at least
// minElemLen bytes each. A count that could not possibly be satisfied by the
// remaining bytes is malformed; this bounds allocations by the payload size.
func (r *reader) count(what string, minElemLen int) int {
	n := r.compactSize()
	if r.err != nil {
		return 0
	}
	if n > uint64(r.remaining()/minElemLen) {
		r.fail(ErrMalformedField, "%v count %v exceeds what %v remaining bytes can hold", what, n, r.remaining())
		return 0
	}
	return int(n)
}

func (r *reader) varBytes(what string, max int) []byte {
	n := r.compactSize()
	if r.err != nil {
		return nil
	}
	if n > uint64(max) {
		r.fail(ErrMalformedField, "%v length %v exceeds maximum %v", what, n, max)
		return nil
	}
	b := r.next(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) varString(what string, max int) string {
	return string(r.varBytes(what, max))
}

// finish returns the first error encountered, or ErrTrailingBytes if the
// payload was not fully consumed.
func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.remaining() != 0 {
		return messageError(r.fn, ErrTrailingBytes, fmt.Sprintf("%v unconsumed bytes", r.remaining()))
	}
	return nil
}

// writer builds a payload.
type writer struct {
	buf []byte
}

func newWriter(capacity int) *writer {
	return &writer{buf: make([]byte, 0, capacity)}
}

func (w *writer) bytes() []byte {
	return w.buf
}

func (w *writer) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) bool(v bool) {
	if v {
		w.uint8(1)
		return
	}
	w.uint8(0)
}

func (w *writer) uint16BE(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) int32(v int32) {
	w.uint32(uint32(v))
}

func (w *writer) uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) int64(v int64) {
	w.uint64(uint64(v))
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) hash(hash id.Hash) {
	w.buf = append(w.buf, hash[:]...)
}

func (w *writer) compactSize(v uint64) {
	w.buf = AppendCompactSize(w.buf, v)
}

func (w *writer) varBytes(b []byte) {
	w.compactSize(uint64(len(b)))
	w.raw(b)
}

func (w *writer) varString(s string) {
	w.compactSize(uint64(len(s)))
	w.buf = append(w.buf, s...)
}
