package vector

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/image/math/fixed"
)

// ErrMalformed is returned when an item payload does not match the layout
// of its kind.
var ErrMalformed = errors.New("vector: malformed payload")

// Payload fields are little-endian. Variable-length fields carry a u32 count.

func appendU8(dst []byte, v uint8) []byte   { return append(dst, v) }
func appendU16(dst []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(dst, v) }
func appendU32(dst []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(dst, v) }
func appendI32(dst []byte, v int32) []byte  { return appendU32(dst, uint32(v)) }
func appendI64(dst []byte, v int64) []byte  { return binary.LittleEndian.AppendUint64(dst, uint64(v)) }

func appendBytes(dst, b []byte) []byte {
	dst = appendU32(dst, uint32(len(b)))
	return append(dst, b...)
}

func appendString(dst []byte, s string) []byte {
	dst = appendU32(dst, uint32(len(s)))
	return append(dst, s...)
}

func appendPoint(dst []byte, p fixed.Point26_6) []byte {
	dst = appendI32(dst, int32(p.X))
	return appendI32(dst, int32(p.Y))
}

func appendSegments(dst []byte, segs []Segment) []byte {
	dst = appendU32(dst, uint32(len(segs)))
	for _, s := range segs {
		dst = appendU8(dst, uint8(s.Op))
		for i := 0; i < s.Op.Points(); i++ {
			dst = appendPoint(dst, s.Args[i])
		}
	}
	return dst
}

// payloadReader reads payload fields with bounds checking. The first
// failure is sticky; callers check err once at the end.
type payloadReader struct {
	buf []byte
	off int
	err error
}

func (r *payloadReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.off {
		r.fail("need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *payloadReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *payloadReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *payloadReader) i32() int32 { return int32(r.u32()) }

func (r *payloadReader) i64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *payloadReader) fixed() fixed.Int26_6 { return fixed.Int26_6(r.i32()) }

func (r *payloadReader) point() fixed.Point26_6 {
	x := r.fixed()
	y := r.fixed()
	return fixed.Point26_6{X: x, Y: y}
}

// count reads a u32 element count and rejects counts that cannot fit in the
// remaining bytes given the minimum element size.
func (r *payloadReader) count(minElem int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if minElem > 0 && uint64(n)*uint64(minElem) > uint64(len(r.buf)-r.off) {
		r.fail("count %d exceeds remaining %d bytes", n, len(r.buf)-r.off)
		return 0
	}
	return int(n)
}

func (r *payloadReader) bytes() []byte {
	n := r.count(1)
	b := r.take(n)
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *payloadReader) string() string {
	n := r.count(1)
	return string(r.take(n))
}

func (r *payloadReader) segments() []Segment {
	n := r.count(1)
	if n == 0 {
		return nil
	}
	segs := make([]Segment, n)
	for i := range segs {
		op := SegmentOp(r.u8())
		if op > SegmentClose {
			r.fail("segment %d: bad operator %d", i, op)
			return nil
		}
		segs[i].Op = op
		for j := 0; j < op.Points(); j++ {
			segs[i].Args[j] = r.point()
		}
	}
	return segs
}

// done reports the sticky error, or an error if bytes remain unread.
func (r *payloadReader) done() error {
	if r.err == nil && r.off != len(r.buf) {
		r.fail("%d trailing bytes", len(r.buf)-r.off)
	}
	return r.err
}
