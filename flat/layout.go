package flat

import (
	"encoding/binary"
	"math"
	"strconv"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

// Version is the format version written by this package.
const (
	VersionMajor = 1
	VersionMinor = 0
	Version      = VersionMajor<<8 | VersionMinor
)

var (
	moduleMagic = [4]byte{'V', 'S', 'Y', 'M'}
	patchMagic  = [4]byte{'V', 'S', 'Y', 'P'}
)

const (
	moduleHeaderSize = 40
	patchHeaderSize  = 64
	descriptorSize   = 36
	refSize          = fingerprint.Size
	pageSize         = 24
	opSize           = 32

	flagRequired = 1 << 0
)

var le = binary.LittleEndian

// Format identifies the kind of an encoded buffer.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatModule
	FormatPatch
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatModule:
		return "module"
	case FormatPatch:
		return "patch"
	default:
		return "unknown"
	}
}

// Sniff reports whether buf holds a module or a patch by its magic. It
// does not validate anything else.
func Sniff(buf []byte) (Format, error) {
	if len(buf) < 4 {
		return FormatUnknown, decodeErr(BadMagic, 0, "buffer of %d bytes", len(buf))
	}
	switch [4]byte(buf[:4]) {
	case moduleMagic:
		return FormatModule, nil
	case patchMagic:
		return FormatPatch, nil
	default:
		return FormatUnknown, decodeErr(BadMagic, 0, "magic %q", buf[:4])
	}
}

// checkVersion validates the magic and version fields of a header.
func checkVersion(buf []byte, magic [4]byte) error {
	if len(buf) < 6 {
		return decodeErr(TruncatedPayload, 0, "buffer of %d bytes has no header", len(buf))
	}
	if [4]byte(buf[:4]) != magic {
		return decodeErr(BadMagic, 0, "magic %q, want %q", buf[:4], magic[:])
	}
	if v := le.Uint16(buf[4:]); v>>8 != VersionMajor {
		return decodeErr(VersionMismatch, 4, "version %d.%d, want %d.x", v>>8, v&0xff, VersionMajor)
	}
	return nil
}

// tables locates the sections shared by modules and patches.
type tables struct {
	buf        []byte
	itemCount  int
	descOff    int
	refOff     int
	refCount   int
	payloadOff int
	payloadLen int
}

// layoutSize sums section sizes in 64-bit arithmetic. Counts are at most
// 2^32-1 and unit sizes are small, so no term overflows.
func layoutSize(header int, counts ...[2]uint64) uint64 {
	total := uint64(header)
	for _, c := range counts {
		total += c[0] * c[1]
	}
	return total
}

// descriptor is a decoded item descriptor.
type descriptor struct {
	fp         fingerprint.Fingerprint
	kind       vector.Kind
	required   bool
	payloadOff int
	payloadLen int
	refOff     int
	refCount   int
}

// descriptor reads and bounds-checks descriptor i.
func (t *tables) descriptor(i int) (descriptor, error) {
	off := t.descOff + i*descriptorSize
	b := t.buf[off : off+descriptorSize]
	var d descriptor
	copy(d.fp[:], b[:16])
	d.kind = vector.Kind(b[16])
	d.required = b[17]&flagRequired != 0
	pOff, pLen := uint64(le.Uint32(b[20:])), uint64(le.Uint32(b[24:]))
	rOff, rCnt := uint64(le.Uint32(b[28:])), uint64(le.Uint32(b[32:]))
	if pOff+pLen > uint64(t.payloadLen) {
		return d, decodeErr(OffsetOutOfBounds, off+20, "item %d payload [%d, %d) outside region of %d bytes", i, pOff, pOff+pLen, t.payloadLen)
	}
	if rOff+rCnt > uint64(t.refCount) {
		return d, decodeErr(OffsetOutOfBounds, off+28, "item %d references [%d, %d) outside table of %d", i, rOff, rOff+rCnt, t.refCount)
	}
	d.payloadOff, d.payloadLen = int(pOff), int(pLen)
	d.refOff, d.refCount = int(rOff), int(rCnt)
	return d, nil
}

func (t *tables) payload(d descriptor) []byte {
	start := t.payloadOff + d.payloadOff
	return t.buf[start : start+d.payloadLen : start+d.payloadLen]
}

func (t *tables) refs(d descriptor) []fingerprint.Fingerprint {
	if d.refCount == 0 {
		return nil
	}
	out := make([]fingerprint.Fingerprint, d.refCount)
	start := t.refOff + d.refOff*refSize
	for i := range out {
		copy(out[i][:], t.buf[start+i*refSize:])
	}
	return out
}

// item decodes the item behind d, verifying its fingerprint if asked.
func (t *tables) item(i int, d descriptor, verify bool) (vector.Item, error) {
	descAt := t.descOff + i*descriptorSize
	if !d.kind.Known() && d.required {
		return nil, decodeErr(UnknownRequiredKind, descAt+16, "item %d has required kind %d", i, d.kind)
	}
	payload := t.payload(d)
	refs := t.refs(d)
	if verify {
		if got := vector.FingerprintOfRaw(d.kind, payload, refs); got != d.fp {
			return nil, decodeErr(FingerprintMismatch, descAt, "item %d content hashes to %s, descriptor says %s", i, got.Short(), d.fp.Short())
		}
	}
	it, err := vector.DecodeItem(d.kind, payload, refs, !d.required)
	if err != nil {
		return nil, &DecodeError{Kind: TruncatedPayload, Offset: t.payloadOff + d.payloadOff, Detail: "item " + strconv.Itoa(i), Err: err}
	}
	return it, nil
}

// sorted checks that descriptor fingerprints ascend strictly.
func (t *tables) sorted() error {
	for i := 1; i < t.itemCount; i++ {
		a := t.descOff + (i-1)*descriptorSize
		b := t.descOff + i*descriptorSize
		prev := fingerprint.Fingerprint(t.buf[a : a+16])
		cur := fingerprint.Fingerprint(t.buf[b : b+16])
		if prev.Compare(cur) >= 0 {
			return decodeErr(FingerprintMismatch, b, "descriptor %d not in ascending fingerprint order", i)
		}
	}
	return nil
}

// search returns the index of fp among the sorted descriptors.
func (t *tables) search(fp fingerprint.Fingerprint) (int, bool) {
	lo, hi := 0, t.itemCount
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		off := t.descOff + mid*descriptorSize
		if fingerprint.Fingerprint(t.buf[off:off+16]).Compare(fp) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < t.itemCount {
		off := t.descOff + lo*descriptorSize
		if fingerprint.Fingerprint(t.buf[off:off+16]) == fp {
			return lo, true
		}
	}
	return lo, false
}

func readPage(b []byte) vector.Page {
	var p vector.Page
	copy(p.Root[:], b[:16])
	p.Width = fixedAt(b[16:])
	p.Height = fixedAt(b[20:])
	return p
}

func appendPage(dst []byte, p vector.Page) []byte {
	dst = append(dst, p.Root[:]...)
	dst = le.AppendUint32(dst, uint32(p.Width))
	return le.AppendUint32(dst, uint32(p.Height))
}

func fixedAt(b []byte) fixed.Int26_6 { return fixed.Int26_6(int32(le.Uint32(b))) }

// fits32 reports whether n fits the u32 fields of the layout.
func fits32(n int) bool { return n >= 0 && uint64(n) <= math.MaxUint32 }
