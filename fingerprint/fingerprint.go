// Package fingerprint provides the 128-bit content hashes that identify
// vector items, fonts and page roots.
//
// A Fingerprint is the first 16 bytes of a BLAKE3 digest computed over a
// domain byte and a sequence of length-prefixed parts. The length prefixes
// make the encoding injective: no two distinct part sequences hash the same
// input stream.
package fingerprint

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the width of a fingerprint in bytes.
const Size = 16

// Domain bytes separate hash inputs that must never collide with each other.
const (
	// DomainItem prefixes vector item content.
	DomainItem byte = 0x01

	// DomainBlob prefixes raw byte blobs such as font files.
	DomainBlob byte = 0x02
)

// ErrInvalid is returned by Parse for malformed input.
var ErrInvalid = errors.New("fingerprint: invalid hex string")

// Fingerprint is a fixed-width content hash.
// The zero value is never produced by Sum and is used as "no reference".
type Fingerprint [Size]byte

// Sum hashes the domain byte and parts. Each part is preceded by its
// length as a little-endian uint32.
func Sum(domain byte, parts ...[]byte) Fingerprint {
	h := blake3.New()
	var prefix [5]byte
	prefix[0] = domain
	_, _ = h.Write(prefix[:1]) // blake3 Write never returns an error
	for _, p := range parts {
		binary.LittleEndian.PutUint32(prefix[1:], uint32(len(p)))
		_, _ = h.Write(prefix[1:])
		_, _ = h.Write(p)
	}
	var sum [32]byte
	h.Sum(sum[:0])

	var fp Fingerprint
	copy(fp[:], sum[:Size])
	return fp
}

// OfBlob returns the fingerprint of an opaque byte blob.
func OfBlob(data []byte) Fingerprint {
	return Sum(DomainBlob, data)
}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// String returns the lower-case hex form of f.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 8 hex digits, for logs.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:4])
}

// Compare orders fingerprints bytewise.
func (f Fingerprint) Compare(other Fingerprint) int {
	return bytes.Compare(f[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Parse parses the hex form produced by String.
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	if len(s) != 2*Size {
		return fp, fmt.Errorf("%w: length %d", ErrInvalid, len(s))
	}
	if _, err := hex.Decode(fp[:], []byte(s)); err != nil {
		return fp, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return fp, nil
}

// FromBytes copies a 16-byte slice into a Fingerprint.
func FromBytes(b []byte) (Fingerprint, bool) {
	var fp Fingerprint
	if len(b) != Size {
		return fp, false
	}
	copy(fp[:], b)
	return fp, true
}
