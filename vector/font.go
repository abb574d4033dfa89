package vector

import "github.com/gogpu/vecsync/fingerprint"

// FontStyle is the slant of a font face.
type FontStyle uint8

const (
	FontStyleNormal FontStyle = iota
	FontStyleItalic
)

// Font identifies a font face used by glyph runs. The face data itself is
// addressed by Data, a blob fingerprint of the font file, so consumers
// that already hold the file can resolve outlines without shipping it
// inside every module.
type Font struct {
	Family     string
	Style      FontStyle
	Weight     uint16
	Stretch    uint16 // per mille of normal width
	UnitsPerEm uint16
	Data       fingerprint.Fingerprint
}

// Kind implements Item.
func (*Font) Kind() Kind { return KindFont }

// Refs implements Item.
func (*Font) Refs() []fingerprint.Fingerprint { return nil }

// AppendPayload implements Item.
func (f *Font) AppendPayload(dst []byte) []byte {
	dst = appendString(dst, f.Family)
	dst = appendU8(dst, uint8(f.Style))
	dst = appendU16(dst, f.Weight)
	dst = appendU16(dst, f.Stretch)
	dst = appendU16(dst, f.UnitsPerEm)
	return append(dst, f.Data[:]...)
}

func decodeFont(r *payloadReader) *Font {
	f := &Font{
		Family:     r.string(),
		Style:      FontStyle(r.u8()),
		Weight:     r.u16(),
		Stretch:    r.u16(),
		UnitsPerEm: r.u16(),
	}
	if b := r.take(fingerprint.Size); b != nil {
		copy(f.Data[:], b)
	}
	return f
}
