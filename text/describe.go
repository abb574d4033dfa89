package text

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-text/typesetting/font"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

// Default descriptor values for fonts that leave metadata unset.
const (
	defaultWeight  = 400
	defaultStretch = 1000
)

// Describe parses an OpenType font file and returns its descriptor. The
// descriptor's Data field is the blob fingerprint of data, so the same
// file always yields the same font item.
func Describe(data []byte) (*vector.Font, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFontData
	}
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("text: parse font: %w", err)
	}
	return describeFace(face, data), nil
}

func describeFace(face *font.Face, data []byte) *vector.Font {
	d := face.Describe()
	f := &vector.Font{
		Family:     d.Family,
		Weight:     uint16(math.Round(float64(d.Aspect.Weight))),
		Stretch:    uint16(math.Round(float64(d.Aspect.Stretch) * 1000)),
		UnitsPerEm: face.Upem(),
		Data:       fingerprint.OfBlob(data),
	}
	if d.Aspect.Style == font.StyleItalic {
		f.Style = vector.FontStyleItalic
	}
	if f.Weight == 0 {
		f.Weight = defaultWeight
	}
	if f.Stretch == 0 {
		f.Stretch = defaultStretch
	}
	return f
}
