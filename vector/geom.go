package vector

import (
	"image/color"
	"math"

	"golang.org/x/image/math/fixed"
)

// SegmentOp is a path segment operator. The values match sfnt.SegmentOp so
// glyph outlines convert without a lookup table.
type SegmentOp uint8

const (
	SegmentMoveTo SegmentOp = iota
	SegmentLineTo
	SegmentQuadTo
	SegmentCubeTo
	SegmentClose
)

// Points returns how many of Segment.Args the operator uses.
func (op SegmentOp) Points() int {
	switch op {
	case SegmentMoveTo, SegmentLineTo:
		return 1
	case SegmentQuadTo:
		return 2
	case SegmentCubeTo:
		return 3
	default:
		return 0
	}
}

// String returns a human-readable name for the operator.
func (op SegmentOp) String() string {
	switch op {
	case SegmentMoveTo:
		return "MoveTo"
	case SegmentLineTo:
		return "LineTo"
	case SegmentQuadTo:
		return "QuadTo"
	case SegmentCubeTo:
		return "CubeTo"
	case SegmentClose:
		return "Close"
	default:
		return unknownStr
	}
}

// Segment is one path command with up to three quantized points.
// Args beyond Op.Points() are always zero.
type Segment struct {
	Op   SegmentOp
	Args [3]fixed.Point26_6
}

// FillRule selects how self-intersecting paths are filled.
type FillRule uint8

const (
	FillNonZero FillRule = iota
	FillEvenOdd
)

// LineCap represents line endpoint shapes.
type LineCap uint8

const (
	LineCapButt LineCap = iota
	LineCapRound
	LineCapSquare
)

// LineJoin represents line join shapes.
type LineJoin uint8

const (
	LineJoinMiter LineJoin = iota
	LineJoinRound
	LineJoinBevel
)

// Color is a non-premultiplied RGBA color packed as 0xRRGGBBAA.
type Color uint32

// RGBA packs four 8-bit channels.
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a))
}

// NRGBA unpacks c into an image/color value.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: uint8(c >> 24), G: uint8(c >> 16), B: uint8(c >> 8), A: uint8(c)}
}

// Opaque reports whether the alpha channel is 0xff.
func (c Color) Opaque() bool {
	return uint8(c) == 0xff
}

// Transform is an affine matrix [a b c d e f] in 20.12 fixed point, mapping
// (x, y) to (a*x + c*y + e, b*x + d*y + f). The element order matches
// seehuhn.de/go/geom/matrix.Matrix.
type Transform [6]fixed.Int52_12

// IdentityTransform is the transform that leaves points unchanged.
var IdentityTransform = Transform{1 << 12, 0, 0, 1 << 12, 0, 0}

// IsIdentity reports whether t equals IdentityTransform.
func (t Transform) IsIdentity() bool {
	return t == IdentityTransform
}

// Float returns the coefficients as float64 values.
func (t Transform) Float() [6]float64 {
	var out [6]float64
	for i, v := range t {
		out[i] = float64(v) / (1 << 12)
	}
	return out
}

// Precision of quantized geometry, in units per point.
const (
	coordScale     = 64
	transformScale = 1 << 12
)

// Quantize rounds v to the nearest 1/64, the precision of all stored
// coordinates. Rounding is half away from zero; NaN maps to zero and
// out-of-range values saturate.
func Quantize(v float64) fixed.Int26_6 {
	return fixed.Int26_6(quantize(v, coordScale, math.MinInt32, math.MaxInt32))
}

// QuantizePoint quantizes both coordinates of a point.
func QuantizePoint(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{X: Quantize(x), Y: Quantize(y)}
}

// QuantizeTransform quantizes [a b c d e f] coefficients. Translation
// components use coordinate precision so that a translated item and an item
// placed at the same offset hash identically after lowering.
func QuantizeTransform(m [6]float64) Transform {
	var t Transform
	for i := 0; i < 4; i++ {
		t[i] = fixed.Int52_12(quantize(m[i], transformScale, math.MinInt64/2, math.MaxInt64/2))
	}
	for i := 4; i < 6; i++ {
		t[i] = fixed.Int52_12(int64(Quantize(m[i])) << 6)
	}
	return t
}

func quantize(v, scale float64, lo, hi int64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	s := math.Round(v * scale)
	if s <= float64(lo) {
		return lo
	}
	if s >= float64(hi) {
		return hi
	}
	return int64(s)
}

// ToFloat converts a quantized coordinate back to float64.
func ToFloat(v fixed.Int26_6) float64 {
	return float64(v) / coordScale
}
