package vector

import (
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
)

func pt(x, y float64) fixed.Point26_6 { return QuantizePoint(x, y) }

func rectPath(w, h float64, c Color) *Path {
	return &Path{
		Segments: []Segment{
			{Op: SegmentMoveTo, Args: [3]fixed.Point26_6{pt(0, 0)}},
			{Op: SegmentLineTo, Args: [3]fixed.Point26_6{pt(w, 0)}},
			{Op: SegmentLineTo, Args: [3]fixed.Point26_6{pt(w, h)}},
			{Op: SegmentLineTo, Args: [3]fixed.Point26_6{pt(0, h)}},
			{Op: SegmentClose},
		},
		Fill: &Fill{Color: c},
	}
}

func sampleItems() []Item {
	font := &Font{Family: "go", Weight: 400, Stretch: 1000, UnitsPerEm: 2048, Data: fingerprint.OfBlob([]byte("font"))}
	fontFP := FingerprintOf(font)
	path := rectPath(10, 20, RGBA(255, 0, 0, 255))
	path.Stroke = &Stroke{
		Color:      RGBA(0, 0, 0, 255),
		Width:      Quantize(1.5),
		Cap:        LineCapRound,
		Join:       LineJoinBevel,
		MiterLimit: Quantize(4),
		Dashes:     []fixed.Int26_6{Quantize(2), Quantize(1)},
		DashOffset: Quantize(0.5),
	}
	run := &GlyphRun{
		Font:  fontFP,
		Size:  Quantize(12),
		Color: RGBA(0, 0, 0, 255),
		Glyphs: []Glyph{
			{ID: 36, Advance: Quantize(7.2)},
			{ID: 72, Advance: Quantize(6.1), Offset: pt(0, -1)},
		},
		Text: "Hé",
	}
	img := &Image{Format: "png", Width: 2, Height: 3, Size: pt(20, 30), Data: []byte{1, 2, 3}}
	group := &Group{
		Transform: QuantizeTransform([6]float64{2, 0, 0, 2, 5, 5}),
		Clip:      rectPath(100, 100, 0).Segments,
		Children: []Child{
			{Offset: pt(1, 2), Ref: FingerprintOf(path)},
			{Offset: pt(3, 4), Ref: FingerprintOf(run)},
			{Offset: pt(1, 2), Ref: FingerprintOf(path)},
		},
	}
	return []Item{
		path,
		run,
		img,
		group,
		&Group{Transform: IdentityTransform},
		&Link{Target: "https://example.com", Size: pt(50, 10)},
		&Annotation{Name: "note", Content: "hello", Size: pt(5, 5)},
		font,
	}
}
