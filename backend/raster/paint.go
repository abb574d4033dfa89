package raster

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	xvector "golang.org/x/image/vector"
	"seehuhn.de/go/geom/matrix"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/internal/memo"
	"github.com/gogpu/vecsync/internal/stroke"
	"github.com/gogpu/vecsync/text"
	"github.com/gogpu/vecsync/vector"
)

// painter draws one page into dst. Coverage is rasterized into alpha
// masks restricted to the shape's bounds, intersected with the active
// clip and composited with source-over.
type painter struct {
	dst    *image.RGBA
	get    func(fingerprint.Fingerprint) (vector.Item, bool)
	fonts  text.OutlineSource
	images *memo.Cache[fingerprint.Fingerprint, image.Image]
	z      *xvector.Rasterizer
}

func (p *painter) draw(fp fingerprint.Fingerprint, m matrix.Matrix, clip *image.Alpha) error {
	it, ok := p.get(fp)
	if !ok {
		return fmt.Errorf("raster: item %s not mirrored", fp.Short())
	}
	switch it := it.(type) {
	case *vector.Path:
		p.path(it, m, clip)
	case *vector.GlyphRun:
		return p.glyphs(it, m, clip)
	case *vector.Image:
		return p.image(fp, it, m, clip)
	case *vector.Group:
		return p.group(it, m, clip)
	}
	// Links, annotations, fonts and unknown items have no pixels.
	return nil
}

func (p *painter) group(g *vector.Group, m matrix.Matrix, clip *image.Alpha) error {
	inner := matrix.Matrix(g.Transform.Float()).Mul(m)
	if g.Clip != nil {
		cs := stroke.Flatten(g.Clip, inner, stroke.DefaultTolerance)
		var visible bool
		clip, visible = p.clipMask(cs, clip)
		if !visible {
			return nil
		}
	}
	for _, c := range g.Children {
		cm := matrix.Translate(vector.ToFloat(c.Offset.X), vector.ToFloat(c.Offset.Y)).Mul(inner)
		if err := p.draw(c.Ref, cm, clip); err != nil {
			return err
		}
	}
	return nil
}

func (p *painter) path(it *vector.Path, m matrix.Matrix, clip *image.Alpha) {
	cs := stroke.Flatten(it.Segments, m, stroke.DefaultTolerance)
	if it.Fill != nil {
		p.fill(cs, it.Fill.Rule, it.Fill.Color, clip)
	}
	if it.Stroke == nil {
		return
	}
	scale := lengthScale(m)
	if pat, off := stroke.DashPattern(it.Stroke, scale); pat != nil {
		cs = stroke.Dash(cs, pat, off)
	}
	var out stroke.Path
	stroke.NewExpander(stroke.StyleOf(it.Stroke, scale), stroke.DefaultTolerance).Expand(cs, &out)
	if len(out) == 0 {
		return
	}
	r := p.clipBounds(outlineBounds(out), clip)
	if r.Empty() {
		return
	}
	p.z.Reset(r.Dx(), r.Dy())
	out.Emit(sink{z: p.z, off: r.Min})
	p.composite(p.coverage(r), it.Stroke.Color, clip)
}

func (p *painter) glyphs(g *vector.GlyphRun, m matrix.Matrix, clip *image.Alpha) error {
	if p.fonts == nil {
		return nil
	}
	var cs []stroke.Contour
	pen := 0.0
	for _, gl := range g.Glyphs {
		segs, err := p.fonts.Outline(g.Font, gl.ID, g.Size)
		if err != nil {
			return fmt.Errorf("raster: %w", err)
		}
		x := pen + vector.ToFloat(gl.Offset.X)
		y := vector.ToFloat(gl.Offset.Y)
		cs = append(cs, stroke.Flatten(segs, matrix.Translate(x, y).Mul(m), stroke.DefaultTolerance)...)
		pen += vector.ToFloat(gl.Advance)
	}
	p.fill(cs, vector.FillNonZero, g.Color, clip)
	return nil
}

func (p *painter) image(fp fingerprint.Fingerprint, im *vector.Image, m matrix.Matrix, clip *image.Alpha) error {
	src, err := p.images.GetOrCreate(fp, func() (image.Image, error) {
		return decodeImage(im)
	})
	if err != nil {
		return err
	}
	b := src.Bounds()
	if b.Empty() {
		return nil
	}
	sx := vector.ToFloat(im.Size.X) / float64(b.Dx())
	sy := vector.ToFloat(im.Size.Y) / float64(b.Dy())
	t := matrix.Matrix{sx, 0, 0, sy, -float64(b.Min.X) * sx, -float64(b.Min.Y) * sy}.Mul(m)
	aff := f64.Aff3{t[0], t[2], t[4], t[1], t[3], t[5]}
	var opts *xdraw.Options
	if clip != nil {
		opts = &xdraw.Options{DstMask: clip}
	}
	xdraw.BiLinear.Transform(p.dst, aff, src, b, xdraw.Over, opts)
	return nil
}

// fill paints the contours with rule. Even-odd coverage is the XOR of
// the coverage of each contour, so a single self-intersecting contour
// fills as under the nonzero rule.
func (p *painter) fill(cs []stroke.Contour, rule vector.FillRule, c vector.Color, clip *image.Alpha) {
	if len(cs) == 0 || uint8(c) == 0 {
		return
	}
	r := p.clipBounds(contourBounds(cs), clip)
	if r.Empty() {
		return
	}
	if rule != vector.FillEvenOdd || len(cs) == 1 {
		p.z.Reset(r.Dx(), r.Dy())
		for _, ct := range cs {
			addContour(p.z, ct, r.Min)
		}
		p.composite(p.coverage(r), c, clip)
		return
	}
	var acc *image.Alpha
	for _, ct := range cs {
		p.z.Reset(r.Dx(), r.Dy())
		addContour(p.z, ct, r.Min)
		cov := p.coverage(r)
		if acc == nil {
			acc = cov
			continue
		}
		for i, a := range cov.Pix {
			b := acc.Pix[i]
			acc.Pix[i] = uint8(int(a) + int(b) - 2*int(a)*int(b)/255)
		}
	}
	p.composite(acc, c, clip)
}

// clipMask returns the coverage of cs intersected with the current clip,
// and false when nothing remains visible.
func (p *painter) clipMask(cs []stroke.Contour, clip *image.Alpha) (*image.Alpha, bool) {
	r := p.clipBounds(contourBounds(cs), clip)
	if r.Empty() {
		return nil, false
	}
	p.z.Reset(r.Dx(), r.Dy())
	for _, ct := range cs {
		addContour(p.z, ct, r.Min)
	}
	mask := p.coverage(r)
	intersect(mask, clip)
	return mask, true
}

// coverage renders the rasterizer's path into a new mask covering r.
func (p *painter) coverage(r image.Rectangle) *image.Alpha {
	mask := image.NewAlpha(r)
	p.z.DrawOp = xdraw.Src
	p.z.Draw(mask, r, image.Opaque, image.Point{})
	return mask
}

func (p *painter) composite(mask *image.Alpha, c vector.Color, clip *image.Alpha) {
	intersect(mask, clip)
	xdraw.DrawMask(p.dst, mask.Rect, image.NewUniform(c.NRGBA()), image.Point{}, mask, mask.Rect.Min, xdraw.Over)
}

// clipBounds limits r to the canvas and the clip.
func (p *painter) clipBounds(r image.Rectangle, clip *image.Alpha) image.Rectangle {
	r = r.Intersect(p.dst.Rect)
	if clip != nil {
		r = r.Intersect(clip.Rect)
	}
	return r
}

// intersect multiplies mask by clip.
func intersect(mask, clip *image.Alpha) {
	if clip == nil {
		return
	}
	r := mask.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := mask.PixOffset(x, y)
			if mask.Pix[i] == 0 {
				continue
			}
			mask.Pix[i] = uint8(int(mask.Pix[i]) * int(clip.AlphaAt(x, y).A) / 255)
		}
	}
}

func addContour(z *xvector.Rasterizer, c stroke.Contour, off image.Point) {
	ox, oy := float64(off.X), float64(off.Y)
	for i, pt := range c.Points {
		x, y := float32(pt.X-ox), float32(pt.Y-oy)
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

// sink feeds stroke outlines to a rasterizer whose origin is off.
type sink struct {
	z   *xvector.Rasterizer
	off image.Point
}

func (s sink) pt(p stroke.Point) (float32, float32) {
	return float32(p.X - float64(s.off.X)), float32(p.Y - float64(s.off.Y))
}

func (s sink) MoveTo(p stroke.Point) { s.z.MoveTo(s.pt(p)) }

func (s sink) LineTo(p stroke.Point) { s.z.LineTo(s.pt(p)) }

func (s sink) CubeTo(c1, c2, p stroke.Point) {
	x1, y1 := s.pt(c1)
	x2, y2 := s.pt(c2)
	x, y := s.pt(p)
	s.z.CubeTo(x1, y1, x2, y2, x, y)
}

func (s sink) Close() { s.z.ClosePath() }

func contourBounds(cs []stroke.Contour) image.Rectangle {
	b := newBox()
	for _, c := range cs {
		for _, pt := range c.Points {
			b.add(pt)
		}
	}
	return b.rect()
}

func outlineBounds(p stroke.Path) image.Rectangle {
	b := newBox()
	for _, e := range p {
		n := 0
		switch e.Op {
		case vector.SegmentMoveTo, vector.SegmentLineTo:
			n = 1
		case vector.SegmentCubeTo:
			n = 3
		}
		for _, pt := range e.Pts[:n] {
			b.add(pt)
		}
	}
	return b.rect()
}

type box struct{ x0, y0, x1, y1 float64 }

func newBox() box { return box{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)} }

func (b *box) add(p stroke.Point) {
	b.x0, b.y0 = math.Min(b.x0, p.X), math.Min(b.y0, p.Y)
	b.x1, b.y1 = math.Max(b.x1, p.X), math.Max(b.y1, p.Y)
}

// rect returns the pixel rectangle covering b, clamped to a range that
// converts to int safely.
func (b box) rect() image.Rectangle {
	if b.x0 > b.x1 || math.IsNaN(b.x0) || math.IsNaN(b.y0) || math.IsNaN(b.x1) || math.IsNaN(b.y1) {
		return image.Rectangle{}
	}
	const limit = 1 << 24
	clamp := func(v float64) int { return int(math.Max(-limit, math.Min(limit, v))) }
	return image.Rect(clamp(math.Floor(b.x0)), clamp(math.Floor(b.y0)), clamp(math.Ceil(b.x1)), clamp(math.Ceil(b.y1)))
}

// lengthScale returns the factor by which m scales lengths, averaged over
// directions.
func lengthScale(m matrix.Matrix) float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}
