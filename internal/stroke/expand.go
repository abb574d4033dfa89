package stroke

import (
	"math"

	"github.com/gogpu/vecsync/vector"
)

// Style is a stroke style in device units.
type Style struct {
	Width      float64
	Cap        vector.LineCap
	Join       vector.LineJoin
	MiterLimit float64
}

// StyleOf converts s to device units. scale is the length in device
// units of one unit of s's coordinate space.
func StyleOf(s *vector.Stroke, scale float64) Style {
	return Style{
		Width:      vector.ToFloat(s.Width) * scale,
		Cap:        s.Cap,
		Join:       s.Join,
		MiterLimit: vector.ToFloat(s.MiterLimit),
	}
}

// DashPattern returns s's dash lengths and offset in device units.
func DashPattern(s *vector.Stroke, scale float64) ([]float64, float64) {
	if len(s.Dashes) == 0 {
		return nil, 0
	}
	pat := make([]float64, len(s.Dashes))
	for i, d := range s.Dashes {
		pat[i] = vector.ToFloat(d) * scale
	}
	return pat, vector.ToFloat(s.DashOffset) * scale
}

// Expander converts stroked contours into fill outlines. An Expander is
// not safe for concurrent use; it reuses its buffers between calls.
type Expander struct {
	style Style
	tol   float64
	out   Sink

	fwd, back Path

	start, last         Point
	startNorm, startTan Point
	lastNorm, lastTan   Point

	// joinThresh is the sine of the smallest turn that gets a join.
	joinThresh float64
}

// NewExpander returns an expander for style. A non-positive tolerance
// selects DefaultTolerance.
func NewExpander(style Style, tolerance float64) *Expander {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if style.MiterLimit < 1 {
		style.MiterLimit = 1
	}
	return &Expander{style: style, tol: tolerance}
}

// Expand writes the outline of the stroked contours to out. Strokes of
// non-positive width produce nothing.
func (e *Expander) Expand(cs []Contour, out Sink) {
	if !(e.style.Width > 0) {
		return
	}
	e.out = out
	e.joinThresh = 2 * e.tol / e.style.Width
	for _, c := range cs {
		e.contour(c)
	}
	e.out = nil
}

func (e *Expander) contour(c Contour) {
	e.fwd, e.back = e.fwd[:0], e.back[:0]
	if len(c.Points) == 0 {
		return
	}
	e.start, e.last = c.Points[0], c.Points[0]
	for _, p := range c.Points[1:] {
		e.lineTo(p)
	}
	if !c.Closed {
		e.finishOpen()
		return
	}
	if e.last != e.start {
		e.lineTo(e.start)
	}
	e.finishClosed()
}

func (e *Expander) normal(tan Point) Point {
	return tan.Perp().Scale(0.5 * e.style.Width / tan.Len())
}

func (e *Expander) lineTo(p Point) {
	if p == e.last {
		return
	}
	tan := p.Sub(e.last)
	e.join(tan)
	norm := e.normal(tan)
	e.fwd.LineTo(p.Sub(norm))
	e.back.LineTo(p.Add(norm))
	e.last, e.lastTan, e.lastNorm = p, tan, norm
}

// join connects the offsets of the previous segment to a segment leaving
// e.last along tan.
func (e *Expander) join(tan Point) {
	norm := e.normal(tan)
	p0 := e.last
	if len(e.fwd) == 0 {
		e.fwd.MoveTo(p0.Sub(norm))
		e.back.MoveTo(p0.Add(norm))
		e.startTan, e.startNorm = tan, norm
		return
	}

	ab, cd := e.lastTan, tan
	cross, dot := ab.Cross(cd), ab.Dot(cd)
	hypot := math.Hypot(cross, dot)
	if dot > 0 && math.Abs(cross) < hypot*e.joinThresh {
		e.bevel(p0, norm)
		return
	}

	switch e.style.Join {
	case vector.LineJoinMiter:
		ml := e.style.MiterLimit
		if 2*hypot < (hypot+dot)*ml*ml {
			e.miter(p0, norm, ab, cd, cross)
		}
		e.bevel(p0, norm)
	case vector.LineJoinRound:
		angle := math.Atan2(cross, dot)
		if angle > 0 {
			e.back.LineTo(p0.Add(norm))
			arcTo(&e.fwd, p0, e.lastNorm.Neg(), angle)
		} else {
			e.fwd.LineTo(p0.Sub(norm))
			arcTo(&e.back, p0, e.lastNorm, angle)
		}
	default:
		e.bevel(p0, norm)
	}
}

func (e *Expander) bevel(p0, norm Point) {
	e.fwd.LineTo(p0.Sub(norm))
	e.back.LineTo(p0.Add(norm))
}

// miter adds the outer miter point on whichever side the path turns away
// from and routes the inner side through the vertex.
func (e *Expander) miter(p0, norm, ab, cd Point, cross float64) {
	switch {
	case cross > 0:
		prev, next := p0.Sub(e.lastNorm), p0.Sub(norm)
		h := ab.Cross(next.Sub(prev)) / cross
		e.fwd.LineTo(next.Sub(cd.Scale(h)))
		e.back.LineTo(p0)
	case cross < 0:
		prev, next := p0.Add(e.lastNorm), p0.Add(norm)
		h := ab.Cross(next.Sub(prev)) / cross
		e.back.LineTo(next.Sub(cd.Scale(h)))
		e.fwd.LineTo(p0)
	}
}

func (e *Expander) finishOpen() {
	if len(e.fwd) == 0 {
		e.dot()
		return
	}
	e.fwd.Emit(e.out)
	e.cap(e.last, e.lastNorm.Neg(), false)
	e.back.emitReversed(e.out)
	e.cap(e.start, e.startNorm, true)
}

func (e *Expander) finishClosed() {
	if len(e.fwd) == 0 {
		e.dot()
		return
	}
	e.join(e.startTan)
	e.fwd.Emit(e.out)
	e.out.Close()
	e.out.MoveTo(e.back[len(e.back)-1].End())
	e.back.emitReversed(e.out)
	e.out.Close()
}

// dot draws the cap shape of a zero-length subpath. Butt caps draw
// nothing.
func (e *Expander) dot() {
	r := e.style.Width / 2
	c := e.start
	switch e.style.Cap {
	case vector.LineCapRound:
		e.out.MoveTo(Point{c.X + r, c.Y})
		arcTo(e.out, c, Point{r, 0}, 2*math.Pi)
		e.out.Close()
	case vector.LineCapSquare:
		e.out.MoveTo(Point{c.X - r, c.Y - r})
		e.out.LineTo(Point{c.X + r, c.Y - r})
		e.out.LineTo(Point{c.X + r, c.Y + r})
		e.out.LineTo(Point{c.X - r, c.Y + r})
		e.out.Close()
	}
}

// cap connects center+norm to center-norm around the end of the stroke
// and closes the outline when closing is set.
func (e *Expander) cap(center, norm Point, closing bool) {
	switch e.style.Cap {
	case vector.LineCapRound:
		arcTo(e.out, center, norm, math.Pi)
	case vector.LineCapSquare:
		ext := norm.Perp()
		e.out.LineTo(center.Add(norm).Add(ext))
		e.out.LineTo(center.Sub(norm).Add(ext))
		if !closing {
			e.out.LineTo(center.Sub(norm))
		}
	default:
		if !closing {
			e.out.LineTo(center.Sub(norm))
		}
	}
	if closing {
		e.out.Close()
	}
}

// arcTo draws a circular arc around center starting at center+from and
// sweeping angle radians, one cubic per quarter turn at most.
func arcTo(s Sink, center, from Point, angle float64) {
	n := int(math.Ceil(math.Abs(angle) / (math.Pi / 2)))
	if n < 1 {
		n = 1
	}
	step := angle / float64(n)
	a := from.Angle()
	r := from.Len()
	k := math.Sin(step) * (math.Sqrt(4+3*math.Tan(step/2)*math.Tan(step/2)) - 1) / 3
	for range n {
		s0, c0 := math.Sincos(a)
		s1, c1 := math.Sincos(a + step)
		p0 := Point{center.X + r*c0, center.Y + r*s0}
		p1 := Point{center.X + r*c1, center.Y + r*s1}
		s.CubeTo(
			Point{p0.X - k*r*s0, p0.Y + k*r*c0},
			Point{p1.X + k*r*s1, p1.Y - k*r*c1},
			p1,
		)
		a += step
	}
}
