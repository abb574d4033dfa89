package stroke

import (
	"math"

	"golang.org/x/image/math/fixed"
	"seehuhn.de/go/geom/matrix"

	"github.com/gogpu/vecsync/vector"
)

// DefaultTolerance is the flattening tolerance in device pixels.
const DefaultTolerance = 0.25

// maxDepth bounds curve subdivision.
const maxDepth = 16

// Contour is a flattened subpath in device space.
type Contour struct {
	Points []Point
	Closed bool
}

// Flatten maps segs through m and approximates curves by line runs whose
// distance from the curve is below tolerance. A drawing command after
// Close continues from the start of the closed subpath. Subpaths without
// a drawing command are dropped.
func Flatten(segs []vector.Segment, m matrix.Matrix, tolerance float64) []Contour {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	f := flattener{m: m, tol: tolerance}
	for _, s := range segs {
		switch s.Op {
		case vector.SegmentMoveTo:
			f.flush()
			f.start = f.point(s.Args[0])
			f.last = f.start
		case vector.SegmentLineTo:
			f.begin()
			f.last = f.point(s.Args[0])
			f.cur.Points = append(f.cur.Points, f.last)
		case vector.SegmentQuadTo:
			f.begin()
			c, p := f.point(s.Args[0]), f.point(s.Args[1])
			f.quad(f.last, c, p, 0)
			f.last = p
		case vector.SegmentCubeTo:
			f.begin()
			c1, c2, p := f.point(s.Args[0]), f.point(s.Args[1]), f.point(s.Args[2])
			f.cubic(f.last, c1, c2, p, 0)
			f.last = p
		case vector.SegmentClose:
			if len(f.cur.Points) > 0 {
				f.cur.Closed = true
				f.flush()
			}
			f.last = f.start
		}
	}
	f.flush()
	return f.out
}

type flattener struct {
	m           matrix.Matrix
	tol         float64
	start, last Point
	cur         Contour
	out         []Contour
}

func (f *flattener) point(a fixed.Point26_6) Point {
	x, y := vector.ToFloat(a.X), vector.ToFloat(a.Y)
	m := f.m
	return Point{m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]}
}

func (f *flattener) begin() {
	if len(f.cur.Points) == 0 {
		f.cur.Points = append(f.cur.Points, f.last)
	}
}

func (f *flattener) flush() {
	if len(f.cur.Points) >= 2 {
		f.out = append(f.out, f.cur)
	}
	f.cur = Contour{}
}

func (f *flattener) quad(p0, p1, p2 Point, depth int) {
	if depth >= maxDepth || !finite(p1) || distanceToSegment(p1, p0, p2) < f.tol {
		f.cur.Points = append(f.cur.Points, p2)
		return
	}
	q0 := p0.Lerp(p1, 0.5)
	q1 := p1.Lerp(p2, 0.5)
	mid := q0.Lerp(q1, 0.5)
	f.quad(p0, q0, mid, depth+1)
	f.quad(mid, q1, p2, depth+1)
}

func (f *flattener) cubic(p0, p1, p2, p3 Point, depth int) {
	d := math.Max(distanceToSegment(p1, p0, p3), distanceToSegment(p2, p0, p3))
	if depth >= maxDepth || math.IsNaN(d) || d < f.tol {
		f.cur.Points = append(f.cur.Points, p3)
		return
	}
	q0 := p0.Lerp(p1, 0.5)
	q1 := p1.Lerp(p2, 0.5)
	q2 := p2.Lerp(p3, 0.5)
	r0 := q0.Lerp(q1, 0.5)
	r1 := q1.Lerp(q2, 0.5)
	mid := r0.Lerp(r1, 0.5)
	f.cubic(p0, q0, r0, mid, depth+1)
	f.cubic(mid, r1, q2, p3, depth+1)
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
