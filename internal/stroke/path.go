package stroke

import "github.com/gogpu/vecsync/vector"

// Sink receives outline commands. *Path implements it, and so can a
// rasterizer adapter.
type Sink interface {
	MoveTo(p Point)
	LineTo(p Point)
	CubeTo(c1, c2, p Point)
	Close()
}

// Elem is one outline command. Pts holds the end point last.
type Elem struct {
	Op  vector.SegmentOp
	Pts [3]Point
}

// End returns the point the command ends at. Close has no end point.
func (e Elem) End() Point {
	switch e.Op {
	case vector.SegmentMoveTo, vector.SegmentLineTo:
		return e.Pts[0]
	case vector.SegmentQuadTo:
		return e.Pts[1]
	case vector.SegmentCubeTo:
		return e.Pts[2]
	}
	return Point{}
}

// Path records outline commands.
type Path []Elem

func (p *Path) MoveTo(pt Point) {
	*p = append(*p, Elem{Op: vector.SegmentMoveTo, Pts: [3]Point{pt}})
}

func (p *Path) LineTo(pt Point) {
	*p = append(*p, Elem{Op: vector.SegmentLineTo, Pts: [3]Point{pt}})
}

func (p *Path) CubeTo(c1, c2, pt Point) {
	*p = append(*p, Elem{Op: vector.SegmentCubeTo, Pts: [3]Point{c1, c2, pt}})
}

func (p *Path) Close() {
	*p = append(*p, Elem{Op: vector.SegmentClose})
}

// Emit replays the path into s.
func (p Path) Emit(s Sink) {
	for _, e := range p {
		switch e.Op {
		case vector.SegmentMoveTo:
			s.MoveTo(e.Pts[0])
		case vector.SegmentLineTo:
			s.LineTo(e.Pts[0])
		case vector.SegmentCubeTo:
			s.CubeTo(e.Pts[0], e.Pts[1], e.Pts[2])
		case vector.SegmentClose:
			s.Close()
		}
	}
}

// emitReversed replays p backwards from its last point, without the
// initial move. Close commands are not expected.
func (p Path) emitReversed(s Sink) {
	for i := len(p) - 1; i >= 1; i-- {
		end := p[i-1].End()
		switch e := p[i]; e.Op {
		case vector.SegmentLineTo:
			s.LineTo(end)
		case vector.SegmentCubeTo:
			s.CubeTo(e.Pts[1], e.Pts[0], end)
		}
	}
}

// Subpaths returns the number of MoveTo commands in p.
func (p Path) Subpaths() int {
	n := 0
	for _, e := range p {
		if e.Op == vector.SegmentMoveTo {
			n++
		}
	}
	return n
}
