package frame

import "seehuhn.de/go/geom/vec"

// PathOp is a path command.
type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	QuadTo
	CubeTo
	ClosePath
)

// PathElem is one path command. QuadTo uses Pts[0:2], CubeTo Pts[0:3].
type PathElem struct {
	Op  PathOp
	Pts [3]vec.Vec2
}

// Path is a sequence of path commands.
type Path []PathElem

// MoveTo starts a new subpath.
func (p *Path) MoveTo(x, y float64) {
	*p = append(*p, PathElem{Op: MoveTo, Pts: [3]vec.Vec2{{X: x, Y: y}}})
}

// LineTo adds a line segment.
func (p *Path) LineTo(x, y float64) {
	*p = append(*p, PathElem{Op: LineTo, Pts: [3]vec.Vec2{{X: x, Y: y}}})
}

// QuadTo adds a quadratic Bézier segment.
func (p *Path) QuadTo(cx, cy, x, y float64) {
	*p = append(*p, PathElem{Op: QuadTo, Pts: [3]vec.Vec2{{X: cx, Y: cy}, {X: x, Y: y}}})
}

// CubeTo adds a cubic Bézier segment.
func (p *Path) CubeTo(c1x, c1y, c2x, c2y, x, y float64) {
	*p = append(*p, PathElem{Op: CubeTo, Pts: [3]vec.Vec2{{X: c1x, Y: c1y}, {X: c2x, Y: c2y}, {X: x, Y: y}}})
}

// Close closes the current subpath.
func (p *Path) Close() {
	*p = append(*p, PathElem{Op: ClosePath})
}

// Rect returns a closed rectangle path with its top-left corner at the
// origin.
func Rect(w, h float64) Path {
	var p Path
	p.MoveTo(0, 0)
	p.LineTo(w, 0)
	p.LineTo(w, h)
	p.LineTo(0, h)
	p.Close()
	return p
}
