package frame

import (
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"
)

// Position is a point on a page.
type Position struct {
	Page  int
	Point vec.Vec2
}

// FindSpan returns the position of the glyph produced from span. If no
// glyph carries exactly that span, the glyph whose span number is closest
// within the same source file is used. The position is the glyph origin on
// the baseline, in page coordinates.
func FindSpan(doc *Document, span Span) (Position, bool) {
	if span.Detached() {
		return Position{}, false
	}
	s := spanSearch{target: span}
	for i := range doc.Pages {
		s.page = i
		if s.frame(&doc.Pages[i].Frame, matrix.Identity) {
			return s.best, true
		}
	}
	return s.best, s.found
}

type spanSearch struct {
	target Span
	page   int

	found    bool
	best     Position
	bestDist uint64
}

// frame walks f with the accumulated transform m. It returns true on an
// exact match.
func (s *spanSearch) frame(f *Frame, m matrix.Matrix) bool {
	for _, p := range f.Items {
		switch it := p.Item.(type) {
		case *Group:
			child := it.Transform.Mul(matrix.Translate(p.Pos.X, p.Pos.Y)).Mul(m)
			if s.frame(&it.Frame, child) {
				return true
			}
		case *Text:
			if s.text(it, p.Pos, m) {
				return true
			}
		}
	}
	return false
}

func (s *spanSearch) text(t *Text, pos vec.Vec2, m matrix.Matrix) bool {
	x := pos.X
	for _, g := range t.Glyphs {
		if g.Span.File == s.target.File && !g.Span.Detached() {
			d := distance(g.Span.Number, s.target.Number)
			if !s.found || d < s.bestDist {
				s.found = true
				s.bestDist = d
				s.best = Position{Page: s.page, Point: apply(m, x, pos.Y)}
			}
			if d == 0 {
				return true
			}
		}
		x += g.XAdvance
	}
	return false
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// apply maps (x, y) through m.
func apply(m matrix.Matrix, x, y float64) vec.Vec2 {
	return vec.Vec2{
		X: m[0]*x + m[2]*y + m[4],
		Y: m[1]*x + m[3]*y + m[5],
	}
}
