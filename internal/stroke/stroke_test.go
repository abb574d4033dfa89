package stroke

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"golang.org/x/image/math/fixed"
	"seehuhn.de/go/geom/matrix"

	"github.com/gogpu/vecsync/vector"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func moveTo(x, y float64) vector.Segment {
	return vector.Segment{Op: vector.SegmentMoveTo, Args: [3]fixed.Point26_6{vector.QuantizePoint(x, y)}}
}

func lineTo(x, y float64) vector.Segment {
	return vector.Segment{Op: vector.SegmentLineTo, Args: [3]fixed.Point26_6{vector.QuantizePoint(x, y)}}
}

func closePath() vector.Segment { return vector.Segment{Op: vector.SegmentClose} }

func TestFlattenLines(t *testing.T) {
	segs := []vector.Segment{moveTo(0, 0), lineTo(10, 0), lineTo(10, 5), closePath()}
	got := Flatten(segs, matrix.Scale(2, 2), 0)
	want := []Contour{{Points: []Point{{0, 0}, {20, 0}, {20, 10}}, Closed: true}}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenContinuesAfterClose(t *testing.T) {
	segs := []vector.Segment{
		moveTo(1, 1), lineTo(5, 1), closePath(),
		lineTo(1, 9),
		moveTo(3, 3),
	}
	got := Flatten(segs, matrix.Identity, 0)
	want := []Contour{
		{Points: []Point{{1, 1}, {5, 1}}, Closed: true},
		{Points: []Point{{1, 1}, {1, 9}}},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenCurves(t *testing.T) {
	flat := vector.Segment{Op: vector.SegmentQuadTo, Args: [3]fixed.Point26_6{vector.QuantizePoint(5, 0), vector.QuantizePoint(10, 0)}}
	got := Flatten([]vector.Segment{moveTo(0, 0), flat}, matrix.Identity, 0)
	if len(got) != 1 || len(got[0].Points) != 2 {
		t.Fatalf("collinear quad = %v, want a single line", got)
	}

	cubic := vector.Segment{Op: vector.SegmentCubeTo, Args: [3]fixed.Point26_6{
		vector.QuantizePoint(0, 50), vector.QuantizePoint(100, 50), vector.QuantizePoint(100, 0),
	}}
	got = Flatten([]vector.Segment{moveTo(0, 0), cubic}, matrix.Identity, 0.1)
	pts := got[0].Points
	if len(pts) < 8 {
		t.Errorf("cubic flattened to %d points, want more", len(pts))
	}
	if diff := cmp.Diff(Point{100, 0}, pts[len(pts)-1], approx); diff != "" {
		t.Errorf("last point mismatch (-want +got):\n%s", diff)
	}
	// The curve peaks at y = 37.5 for t = 0.5.
	var top float64
	for _, p := range pts {
		top = math.Max(top, p.Y)
	}
	if math.Abs(top-37.5) > 0.1 {
		t.Errorf("peak = %v, want 37.5", top)
	}
}

func TestFlattenDropsEmptySubpaths(t *testing.T) {
	got := Flatten([]vector.Segment{moveTo(1, 1), moveTo(2, 2), closePath()}, matrix.Identity, 0)
	if len(got) != 0 {
		t.Errorf("Flatten = %v, want nothing", got)
	}
}

func line(pts ...Point) Contour { return Contour{Points: pts} }

func TestDash(t *testing.T) {
	tests := []struct {
		name    string
		in      []Contour
		pattern []float64
		offset  float64
		want    []Contour
	}{
		{
			name:    "plain",
			in:      []Contour{line(Point{0, 0}, Point{10, 0})},
			pattern: []float64{2, 3},
			want: []Contour{
				line(Point{0, 0}, Point{2, 0}),
				line(Point{5, 0}, Point{7, 0}),
			},
		},
		{
			name:    "offset",
			in:      []Contour{line(Point{0, 0}, Point{10, 0})},
			pattern: []float64{2, 3},
			offset:  1,
			want: []Contour{
				line(Point{0, 0}, Point{1, 0}),
				line(Point{4, 0}, Point{6, 0}),
				line(Point{9, 0}, Point{10, 0}),
			},
		},
		{
			name:    "odd pattern repeats",
			in:      []Contour{line(Point{0, 0}, Point{10, 0})},
			pattern: []float64{3},
			want: []Contour{
				line(Point{0, 0}, Point{3, 0}),
				line(Point{6, 0}, Point{9, 0}),
			},
		},
		{
			name:    "across corner",
			in:      []Contour{line(Point{0, 0}, Point{4, 0}, Point{4, 4})},
			pattern: []float64{6, 10},
			want:    []Contour{line(Point{0, 0}, Point{4, 0}, Point{4, 2})},
		},
		{
			name:    "closed merges wrap",
			in:      []Contour{{Points: []Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}, Closed: true}},
			pattern: []float64{3, 1},
			offset:  2,
			want: []Contour{
				line(Point{0, 2}, Point{0, 0}, Point{1, 0}),
				line(Point{2, 0}, Point{4, 0}, Point{4, 1}),
				line(Point{4, 2}, Point{4, 4}, Point{3, 4}),
				line(Point{2, 4}, Point{0, 4}, Point{0, 3}),
			},
		},
		{
			name:    "closed uninterrupted",
			in:      []Contour{{Points: []Point{{0, 0}, {4, 0}, {4, 4}}, Closed: true}},
			pattern: []float64{100, 1},
			want:    []Contour{{Points: []Point{{0, 0}, {4, 0}, {4, 4}}, Closed: true}},
		},
		{
			name:    "negative pattern ignored",
			in:      []Contour{line(Point{0, 0}, Point{10, 0})},
			pattern: []float64{2, -1},
			want:    []Contour{line(Point{0, 0}, Point{10, 0})},
		},
		{
			name:    "zero pattern ignored",
			in:      []Contour{line(Point{0, 0}, Point{10, 0})},
			pattern: []float64{0, 0},
			want:    []Contour{line(Point{0, 0}, Point{10, 0})},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dash(tt.in, tt.pattern, tt.offset)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Dash mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// winding returns the nonzero winding number of pt for a path made of
// straight lines. Every subpath is treated as closed.
func winding(p Path, pt Point) int {
	w := 0
	var start, cur Point
	edge := func(a, b Point) {
		if a.Y <= pt.Y {
			if b.Y > pt.Y && b.Sub(a).Cross(pt.Sub(a)) > 0 {
				w++
			}
		} else if b.Y <= pt.Y && b.Sub(a).Cross(pt.Sub(a)) < 0 {
			w--
		}
	}
	for _, e := range p {
		switch e.Op {
		case vector.SegmentMoveTo:
			edge(cur, start)
			start, cur = e.Pts[0], e.Pts[0]
		case vector.SegmentLineTo, vector.SegmentCubeTo:
			edge(cur, e.End())
			cur = e.End()
		case vector.SegmentClose:
			edge(cur, start)
			cur = start
		}
	}
	edge(cur, start)
	return w
}

func bounds(p Path) (minPt, maxPt Point) {
	minPt = Point{math.Inf(1), math.Inf(1)}
	maxPt = Point{math.Inf(-1), math.Inf(-1)}
	for _, e := range p {
		if e.Op == vector.SegmentClose {
			continue
		}
		q := e.End()
		minPt = Point{math.Min(minPt.X, q.X), math.Min(minPt.Y, q.Y)}
		maxPt = Point{math.Max(maxPt.X, q.X), math.Max(maxPt.Y, q.Y)}
	}
	return minPt, maxPt
}

func expand(style Style, cs ...Contour) Path {
	var p Path
	NewExpander(style, 0).Expand(cs, &p)
	return p
}

func TestExpandButtLine(t *testing.T) {
	got := expand(Style{Width: 2}, line(Point{0, 0}, Point{10, 0}))
	want := Path{
		{Op: vector.SegmentMoveTo, Pts: [3]Point{{0, -1}}},
		{Op: vector.SegmentLineTo, Pts: [3]Point{{10, -1}}},
		{Op: vector.SegmentLineTo, Pts: [3]Point{{10, 1}}},
		{Op: vector.SegmentLineTo, Pts: [3]Point{{0, 1}}},
		{Op: vector.SegmentClose},
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("Expand mismatch (-want +got):\n%s", diff)
	}
	if w := winding(got, Point{5, 0}); w == 0 {
		t.Error("point on the line is not covered")
	}
	if w := winding(got, Point{5, 2}); w != 0 {
		t.Errorf("winding outside = %d, want 0", w)
	}
}

func TestExpandCaps(t *testing.T) {
	tests := []struct {
		cap      vector.LineCap
		min, max Point
	}{
		{vector.LineCapButt, Point{0, -1}, Point{10, 1}},
		{vector.LineCapSquare, Point{-1, -1}, Point{11, 1}},
		{vector.LineCapRound, Point{-1, -1}, Point{11, 1}},
	}
	for _, tt := range tests {
		got := expand(Style{Width: 2, Cap: tt.cap}, line(Point{0, 0}, Point{10, 0}))
		lo, hi := bounds(got)
		if diff := cmp.Diff([]Point{tt.min, tt.max}, []Point{lo, hi}, approx); diff != "" {
			t.Errorf("cap %d bounds mismatch (-want +got):\n%s", tt.cap, diff)
		}
		if n := got.Subpaths(); n != 1 {
			t.Errorf("cap %d: %d subpaths, want 1", tt.cap, n)
		}
	}
}

func hasPoint(p Path, q Point) bool {
	for _, e := range p {
		if e.Op != vector.SegmentClose && e.End().Sub(q).Len() < 1e-9 {
			return true
		}
	}
	return false
}

func TestExpandJoins(t *testing.T) {
	corner := line(Point{0, 0}, Point{10, 0}, Point{10, 10})
	tests := []struct {
		name  string
		style Style
		miter bool
	}{
		{"miter", Style{Width: 2, Join: vector.LineJoinMiter, MiterLimit: 4}, true},
		{"miter over limit", Style{Width: 2, Join: vector.LineJoinMiter, MiterLimit: 1}, false},
		{"bevel", Style{Width: 2, Join: vector.LineJoinBevel}, false},
		{"round", Style{Width: 2, Join: vector.LineJoinRound}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expand(tt.style, corner)
			if m := hasPoint(got, Point{11, -1}); m != tt.miter {
				t.Errorf("miter point present = %v, want %v", m, tt.miter)
			}
			if !hasPoint(got, Point{10, -1}) && !tt.miter {
				t.Error("outer join does not start at the first offset")
			}
		})
	}
}

func TestExpandClosedSquare(t *testing.T) {
	sq := Contour{Points: []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}, Closed: true}
	got := expand(Style{Width: 2, MiterLimit: 4}, sq)
	if n := got.Subpaths(); n != 2 {
		t.Fatalf("closed contour: %d subpaths, want 2", n)
	}
	if w := winding(got, Point{5, 0}); w == 0 {
		t.Error("edge band is not covered")
	}
	if w := winding(got, Point{5, 5}); w != 0 {
		t.Errorf("winding at center = %d, want 0", w)
	}
	lo, hi := bounds(got)
	if diff := cmp.Diff([]Point{{-1, -1}, {11, 11}}, []Point{lo, hi}, approx); diff != "" {
		t.Errorf("bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandDegenerate(t *testing.T) {
	dot := line(Point{5, 5}, Point{5, 5})
	if got := expand(Style{Width: 2}, dot); len(got) != 0 {
		t.Errorf("butt dot = %v, want nothing", got)
	}
	got := expand(Style{Width: 2, Cap: vector.LineCapRound}, dot)
	lo, hi := bounds(got)
	if diff := cmp.Diff([]Point{{4, 4}, {6, 6}}, []Point{lo, hi}, approx); diff != "" {
		t.Errorf("round dot bounds mismatch (-want +got):\n%s", diff)
	}
	if got := expand(Style{Width: 0, Cap: vector.LineCapRound}, line(Point{0, 0}, Point{1, 1})); len(got) != 0 {
		t.Errorf("zero width = %v, want nothing", got)
	}
}

func TestStyleOf(t *testing.T) {
	s := &vector.Stroke{
		Width:      vector.Quantize(1.5),
		Cap:        vector.LineCapRound,
		MiterLimit: vector.Quantize(10),
		Dashes:     []fixed.Int26_6{vector.Quantize(2), vector.Quantize(1)},
		DashOffset: vector.Quantize(0.5),
	}
	got := StyleOf(s, 2)
	want := Style{Width: 3, Cap: vector.LineCapRound, MiterLimit: 10}
	if got != want {
		t.Errorf("StyleOf = %+v, want %+v", got, want)
	}
	pat, off := DashPattern(s, 2)
	if diff := cmp.Diff([]float64{4, 2}, pat); diff != "" || off != 1 {
		t.Errorf("DashPattern = %v, %v, want [4 2], 1", pat, off)
	}
}

func BenchmarkExpand(b *testing.B) {
	var pts []Point
	for i := range 200 {
		a := float64(i) * 0.1
		pts = append(pts, Point{100 + 50*math.Cos(a), 100 + 50*math.Sin(a)})
	}
	cs := []Contour{{Points: pts}}
	e := NewExpander(Style{Width: 3, Join: vector.LineJoinRound, Cap: vector.LineCapRound}, 0)
	var p Path
	b.ReportAllocs()
	for b.Loop() {
		p = p[:0]
		e.Expand(cs, &p)
	}
}
