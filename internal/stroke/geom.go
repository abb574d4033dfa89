package stroke

import "math"

// Point is a device-space point or vector.
type Point struct {
	X, Y float64
}

func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

func (p Point) Neg() Point { return Point{-p.X, -p.Y} }

func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Cross returns the z component of the 3D cross product.
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }

func (p Point) Len() float64 { return math.Hypot(p.X, p.Y) }

// Perp returns p rotated by 90 degrees counter-clockwise.
func (p Point) Perp() Point { return Point{-p.Y, p.X} }

func (p Point) Angle() float64 { return math.Atan2(p.Y, p.X) }

func (p Point) Lerp(q Point, t float64) Point {
	return Point{p.X + (q.X-p.X)*t, p.Y + (q.Y-p.Y)*t}
}

// distanceToSegment returns the distance from p to the segment ab.
func distanceToSegment(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 < 1e-20 {
		return p.Sub(a).Len()
	}
	t := p.Sub(a).Dot(ab) / l2
	switch {
	case t < 0:
		return p.Sub(a).Len()
	case t > 1:
		return p.Sub(b).Len()
	}
	return p.Sub(a.Add(ab.Scale(t))).Len()
}
