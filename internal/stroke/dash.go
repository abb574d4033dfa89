package stroke

import "math"

// Dash splits contours into dashes. pattern alternates on and off
// lengths in device units and repeats; an odd-length pattern is used
// twice. offset shifts the start of the pattern along each contour.
// Contours are returned unchanged when the pattern is empty, sums to
// zero or holds a negative length.
//
// A closed contour that starts and ends inside a dash has those two
// pieces merged, and a closed contour the pattern never interrupts stays
// closed.
func Dash(cs []Contour, pattern []float64, offset float64) []Contour {
	pat, total := normalizeDash(pattern)
	if total <= 0 {
		return cs
	}
	var out []Contour
	for _, c := range cs {
		out = dashContour(out, c, pat, total, offset)
	}
	return out
}

func normalizeDash(pattern []float64) ([]float64, float64) {
	var total float64
	for _, v := range pattern {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0
		}
		total += v
	}
	if len(pattern)%2 == 1 {
		pattern = append(append([]float64(nil), pattern...), pattern...)
		total *= 2
	}
	return pattern, total
}

func dashContour(out []Contour, c Contour, pat []float64, total, offset float64) []Contour {
	pts := c.Points
	if len(pts) < 2 {
		return out
	}
	if c.Closed {
		pts = append(pts[:len(pts):len(pts)], pts[0])
	}

	phase := math.Mod(offset, total)
	if phase < 0 {
		phase += total
	}
	i := 0
	for n := 0; n < len(pat) && phase >= pat[i]; n++ {
		phase -= pat[i]
		i = (i + 1) % len(pat)
	}
	left := math.Max(pat[i]-phase, 0)
	on := i%2 == 0
	startOn := on
	toggles := 0
	base := len(out)

	var cur []Point
	if on {
		cur = []Point{pts[0]}
	}
	for k := 1; k < len(pts); k++ {
		a, b := pts[k-1], pts[k]
		seg := b.Sub(a).Len()
		t := 0.0
		for seg-t > left {
			t += left
			p := a.Lerp(b, t/seg)
			if on {
				out = append(out, Contour{Points: append(cur, p)})
				cur = nil
			} else {
				cur = []Point{p}
			}
			on = !on
			toggles++
			i = (i + 1) % len(pat)
			left = pat[i]
		}
		left -= seg - t
		if on {
			cur = append(cur, b)
		}
	}
	tail := on && len(cur) > 1
	if tail {
		out = append(out, Contour{Points: cur})
	}

	if !c.Closed || !startOn || !tail {
		return out
	}
	if toggles == 0 {
		out[len(out)-1] = c
		return out
	}
	if len(out)-base >= 2 {
		last := out[len(out)-1]
		out[base].Points = append(last.Points, out[base].Points[1:]...)
		out = out[:len(out)-1]
	}
	return out
}
