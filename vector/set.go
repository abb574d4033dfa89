package vector

import (
	"slices"

	"github.com/gogpu/vecsync/fingerprint"
)

// Set is a set of fingerprints.
type Set map[fingerprint.Fingerprint]struct{}

// Add inserts fp into s.
func (s Set) Add(fp fingerprint.Fingerprint) { s[fp] = struct{}{} }

// Has reports whether fp is in s.
func (s Set) Has(fp fingerprint.Fingerprint) bool {
	_, ok := s[fp]
	return ok
}

// Sorted returns the members of s in ascending byte order.
func (s Set) Sorted() []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, 0, len(s))
	for fp := range s {
		out = append(out, fp)
	}
	slices.SortFunc(out, fingerprint.Fingerprint.Compare)
	return out
}

// Difference returns the members of s not in other, sorted.
func (s Set) Difference(other Set) []fingerprint.Fingerprint {
	var out []fingerprint.Fingerprint
	for fp := range s {
		if !other.Has(fp) {
			out = append(out, fp)
		}
	}
	slices.SortFunc(out, fingerprint.Fingerprint.Compare)
	return out
}

// Union returns a new set holding the members of both sets.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for fp := range s {
		out.Add(fp)
	}
	for fp := range other {
		out.Add(fp)
	}
	return out
}
