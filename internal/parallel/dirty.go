package parallel

import (
	"math/bits"
	"sync/atomic"
)

// PageSet is a fixed-size bitmap of page indexes, one bit per page, packed
// into atomic words. Marking and taking are lock-free and safe for
// concurrent use.
type PageSet struct {
	words []atomic.Uint64
	n     int
}

// NewPageSet returns a set for n pages with every page clear.
func NewPageSet(n int) *PageSet {
	n = max(n, 0)
	return &PageSet{words: make([]atomic.Uint64, (n+63)/64), n: n}
}

// Len returns the number of pages the set covers.
func (s *PageSet) Len() int { return s.n }

// Mark sets page i. Out-of-range indexes are ignored.
func (s *PageSet) Mark(i int) {
	if i < 0 || i >= s.n {
		return
	}
	s.words[i/64].Or(1 << (i & 63))
}

// Clear clears page i and reports whether it was set.
func (s *PageSet) Clear(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	bit := uint64(1) << (i & 63)
	return s.words[i/64].And(^bit)&bit != 0
}

// MarkAll sets every page.
func (s *PageSet) MarkAll() {
	full := s.n / 64
	for i := range full {
		s.words[i].Store(^uint64(0))
	}
	if rem := s.n % 64; rem > 0 {
		s.words[full].Store(1<<rem - 1)
	}
}

// Has reports whether page i is set.
func (s *PageSet) Has(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	return s.words[i/64].Load()&(1<<(i&63)) != 0
}

// Count returns the number of set pages.
func (s *PageSet) Count() int {
	c := 0
	for i := range s.words {
		c += bits.OnesCount64(s.words[i].Load())
	}
	return c
}

// Take clears the set and returns the pages that were set, ascending.
func (s *PageSet) Take() []int {
	var out []int
	for w := range s.words {
		word := s.words[w].Swap(0)
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &^= 1 << b
		}
	}
	return out
}

// Indexes returns the set pages in ascending order without clearing them.
func (s *PageSet) Indexes() []int {
	var out []int
	for w := range s.words {
		word := s.words[w].Load()
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &^= 1 << b
		}
	}
	return out
}

// Resize returns a set for n pages that keeps the marks of s for pages
// below n and marks every page at or above s.Len(). The receiver is not
// modified; callers swap the pointer.
func (s *PageSet) Resize(n int) *PageSet {
	r := NewPageSet(n)
	for _, i := range s.Indexes() {
		r.Mark(i)
	}
	for i := s.n; i < n; i++ {
		r.Mark(i)
	}
	return r
}
