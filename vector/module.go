package vector

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
)

// ErrDanglingReference is returned when an item or page refers to a
// fingerprint that is not present.
var ErrDanglingReference = errors.New("vector: dangling reference")

// Page is one page of a module: a root item and the page size in points.
type Page struct {
	Root   fingerprint.Fingerprint
	Width  fixed.Int26_6
	Height fixed.Int26_6
}

// SameSize reports whether p and q have identical dimensions.
func (p Page) SameSize(q Page) bool {
	return p.Width == q.Width && p.Height == q.Height
}

// Module is a self-contained vector document: an item graph plus an ordered
// page list. Every fingerprint reachable from a page root is present in
// Items.
type Module struct {
	ID    ulid.ULID
	Items map[fingerprint.Fingerprint]Item
	Pages []Page
}

// NewModule returns an empty module with a fresh identity.
func NewModule() *Module {
	return &Module{ID: ulid.Make(), Items: make(map[fingerprint.Fingerprint]Item)}
}

// Get returns the item with fingerprint fp.
func (m *Module) Get(fp fingerprint.Fingerprint) (Item, bool) {
	it, ok := m.Items[fp]
	return it, ok
}

// Fingerprints returns all item fingerprints in ascending order.
func (m *Module) Fingerprints() []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, 0, len(m.Items))
	for fp := range m.Items {
		out = append(out, fp)
	}
	slices.SortFunc(out, fingerprint.Fingerprint.Compare)
	return out
}

// Reachable returns the fingerprints reachable from the page roots.
// Missing items are included but not descended into.
func (m *Module) Reachable() Set {
	seen := make(Set, len(m.Items))
	stack := make([]fingerprint.Fingerprint, 0, len(m.Pages))
	for _, p := range m.Pages {
		stack = append(stack, p.Root)
	}
	for len(stack) > 0 {
		fp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Has(fp) {
			continue
		}
		seen.Add(fp)
		if it, ok := m.Items[fp]; ok {
			stack = append(stack, it.Refs()...)
		}
	}
	return seen
}

// Validate checks that every page root and every reference resolves to an
// item in the module.
func (m *Module) Validate() error {
	for i, p := range m.Pages {
		if _, ok := m.Items[p.Root]; !ok {
			return fmt.Errorf("%w: page %d root %s", ErrDanglingReference, i, p.Root.Short())
		}
	}
	for _, fp := range m.Fingerprints() {
		for _, ref := range m.Items[fp].Refs() {
			if _, ok := m.Items[ref]; !ok {
				return fmt.Errorf("%w: item %s references %s", ErrDanglingReference, fp.Short(), ref.Short())
			}
		}
	}
	return nil
}

// Generation is one compiled snapshot of a document. The reachable set is
// computed once on first use.
type Generation struct {
	Seq    uint64
	Module *Module

	reachOnce sync.Once
	reach     Set
}

// NewGeneration wraps m as generation seq.
func NewGeneration(seq uint64, m *Module) *Generation {
	return &Generation{Seq: seq, Module: m}
}

// ID returns the identity of the generation's module.
func (g *Generation) ID() ulid.ULID {
	return g.Module.ID
}

// Reachable returns the fingerprints reachable from the generation's
// pages. The result is shared and must not be modified.
func (g *Generation) Reachable() Set {
	g.reachOnce.Do(func() {
		g.reach = g.Module.Reachable()
	})
	return g.reach
}

// Fonts returns the font items of the module, ordered by fingerprint.
func (m *Module) Fonts() []*Font {
	var out []*Font
	for _, fp := range m.Fingerprints() {
		if f, ok := m.Items[fp].(*Font); ok {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a copy of m with its own item map and page slice. Items
// are immutable and shared.
func (m *Module) Clone() *Module {
	c := &Module{
		ID:    m.ID,
		Items: make(map[fingerprint.Fingerprint]Item, len(m.Items)),
		Pages: slices.Clone(m.Pages),
	}
	for fp, it := range m.Items {
		c.Items[fp] = it
	}
	return c
}
