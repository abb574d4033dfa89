// Package mirror holds a consumer's copy of the producer's vector module
// and keeps it current by applying full modules and patches.
//
// Items are reference counted over item-to-child edges and page-to-root
// edges. Applying a patch never evicts anything: fingerprints the patch
// declares stale are queued, and Sweep evicts those whose count has
// dropped to zero once no render is reading them. An evicted item releases
// its children, which are evicted in turn when they are queued too.
package mirror

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

var (
	// ErrBaseMismatch is returned when a patch was computed against a
	// generation other than the one the mirror holds. The caller should
	// request a full module.
	ErrBaseMismatch = errors.New("mirror: patch base does not match mirror generation")

	// ErrInvalidPatch is returned when a patch is internally inconsistent
	// or refers to items neither it nor the mirror holds.
	ErrInvalidPatch = errors.New("mirror: invalid patch")
)

// Changes summarizes what ApplyPatch did to the page list.
type Changes struct {
	// Pages lists replaced and inserted page indexes in ascending order.
	Pages []int
	// Removed is the number of trailing pages dropped.
	Removed int
	// Added is the number of items that were not already held.
	Added int
	// Stale is the number of fingerprints queued for the next sweep.
	Stale int
}

// Mirror is a consumer-side item store and page list. It is safe for
// concurrent use: renders may read while a single writer applies updates.
type Mirror struct {
	mu      sync.RWMutex
	id      ulid.ULID
	items   map[fingerprint.Fingerprint]vector.Item
	refs    map[fingerprint.Fingerprint]int
	pages   []vector.Page
	pending vector.Set
}

// New returns an empty mirror. Its generation is the zero ULID, which is
// the base of a patch computed from no previous generation.
func New() *Mirror {
	return &Mirror{
		items:   make(map[fingerprint.Fingerprint]vector.Item),
		refs:    make(map[fingerprint.Fingerprint]int),
		pending: vector.Set{},
	}
}

// ApplyFull replaces the mirror contents with m. m is validated first; on
// error the mirror is unchanged.
func (mr *Mirror) ApplyFull(m *vector.Module) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("mirror: full module: %w", err)
	}
	items := maps.Clone(m.Items)
	if items == nil {
		items = make(map[fingerprint.Fingerprint]vector.Item)
	}
	refs := make(map[fingerprint.Fingerprint]int, len(items))
	for _, it := range items {
		for _, r := range it.Refs() {
			refs[r]++
		}
	}
	for _, p := range m.Pages {
		refs[p.Root]++
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.id = m.ID
	mr.items = items
	mr.refs = refs
	mr.pages = slices.Clone(m.Pages)
	mr.pending = vector.Set{}
	vecsync.Logger().Info("mirror: applied full module",
		"generation", m.ID.String(), "items", len(items), "pages", len(m.Pages))
	return nil
}

// ApplyPatch applies p. The whole patch is checked before anything is
// changed; on error the mirror is unchanged. Stale items stay readable
// until Sweep.
func (mr *Mirror) ApplyPatch(p *vector.Patch) (Changes, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if p.Base != mr.id {
		return Changes{}, fmt.Errorf("%w: patch base %s, mirror at %s", ErrBaseMismatch, p.Base, mr.id)
	}
	next, err := mr.check(p)
	if err != nil {
		return Changes{}, err
	}

	var ch Changes
	for fp, it := range p.Added {
		if _, ok := mr.items[fp]; ok {
			continue
		}
		mr.items[fp] = it
		for _, r := range it.Refs() {
			mr.refs[r]++
		}
		ch.Added++
	}
	for _, page := range next {
		mr.refs[page.Root]++
	}
	for _, page := range mr.pages {
		mr.release(page.Root)
	}
	for _, op := range p.Ops {
		switch op.Kind {
		case vector.PageReplaced, vector.PageInserted:
			ch.Pages = append(ch.Pages, op.Index)
		case vector.PageRemoved:
			ch.Removed++
		}
	}
	for _, fp := range p.Stale {
		if _, ok := mr.items[fp]; ok {
			mr.pending.Add(fp)
			ch.Stale++
		}
	}
	mr.pages = next
	mr.id = p.Target

	vecsync.Logger().Debug("mirror: applied patch",
		"generation", p.Target.String(), "added", ch.Added, "changed", len(ch.Pages),
		"removed", ch.Removed, "pending", len(mr.pending))
	return ch, nil
}

// check validates p against the current state and returns the page list
// it produces.
func (mr *Mirror) check(p *vector.Patch) ([]vector.Page, error) {
	has := func(fp fingerprint.Fingerprint) bool {
		if _, ok := p.Added[fp]; ok {
			return true
		}
		_, ok := mr.items[fp]
		return ok
	}
	for fp, it := range p.Added {
		for _, r := range it.Refs() {
			if !has(r) {
				return nil, fmt.Errorf("%w: added item %s references unknown %s", ErrInvalidPatch, fp.Short(), r.Short())
			}
		}
	}

	next := make([]vector.Page, 0, len(p.Ops))
	removed := 0
	for i, op := range p.Ops {
		if op.Kind == vector.PageRemoved {
			if op.Index != len(next)+removed || op.Index >= len(mr.pages) {
				return nil, fmt.Errorf("%w: op %d removes page %d", ErrInvalidPatch, i, op.Index)
			}
			removed++
			continue
		}
		if removed > 0 || op.Index != len(next) {
			return nil, fmt.Errorf("%w: op %d for page %d out of order", ErrInvalidPatch, i, op.Index)
		}
		switch op.Kind {
		case vector.PageUnchanged:
			if op.Index >= len(mr.pages) {
				return nil, fmt.Errorf("%w: page %d kept but mirror has %d pages", ErrInvalidPatch, op.Index, len(mr.pages))
			}
			next = append(next, mr.pages[op.Index])
		case vector.PageReplaced, vector.PageInserted:
			if op.Kind == vector.PageReplaced && op.Index >= len(mr.pages) {
				return nil, fmt.Errorf("%w: page %d replaced but mirror has %d pages", ErrInvalidPatch, op.Index, len(mr.pages))
			}
			if op.Kind == vector.PageInserted && op.Index < len(mr.pages) {
				return nil, fmt.Errorf("%w: page %d inserted over an existing page", ErrInvalidPatch, op.Index)
			}
			if !has(op.Page.Root) {
				return nil, fmt.Errorf("%w: page %d root %s unknown", ErrInvalidPatch, op.Index, op.Page.Root.Short())
			}
			next = append(next, op.Page)
		default:
			return nil, fmt.Errorf("%w: op %d has kind %v", ErrInvalidPatch, i, op.Kind)
		}
	}
	if len(next)+removed < len(mr.pages) {
		return nil, fmt.Errorf("%w: ops cover %d of %d pages", ErrInvalidPatch, len(next)+removed, len(mr.pages))
	}
	return next, nil
}

func (mr *Mirror) release(fp fingerprint.Fingerprint) {
	if n := mr.refs[fp] - 1; n > 0 {
		mr.refs[fp] = n
	} else {
		delete(mr.refs, fp)
	}
}

// Sweep evicts queued stale items that nothing references any longer and
// clears the queue. Items that were referenced again since they were queued
// stay. It returns the number of items evicted.
func (mr *Mirror) Sweep() int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if len(mr.pending) == 0 {
		return 0
	}
	evicted := 0
	stack := make([]fingerprint.Fingerprint, 0, len(mr.pending))
	for fp := range mr.pending {
		stack = append(stack, fp)
	}
	for len(stack) > 0 {
		fp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		it, ok := mr.items[fp]
		if !ok || mr.refs[fp] > 0 {
			continue
		}
		delete(mr.items, fp)
		evicted++
		for _, r := range it.Refs() {
			mr.release(r)
			if mr.pending.Has(r) && mr.refs[r] == 0 {
				stack = append(stack, r)
			}
		}
	}
	mr.pending = vector.Set{}
	vecsync.Logger().Debug("mirror: swept stale items", "evicted", evicted, "remaining", len(mr.items))
	return evicted
}

// Pending returns the number of fingerprints queued for the next sweep.
func (mr *Mirror) Pending() int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.pending)
}

// Generation returns the identity of the generation the mirror holds.
func (mr *Mirror) Generation() ulid.ULID {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.id
}

// Pages returns a copy of the page list.
func (mr *Mirror) Pages() []vector.Page {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return slices.Clone(mr.pages)
}

// Page returns page i.
func (mr *Mirror) Page(i int) (vector.Page, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	if i < 0 || i >= len(mr.pages) {
		return vector.Page{}, false
	}
	return mr.pages[i], true
}

// PageCount returns the number of pages.
func (mr *Mirror) PageCount() int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.pages)
}

// Get returns the item with fingerprint fp.
func (mr *Mirror) Get(fp fingerprint.Fingerprint) (vector.Item, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	it, ok := mr.items[fp]
	return it, ok
}

// Len returns the number of items held, including those awaiting a sweep.
func (mr *Mirror) Len() int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return len(mr.items)
}

// Module returns a snapshot of the items reachable from the current pages.
func (mr *Mirror) Module() *vector.Module {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	m := &vector.Module{
		ID:    mr.id,
		Items: make(map[fingerprint.Fingerprint]vector.Item),
		Pages: slices.Clone(mr.pages),
	}
	stack := make([]fingerprint.Fingerprint, 0, len(mr.pages))
	for _, p := range mr.pages {
		stack = append(stack, p.Root)
	}
	for len(stack) > 0 {
		fp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := m.Items[fp]; ok {
			continue
		}
		it, ok := mr.items[fp]
		if !ok {
			continue
		}
		m.Items[fp] = it
		stack = append(stack, it.Refs()...)
	}
	return m
}
