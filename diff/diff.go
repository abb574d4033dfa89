// Package diff computes the patch that takes a consumer holding one
// generation to the next.
//
// Pages are compared by position only. A page whose root fingerprint is
// unchanged costs one comparison regardless of its size. A page that moves
// to a different index is reported as a replacement at each index it
// touches; there is no move or reorder detection, and content that
// reappears elsewhere is still reused through the consumer's store because
// it is already reachable from the base.
package diff

import (
	"time"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

// Diff returns the patch from prev to cur. A nil prev yields a patch that
// inserts every page of cur and carries all of its reachable items.
//
// Added holds every item reachable from cur but not from prev. The walk
// from a replaced or inserted root stops at fingerprints prev already
// reaches, since everything below them is reachable from prev too. Stale is
// computed once over the whole generation, so an item shared with a page
// that is still live is never reported.
func Diff(prev, cur *vector.Generation) *vector.Patch {
	start := time.Now()
	p := &vector.Patch{
		Target: cur.ID(),
		Added:  make(map[fingerprint.Fingerprint]vector.Item),
	}

	var prevPages []vector.Page
	prevReach := vector.Set{}
	if prev != nil {
		p.Base = prev.ID()
		prevPages = prev.Module.Pages
		prevReach = prev.Reachable()
	}

	w := walker{cur: cur.Module, known: prevReach, added: p.Added}
	curPages := cur.Module.Pages
	p.Ops = make([]vector.PageOp, 0, max(len(prevPages), len(curPages)))
	for i, page := range curPages {
		op := vector.PageOp{Index: i, Page: page}
		switch {
		case i >= len(prevPages):
			op.Kind = vector.PageInserted
		case prevPages[i].Root == page.Root && prevPages[i].SameSize(page):
			op.Kind = vector.PageUnchanged
		default:
			op.Kind = vector.PageReplaced
		}
		if op.Kind != vector.PageUnchanged {
			w.walk(page.Root)
		}
		p.Ops = append(p.Ops, op)
	}
	for i := len(curPages); i < len(prevPages); i++ {
		p.Ops = append(p.Ops, vector.PageOp{Kind: vector.PageRemoved, Index: i})
	}

	if prev != nil {
		p.Stale = prevReach.Difference(cur.Reachable())
	}

	vecsync.Logger().Debug("diff: computed patch",
		"base", p.Base.String(), "target", p.Target.String(),
		"pages", len(curPages), "added", len(p.Added), "stale", len(p.Stale),
		"visited", w.visited, "elapsed", time.Since(start))
	return p
}

// walker collects items below changed roots that the base does not hold.
type walker struct {
	cur     *vector.Module
	known   vector.Set
	added   map[fingerprint.Fingerprint]vector.Item
	visited int
}

func (w *walker) walk(root fingerprint.Fingerprint) {
	stack := []fingerprint.Fingerprint{root}
	for len(stack) > 0 {
		fp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if w.known.Has(fp) {
			continue
		}
		if _, ok := w.added[fp]; ok {
			continue
		}
		it, ok := w.cur.Get(fp)
		if !ok {
			// Generations are validated when built.
			continue
		}
		w.visited++
		w.added[fp] = it
		stack = append(stack, it.Refs()...)
	}
}

// Changed returns the indexes of pages a consumer must redraw after
// applying p: replaced and inserted pages, in ascending order.
func Changed(p *vector.Patch) []int {
	var out []int
	for _, op := range p.Ops {
		if op.Kind == vector.PageReplaced || op.Kind == vector.PageInserted {
			out = append(out, op.Index)
		}
	}
	return out
}
