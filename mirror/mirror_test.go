package mirror

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync/diff"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

var testFont = &vector.Font{Family: "test", Weight: 400, Stretch: 1000, UnitsPerEm: 1000, Data: fingerprint.OfBlob([]byte("font"))}

// document builds a generation with one page per text. Pages share a
// rule path and the font.
func document(seq uint64, texts ...string) *vector.Generation {
	m := vector.NewModule()
	add := func(it vector.Item) fingerprint.Fingerprint {
		fp := vector.FingerprintOf(it)
		m.Items[fp] = it
		return fp
	}
	font := add(testFont)
	rule := add(&vector.Path{
		Segments: []vector.Segment{{Op: vector.SegmentMoveTo}, {Op: vector.SegmentLineTo}},
		Stroke:   &vector.Stroke{Width: vector.Quantize(1)},
	})
	for _, s := range texts {
		run := &vector.GlyphRun{Font: font, Size: vector.Quantize(10), Text: s}
		for _, r := range s {
			run.Glyphs = append(run.Glyphs, vector.Glyph{ID: uint32(r), Advance: vector.Quantize(5)})
		}
		inner := add(&vector.Group{Transform: vector.IdentityTransform, Children: []vector.Child{{Ref: add(run)}}})
		root := add(&vector.Group{
			Transform: vector.IdentityTransform,
			Children:  []vector.Child{{Ref: rule}, {Offset: vector.QuantizePoint(0, 12), Ref: inner}},
		})
		m.Pages = append(m.Pages, vector.Page{Root: root, Width: vector.Quantize(100), Height: vector.Quantize(100)})
	}
	return vector.NewGeneration(seq, m)
}

func mustFull(t *testing.T, g *vector.Generation) *Mirror {
	t.Helper()
	mr := New()
	if err := mr.ApplyFull(g.Module); err != nil {
		t.Fatalf("ApplyFull: %v", err)
	}
	return mr
}

func TestApplyPatchMatchesTarget(t *testing.T) {
	tests := []struct {
		name     string
		from, to []string
	}{
		{"edit one page", []string{"a", "b", "c", "d", "e"}, []string{"a", "B", "c", "d", "e"}},
		{"grow", []string{"a"}, []string{"a", "b", "c"}},
		{"shrink", []string{"a", "b", "c"}, []string{"a"}},
		{"reorder", []string{"a", "b", "c"}, []string{"c", "a", "b"}},
		{"shared text", []string{"x", "y", "x"}, []string{"x", "z", "w"}},
		{"identical", []string{"a", "b"}, []string{"a", "b"}},
		{"to empty", []string{"a", "b"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g0 := document(1, tt.from...)
			g1 := document(2, tt.to...)
			mr := mustFull(t, g0)

			if _, err := mr.ApplyPatch(diff.Diff(g0, g1)); err != nil {
				t.Fatalf("ApplyPatch: %v", err)
			}
			if diff := cmp.Diff(g1.Module.Pages, mr.Pages(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Pages mismatch (-want +got):\n%s", diff)
			}
			if got := mr.Generation(); got != g1.ID() {
				t.Errorf("Generation = %v, want %v", got, g1.ID())
			}

			mr.Sweep()
			want := g1.Reachable()
			if got := mr.Len(); got != len(want) {
				t.Errorf("after Sweep Len = %d, want %d", got, len(want))
			}
			for fp := range want {
				if _, ok := mr.Get(fp); !ok {
					t.Errorf("reachable item %s missing after Sweep", fp.Short())
				}
			}
			snap := mr.Module()
			if len(snap.Items) != len(want) {
				t.Errorf("Module has %d items, want %d", len(snap.Items), len(want))
			}
			if err := snap.Validate(); err != nil {
				t.Errorf("Module().Validate() = %v", err)
			}
		})
	}
}

func TestApplyPatchChain(t *testing.T) {
	gens := []*vector.Generation{
		document(1, "a", "b"),
		document(2, "a", "c"),
		document(3, "a", "c", "d"),
		document(4, "d"),
		document(5, "a", "b"),
	}
	mr := mustFull(t, gens[0])
	for i := 1; i < len(gens); i++ {
		if _, err := mr.ApplyPatch(diff.Diff(gens[i-1], gens[i])); err != nil {
			t.Fatalf("ApplyPatch %d: %v", i, err)
		}
		if i%2 == 0 {
			mr.Sweep()
		}
	}
	mr.Sweep()
	want := gens[len(gens)-1]
	if diff := cmp.Diff(want.Module, mr.Module()); diff != "" {
		t.Errorf("Module mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyPatchFromEmpty(t *testing.T) {
	g := document(1, "a", "b")
	mr := New()
	ch, err := mr.ApplyPatch(diff.Diff(nil, g))
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if diff := cmp.Diff([]int{0, 1}, ch.Pages); diff != "" {
		t.Errorf("Changes.Pages mismatch (-want +got):\n%s", diff)
	}
	if ch.Added != len(g.Reachable()) {
		t.Errorf("Changes.Added = %d, want %d", ch.Added, len(g.Reachable()))
	}
	if diff := cmp.Diff(g.Module, mr.Module()); diff != "" {
		t.Errorf("Module mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepIsDeferred(t *testing.T) {
	g0 := document(1, "a", "b")
	g1 := document(2, "a", "c")
	mr := mustFull(t, g0)
	p := diff.Diff(g0, g1)
	ch, err := mr.ApplyPatch(p)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if ch.Stale == 0 || mr.Pending() != ch.Stale {
		t.Errorf("Changes.Stale = %d, Pending = %d; want equal and non-zero", ch.Stale, mr.Pending())
	}
	for _, fp := range p.Stale {
		if _, ok := mr.Get(fp); !ok {
			t.Errorf("stale item %s evicted before Sweep", fp.Short())
		}
	}
	if n := mr.Sweep(); n != len(p.Stale) {
		t.Errorf("Sweep evicted %d, want %d", n, len(p.Stale))
	}
	for _, fp := range p.Stale {
		if _, ok := mr.Get(fp); ok {
			t.Errorf("stale item %s survived Sweep", fp.Short())
		}
	}
	if mr.Pending() != 0 {
		t.Errorf("Pending after Sweep = %d, want 0", mr.Pending())
	}
	if n := mr.Sweep(); n != 0 {
		t.Errorf("second Sweep evicted %d, want 0", n)
	}
}

func TestStaleItemRevived(t *testing.T) {
	g0 := document(1, "a", "b")
	g1 := document(2, "a")
	g2 := document(3, "a", "b")
	mr := mustFull(t, g0)
	if _, err := mr.ApplyPatch(diff.Diff(g0, g1)); err != nil {
		t.Fatalf("ApplyPatch g1: %v", err)
	}
	// The producer diffs against g1, so the revived page arrives as added
	// items the mirror still holds.
	if _, err := mr.ApplyPatch(diff.Diff(g1, g2)); err != nil {
		t.Fatalf("ApplyPatch g2: %v", err)
	}
	if n := mr.Sweep(); n != 0 {
		t.Errorf("Sweep evicted %d revived items, want 0", n)
	}
	if diff := cmp.Diff(g2.Module, mr.Module()); diff != "" {
		t.Errorf("Module mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyPatchRejects(t *testing.T) {
	g0 := document(1, "a", "b")
	g1 := document(2, "a", "c", "d")
	good := diff.Diff(g0, g1)

	clone := func(f func(p *vector.Patch)) *vector.Patch {
		p := *good
		p.Ops = append([]vector.PageOp(nil), good.Ops...)
		p.Added = make(map[fingerprint.Fingerprint]vector.Item, len(good.Added))
		for fp, it := range good.Added {
			p.Added[fp] = it
		}
		f(&p)
		return &p
	}
	tests := []struct {
		name  string
		patch *vector.Patch
		want  error
	}{
		{"wrong base", clone(func(p *vector.Patch) { p.Base = ulid.Make() }), ErrBaseMismatch},
		{"missing added item", clone(func(p *vector.Patch) {
			for fp := range p.Added {
				if _, ok := p.Added[fp].(*vector.GlyphRun); ok {
					delete(p.Added, fp)
				}
			}
		}), ErrInvalidPatch},
		{"unknown root", clone(func(p *vector.Patch) { p.Ops[1].Page.Root = fingerprint.OfBlob([]byte("x")) }), ErrInvalidPatch},
		{"out of order", clone(func(p *vector.Patch) { p.Ops[0], p.Ops[1] = p.Ops[1], p.Ops[0] }), ErrInvalidPatch},
		{"insert over page", clone(func(p *vector.Patch) { p.Ops[1].Kind = vector.PageInserted }), ErrInvalidPatch},
		{"replace past end", clone(func(p *vector.Patch) { p.Ops[2].Kind = vector.PageReplaced }), ErrInvalidPatch},
		{"remove live page", clone(func(p *vector.Patch) {
			p.Ops = append(p.Ops, vector.PageOp{Kind: vector.PageRemoved, Index: 3})
		}), ErrInvalidPatch},
		{"too few ops", clone(func(p *vector.Patch) { p.Ops = p.Ops[:1] }), ErrInvalidPatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := mustFull(t, g0)
			before := mr.Module()
			if _, err := mr.ApplyPatch(tt.patch); !errors.Is(err, tt.want) {
				t.Fatalf("ApplyPatch error = %v, want %v", err, tt.want)
			}
			if diff := cmp.Diff(before, mr.Module()); diff != "" {
				t.Errorf("mirror changed by a rejected patch (-before +after):\n%s", diff)
			}
			if mr.Pending() != 0 || mr.Len() != len(g0.Module.Items) {
				t.Errorf("rejected patch left Pending = %d, Len = %d", mr.Pending(), mr.Len())
			}
		})
	}
}

func TestApplyFullRejectsDangling(t *testing.T) {
	g := document(1, "a")
	m := g.Module.Clone()
	delete(m.Items, m.Pages[0].Root)
	mr := mustFull(t, document(2, "b"))
	if err := mr.ApplyFull(m); !errors.Is(err, vector.ErrDanglingReference) {
		t.Errorf("ApplyFull error = %v, want %v", err, vector.ErrDanglingReference)
	}
	if mr.PageCount() != 1 {
		t.Errorf("PageCount = %d after rejected ApplyFull, want 1", mr.PageCount())
	}
}
