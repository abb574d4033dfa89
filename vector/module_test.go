package vector

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/vecsync/fingerprint"
)

func buildModule(items ...Item) (*Module, []fingerprint.Fingerprint) {
	m := NewModule()
	fps := make([]fingerprint.Fingerprint, len(items))
	for i, it := range items {
		fps[i] = FingerprintOf(it)
		m.Items[fps[i]] = it
	}
	return m, fps
}

func TestModuleReachable(t *testing.T) {
	a := rectPath(1, 1, 0)
	b := rectPath(2, 2, 0)
	orphan := rectPath(3, 3, 0)
	m, fps := buildModule(a, b, orphan)
	shared := &Group{Transform: IdentityTransform, Children: []Child{{Ref: fps[0]}, {Ref: fps[1]}, {Ref: fps[0]}}}
	gfp := FingerprintOf(shared)
	m.Items[gfp] = shared
	m.Pages = []Page{{Root: gfp}, {Root: fps[1]}}

	got := m.Reachable()
	if len(got) != 3 {
		t.Errorf("len(Reachable()) = %d, want 3", len(got))
	}
	for _, fp := range []fingerprint.Fingerprint{gfp, fps[0], fps[1]} {
		if !got.Has(fp) {
			t.Errorf("Reachable() missing %v", fp.Short())
		}
	}
	if got.Has(fps[2]) {
		t.Error("Reachable() contains orphan")
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestModuleValidateDangling(t *testing.T) {
	m, fps := buildModule(rectPath(1, 1, 0))
	missing := fingerprint.Fingerprint{0xaa}
	g := &Group{Transform: IdentityTransform, Children: []Child{{Ref: fps[0]}, {Ref: missing}}}
	m.Items[FingerprintOf(g)] = g
	m.Pages = []Page{{Root: FingerprintOf(g)}}
	if err := m.Validate(); !errors.Is(err, ErrDanglingReference) {
		t.Errorf("Validate() = %v, want ErrDanglingReference", err)
	}

	m2, _ := buildModule()
	m2.Pages = []Page{{Root: missing}}
	if err := m2.Validate(); !errors.Is(err, ErrDanglingReference) {
		t.Errorf("Validate() with missing root = %v, want ErrDanglingReference", err)
	}
}

func TestModuleCloneIndependent(t *testing.T) {
	m, fps := buildModule(rectPath(1, 1, 0))
	m.Pages = []Page{{Root: fps[0]}}
	c := m.Clone()
	c.Pages[0].Width = 99
	delete(c.Items, fps[0])
	if m.Pages[0].Width != 0 || len(m.Items) != 1 {
		t.Error("Clone shares state with original")
	}
	if c.ID != m.ID {
		t.Error("Clone changed ID")
	}
}

func TestModuleFonts(t *testing.T) {
	f1 := &Font{Family: "a"}
	f2 := &Font{Family: "b"}
	m, _ := buildModule(f1, rectPath(1, 1, 0), f2)
	if got := len(m.Fonts()); got != 2 {
		t.Errorf("len(Fonts()) = %d, want 2", got)
	}
}

func TestGenerationReachableMemoized(t *testing.T) {
	m, fps := buildModule(rectPath(1, 1, 0))
	m.Pages = []Page{{Root: fps[0]}}
	g := NewGeneration(3, m)
	if g.ID() != m.ID {
		t.Errorf("ID() = %v, want %v", g.ID(), m.ID)
	}
	r1 := g.Reachable()
	r1.Add(fingerprint.Fingerprint{1})
	if !g.Reachable().Has(fingerprint.Fingerprint{1}) {
		t.Error("Reachable() recomputed instead of memoized")
	}
}

func TestSetOps(t *testing.T) {
	a := Set{}
	b := Set{}
	for i := byte(0); i < 5; i++ {
		a.Add(fingerprint.Fingerprint{i})
	}
	for i := byte(3); i < 8; i++ {
		b.Add(fingerprint.Fingerprint{i})
	}
	want := []fingerprint.Fingerprint{{0}, {1}, {2}}
	if got := a.Difference(b); !slices.Equal(got, want) {
		t.Errorf("Difference = %v, want %v", got, want)
	}
	if got := len(a.Union(b)); got != 8 {
		t.Errorf("len(Union) = %d, want 8", got)
	}
	sorted := b.Union(a).Sorted()
	if !slices.IsSortedFunc(sorted, fingerprint.Fingerprint.Compare) {
		t.Error("Sorted() not sorted")
	}
}

func TestPatchIsEmpty(t *testing.T) {
	p := &Patch{Ops: []PageOp{{Kind: PageUnchanged, Index: 0}, {Kind: PageUnchanged, Index: 1}}}
	if !p.IsEmpty() {
		t.Error("IsEmpty() = false for all-unchanged patch")
	}
	if got := p.PageCount(); got != 2 {
		t.Errorf("PageCount() = %d, want 2", got)
	}
	p.Ops = append(p.Ops, PageOp{Kind: PageRemoved, Index: 2})
	if p.IsEmpty() {
		t.Error("IsEmpty() = true with a removed page")
	}
	if got := p.PageCount(); got != 2 {
		t.Errorf("PageCount() = %d, want 2", got)
	}
}
