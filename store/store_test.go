package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

func square(size float64, c vector.Color) *vector.Path {
	p := func(x, y float64) [3]fixed.Point26_6 { return [3]fixed.Point26_6{vector.QuantizePoint(x, y)} }
	return &vector.Path{
		Segments: []vector.Segment{
			{Op: vector.SegmentMoveTo, Args: p(0, 0)},
			{Op: vector.SegmentLineTo, Args: p(size, 0)},
			{Op: vector.SegmentLineTo, Args: p(size, size)},
			{Op: vector.SegmentClose},
		},
		Fill: &vector.Fill{Color: c},
	}
}

func group(children ...fingerprint.Fingerprint) *vector.Group {
	g := &vector.Group{Transform: vector.IdentityTransform}
	for _, c := range children {
		g.Children = append(g.Children, vector.Child{Ref: c})
	}
	return g
}

func mustIntern(t *testing.T, s *Store, it vector.Item) fingerprint.Fingerprint {
	t.Helper()
	fp, _, err := s.Intern(it)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	return fp
}

func TestInsertDedup(t *testing.T) {
	s := New()
	a := square(10, 1)
	fp := vector.FingerprintOf(a)

	stored, isNew, err := s.Insert(fp, a)
	if err != nil || !isNew || stored != vector.Item(a) {
		t.Fatalf("first Insert = (%p, %v, %v), want (%p, true, nil)", stored, isNew, err, a)
	}

	b := square(10, 1) // equal content, distinct pointer
	stored, isNew, err = s.Insert(fp, b)
	if err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if isNew {
		t.Error("second Insert reported isNew")
	}
	if stored != vector.Item(a) {
		t.Error("second Insert did not return the first stored item")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	st := s.Stats()
	if st.Inserts != 1 || st.Hits != 1 || st.Collisions != 0 {
		t.Errorf("Stats() = %+v, want 1 insert 1 hit", st)
	}
}

func TestInsertCollision(t *testing.T) {
	s := New()
	a := square(10, 1)
	fp := vector.FingerprintOf(a)
	if _, _, err := s.Insert(fp, a); err != nil {
		t.Fatal(err)
	}

	_, _, err := s.Insert(fp, square(11, 1))
	if !errors.Is(err, ErrFingerprintCollision) {
		t.Fatalf("Insert with different content: err = %v, want ErrFingerprintCollision", err)
	}
	var ce *CollisionError
	if !errors.As(err, &ce) || ce.Fingerprint != fp {
		t.Errorf("err = %#v, want *CollisionError for %v", err, fp)
	}

	_, _, err = s.Insert(fp, &vector.Link{Target: "x"})
	if !errors.As(err, &ce) || ce.Stored != vector.KindPath || ce.Inserted != vector.KindLink {
		t.Errorf("kind mismatch err = %v", err)
	}

	got, _ := s.Get(fp)
	if got != vector.Item(a) {
		t.Error("collision overwrote stored item")
	}
	if c := s.Stats().Collisions; c != 2 {
		t.Errorf("Collisions = %d, want 2", c)
	}
}

func TestConcurrentInsertSingleWinner(t *testing.T) {
	s := New()
	const n = 32
	items := make([]vector.Item, n)
	for i := range items {
		items[i] = square(42, 7)
	}
	fp := vector.FingerprintOf(items[0])

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		seen    = make(map[vector.Item]bool)
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(it vector.Item) {
			defer wg.Done()
			<-start
			stored, isNew, err := s.Insert(fp, it)
			if err != nil {
				t.Errorf("Insert: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if isNew {
				winners++
			}
			seen[stored] = true
		}(items[i])
	}
	close(start)
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
	if len(seen) != 1 {
		t.Errorf("callers observed %d distinct stored items, want 1", len(seen))
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMarkReachableAndStale(t *testing.T) {
	s := New()
	a := mustIntern(t, s, square(1, 1))
	b := mustIntern(t, s, square(2, 1))
	c := mustIntern(t, s, square(3, 1))
	g1 := mustIntern(t, s, group(a, b))
	g2 := mustIntern(t, s, group(b, c))

	prev, err := s.MarkReachable([]fingerprint.Fingerprint{g1})
	if err != nil {
		t.Fatal(err)
	}
	if len(prev) != 3 {
		t.Errorf("len(prev) = %d, want 3", len(prev))
	}

	if _, err := s.MarkReachable([]fingerprint.Fingerprint{g2}); err != nil {
		t.Fatal(err)
	}
	stale := s.StaleSince(prev)
	want := vector.Set{a: {}, g1: {}}.Sorted()
	if len(stale) != len(want) {
		t.Fatalf("StaleSince = %v, want %v", stale, want)
	}
	for i := range want {
		if stale[i] != want[i] {
			t.Errorf("StaleSince[%d] = %v, want %v", i, stale[i], want[i])
		}
	}
}

func TestMarkReachableDangling(t *testing.T) {
	s := New()
	missing := vector.FingerprintOf(square(9, 9))
	root := mustIntern(t, s, group(missing))
	_, err := s.MarkReachable([]fingerprint.Fingerprint{root})
	if !errors.Is(err, ErrDanglingReference) {
		t.Errorf("MarkReachable = %v, want ErrDanglingReference", err)
	}
}

func TestRetain(t *testing.T) {
	s := New()
	a := mustIntern(t, s, square(1, 1))
	b := mustIntern(t, s, square(2, 1))
	root := mustIntern(t, s, group(a))
	live, err := s.MarkReachable([]fingerprint.Fingerprint{root})
	if err != nil {
		t.Fatal(err)
	}
	if removed := s.Retain(live); removed != 1 {
		t.Errorf("Retain removed %d, want 1", removed)
	}
	if s.Has(b) {
		t.Error("unreachable item survived Retain")
	}
	if !s.Has(a) || !s.Has(root) {
		t.Error("reachable item removed by Retain")
	}
}

func TestSnapshot(t *testing.T) {
	s := New()
	a := mustIntern(t, s, square(1, 1))
	mustIntern(t, s, square(2, 1))
	root := mustIntern(t, s, group(a, a))
	pages := []vector.Page{{Root: root, Width: 64, Height: 64}, {Root: root, Width: 64, Height: 64}}

	id := ulid.Make()
	m, err := s.Snapshot(id, pages)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != id {
		t.Errorf("ID = %v, want %v", m.ID, id)
	}
	if len(m.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(m.Items))
	}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	pages[0].Width = 1
	if m.Pages[0].Width != 64 {
		t.Error("Snapshot aliases the caller's page slice")
	}
}

func TestPayloadCached(t *testing.T) {
	s := New()
	it := square(3, 3)
	fp := mustIntern(t, s, it)
	got, ok := s.Payload(fp)
	if !ok {
		t.Fatal("Payload missing")
	}
	if string(got) != string(it.AppendPayload(nil)) {
		t.Error("Payload differs from canonical encoding")
	}
	if _, ok := s.Payload(fingerprint.Fingerprint{}); ok {
		t.Error("Payload for unknown fingerprint")
	}
}

func BenchmarkInternHit(b *testing.B) {
	s := New()
	it := square(5, 5)
	if _, _, err := s.Intern(it); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _, _ = s.Intern(it)
		}
	})
}
