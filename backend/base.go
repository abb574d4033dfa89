package backend

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/vecsync/internal/parallel"
	"github.com/gogpu/vecsync/mirror"
	"github.com/gogpu/vecsync/vector"
)

// Base is the state every backend shares: the mirrored module, the set of
// pages changed since they were last materialized, and the deferred sweep
// of stale items. Backends embed a *Base and add Name and Render.
//
// Stale items are swept only when no render holds the mirror, so a render
// never loses an item it is reading.
type Base struct {
	mirror *mirror.Mirror

	mu      sync.Mutex
	changed *parallel.PageSet

	renders  sync.RWMutex
	inflight atomic.Int32
	sweep    atomic.Bool
}

// NewBase returns a Base with an empty mirror.
func NewBase() *Base {
	return &Base{mirror: mirror.New(), changed: parallel.NewPageSet(0)}
}

// Mirror returns the mirrored module.
func (b *Base) Mirror() *mirror.Mirror { return b.mirror }

// ApplyFull replaces the mirror with m and marks every page changed.
func (b *Base) ApplyFull(m *vector.Module) error {
	if err := b.mirror.ApplyFull(m); err != nil {
		return err
	}
	set := parallel.NewPageSet(len(m.Pages))
	set.MarkAll()
	b.mu.Lock()
	b.changed = set
	b.mu.Unlock()
	return nil
}

// ApplyPatch applies p to the mirror, marks replaced and inserted pages
// changed and schedules a sweep of the stale items.
func (b *Base) ApplyPatch(p *vector.Patch) error {
	_, err := b.ApplyPatchChanges(p)
	return err
}

// ApplyPatchChanges is ApplyPatch that also returns the mirror's summary.
func (b *Base) ApplyPatchChanges(p *vector.Patch) (mirror.Changes, error) {
	ch, err := b.mirror.ApplyPatch(p)
	if err != nil {
		return ch, err
	}
	b.mu.Lock()
	set := b.changed.Resize(b.mirror.PageCount())
	for _, i := range ch.Pages {
		set.Mark(i)
	}
	b.changed = set
	b.mu.Unlock()

	if ch.Stale > 0 {
		b.sweep.Store(true)
		b.trySweep()
	}
	return ch, nil
}

// Changed returns the set of pages changed since they were last
// materialized. The set is replaced when the page count changes, so
// callers must not keep it across applies.
func (b *Base) Changed() *parallel.PageSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

// BeginRender marks a render in flight and returns the function that ends
// it. Stale items are not swept while any render is in flight.
func (b *Base) BeginRender() (end func()) {
	b.renders.RLock()
	b.inflight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			b.inflight.Add(-1)
			b.renders.RUnlock()
			b.trySweep()
		})
	}
}

// InFlight returns the number of renders in progress.
func (b *Base) InFlight() int { return int(b.inflight.Load()) }

// SweepPending reports whether a sweep is waiting for renders to finish.
func (b *Base) SweepPending() bool { return b.sweep.Load() }

func (b *Base) trySweep() {
	if !b.sweep.Load() || !b.renders.TryLock() {
		return
	}
	defer b.renders.Unlock()
	if b.sweep.CompareAndSwap(true, false) {
		b.mirror.Sweep()
	}
}
