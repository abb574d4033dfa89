package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/diff"
	"github.com/gogpu/vecsync/flat"
	"github.com/gogpu/vecsync/frame"
	"github.com/gogpu/vecsync/lower"
	"github.com/gogpu/vecsync/store"
	"github.com/gogpu/vecsync/vector"
)

var (
	// ErrNotEmitted is returned by Ack for a generation that was never
	// emitted or has fallen out of the history.
	ErrNotEmitted = errors.New("compiler: generation was not emitted")

	// ErrNilGeneration is returned by Emit for a nil generation.
	ErrNilGeneration = errors.New("compiler: nil generation")
)

// Message is one encoded update for the consumer.
type Message struct {
	Format flat.Format
	// Base is the generation the patch applies to; zero for a full module.
	Base   ulid.ULID
	Target ulid.ULID
	Seq    uint64
	Bytes  []byte
}

// Full reports whether m carries a whole module.
func (m Message) Full() bool { return m.Format == flat.FormatModule }

// CompileGeneration lowers doc into a new generation and encodes it: as a
// full module when prev is nil, otherwise as a patch from prev. st must be
// the store lw interns into.
func CompileGeneration(ctx context.Context, lw *lower.Lowerer, st *store.Store, doc *frame.Document, prev *vector.Generation) (*vector.Generation, []byte, error) {
	seq := uint64(1)
	if prev != nil {
		seq = prev.Seq + 1
	}
	gen, err := build(ctx, lw, st, doc, seq, nil)
	if err != nil {
		return nil, nil, err
	}
	msg, err := encode(st, prev, gen, nil)
	if err != nil {
		return nil, nil, err
	}
	return gen, msg.Bytes, nil
}

// build lowers doc and snapshots the result as generation seq.
func build(ctx context.Context, lw *lower.Lowerer, st *store.Store, doc *frame.Document, seq uint64, tr *Trace) (*vector.Generation, error) {
	start := time.Now()
	pages, err := lw.LowerPages(ctx, doc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := st.Snapshot(ulid.Make(), pages)
	if err != nil {
		return nil, fmt.Errorf("compiler: snapshot: %w", err)
	}
	tr.since(PhaseLower, start)
	return vector.NewGeneration(seq, m), nil
}

// encode produces the bytes that take a consumer holding base to gen.
func encode(st *store.Store, base, gen *vector.Generation, tr *Trace) (Message, error) {
	msg := Message{Target: gen.ID(), Seq: gen.Seq}
	if base == nil {
		start := time.Now()
		b, err := flat.EncodeModule(gen.Module, flat.WithPayloads(st))
		if err != nil {
			return Message{}, fmt.Errorf("compiler: encode module: %w", err)
		}
		tr.since(PhaseEncode, start)
		msg.Format = flat.FormatModule
		msg.Bytes = b
		return msg, nil
	}

	start := time.Now()
	p := diff.Diff(base, gen)
	tr.since(PhaseDiff, start)

	start = time.Now()
	b, err := flat.EncodePatch(p, flat.WithPayloads(st))
	if err != nil {
		return Message{}, fmt.Errorf("compiler: encode patch: %w", err)
	}
	tr.since(PhaseEncode, start)
	msg.Format = flat.FormatPatch
	msg.Base = base.ID()
	msg.Bytes = b
	return msg, nil
}

// Compiler is a producer session. It is safe for concurrent use; compiles
// are serialized.
type Compiler struct {
	lower *lower.Lowerer
	store *store.Store
	opts  options
	trace *Trace

	// compileMu is held for the whole of Compile. Store compaction only
	// runs under it, so it never removes items a lowering in flight has
	// just interned.
	compileMu sync.Mutex

	mu       sync.Mutex
	seq      uint64
	latest   *vector.Generation
	baseline *vector.Generation
	emitted  map[ulid.ULID]*vector.Generation
	compact  bool
}

// New returns a Compiler lowering with lw into st. st must be the store
// lw interns into.
func New(lw *lower.Lowerer, st *store.Store, opts ...Option) *Compiler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	tr := o.trace
	if tr == nil {
		tr = &Trace{}
	}
	return &Compiler{
		lower:   lw,
		store:   st,
		opts:    o,
		trace:   tr,
		emitted: make(map[ulid.ULID]*vector.Generation),
	}
}

func (c *Compiler) log() *slog.Logger {
	if c.opts.logger != nil {
		return c.opts.logger
	}
	return vecsync.Logger()
}

// Store returns the compiler's store.
func (c *Compiler) Store() *store.Store { return c.store }

// Trace returns the compiler's phase counters.
func (c *Compiler) Trace() *Trace { return c.trace }

// Compile lowers doc into the next generation. On error or cancellation
// nothing is recorded and the baseline is untouched.
func (c *Compiler) Compile(ctx context.Context, doc *frame.Document) (*vector.Generation, error) {
	c.compileMu.Lock()
	defer c.compileMu.Unlock()

	c.mu.Lock()
	seq := c.seq + 1
	c.mu.Unlock()

	gen, err := build(ctx, c.lower, c.store, doc, seq, c.trace)
	if err != nil {
		if ctx.Err() != nil {
			c.log().Debug("compiler: compile canceled", "seq", seq)
		} else {
			c.log().Warn("compiler: compile failed", "seq", seq, "err", err)
		}
		c.compactLocked()
		return nil, err
	}

	c.mu.Lock()
	c.seq = seq
	c.latest = gen
	c.mu.Unlock()

	c.log().Debug("compiler: generation built",
		"seq", seq, "id", gen.ID().String(),
		"pages", len(gen.Module.Pages), "items", len(gen.Module.Items),
		"store", c.store.Len())
	c.compactLocked()
	return gen, nil
}

// Emit encodes gen for the consumer: as a patch from the acknowledged
// baseline, or as a full module when there is none. Generations emitted
// since the baseline are skipped over, not chained.
func (c *Compiler) Emit(gen *vector.Generation) (Message, error) {
	if gen == nil {
		return Message{}, ErrNilGeneration
	}
	c.mu.Lock()
	base := c.baseline
	c.mu.Unlock()

	msg, err := encode(c.store, base, gen, c.trace)
	if err != nil {
		return Message{}, err
	}

	c.mu.Lock()
	c.remember(gen)
	c.mu.Unlock()

	c.log().Debug("compiler: emitted",
		"seq", gen.Seq, "format", msg.Format.String(),
		"base", msg.Base.String(), "bytes", len(msg.Bytes))
	return msg, nil
}

// remember records gen as emitted, dropping the oldest entries beyond the
// history limit. c.mu must be held.
func (c *Compiler) remember(gen *vector.Generation) {
	c.emitted[gen.ID()] = gen
	for len(c.emitted) > c.opts.history {
		var oldest *vector.Generation
		for _, g := range c.emitted {
			if oldest == nil || g.Seq < oldest.Seq {
				oldest = g
			}
		}
		delete(c.emitted, oldest.ID())
	}
}

// Ack records that the consumer applied the generation id. The baseline
// only moves forward, and only to an emitted generation. Acknowledging the
// baseline again is a no-op; generations emitted before it are forgotten.
// Once the baseline moves, the store is compacted to what the baseline and
// the latest generation reach.
func (c *Compiler) Ack(id ulid.ULID) error {
	c.mu.Lock()
	gen, ok := c.emitted[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotEmitted, id)
	}
	if c.baseline != nil && gen.Seq <= c.baseline.Seq {
		c.mu.Unlock()
		return nil
	}
	c.baseline = gen
	for k, g := range c.emitted {
		if g.Seq < gen.Seq {
			delete(c.emitted, k)
		}
	}
	c.compact = true
	c.mu.Unlock()

	c.log().Debug("compiler: acknowledged", "seq", gen.Seq, "id", id.String())

	// A compile in flight compacts when it finishes.
	if c.compileMu.TryLock() {
		c.compactLocked()
		c.compileMu.Unlock()
	}
	return nil
}

// Resync forgets the baseline, so the next Emit produces a full module.
func (c *Compiler) Resync() {
	c.mu.Lock()
	c.baseline = nil
	clear(c.emitted)
	c.mu.Unlock()
	c.log().Info("compiler: resync requested, next update is a full module")
}

// Compact removes from the store every item that neither the baseline nor
// the latest generation reaches, and returns how many were removed. It
// waits for a compile in flight.
func (c *Compiler) Compact() int {
	c.compileMu.Lock()
	defer c.compileMu.Unlock()
	c.mu.Lock()
	c.compact = true
	c.mu.Unlock()
	return c.compactLocked()
}

// compactLocked runs a pending compaction. compileMu must be held.
func (c *Compiler) compactLocked() int {
	c.mu.Lock()
	if !c.compact {
		c.mu.Unlock()
		return 0
	}
	c.compact = false
	keep := make(vector.Set)
	for _, g := range []*vector.Generation{c.baseline, c.latest} {
		if g == nil {
			continue
		}
		for fp := range g.Reachable() {
			keep.Add(fp)
		}
	}
	c.mu.Unlock()
	return c.store.Retain(keep)
}

// Baseline returns the acknowledged generation, or nil.
func (c *Compiler) Baseline() *vector.Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseline
}

// Latest returns the most recently built generation, or nil.
func (c *Compiler) Latest() *vector.Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}
