package compiler

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync/frame"
	"github.com/gogpu/vecsync/vector"
)

// ErrActorStopped is returned when talking to an actor whose Run has
// returned.
var ErrActorStopped = errors.New("compiler: actor stopped")

// Sink receives every message the actor emits. It is called on the actor
// goroutine.
type Sink func(Message)

// ErrorSink receives compile and emit failures for the newest edit. It is
// called on the actor goroutine.
type ErrorSink func(error)

// Actor owns a Compiler and drives it from one goroutine. Every event
// advances a logical clock. Queued edits are coalesced so only the newest
// document is compiled, and an edit that arrives while a compile is
// running cancels it; a compile that finishes after a newer edit arrived
// is discarded.
type Actor struct {
	c      *Compiler
	sink   Sink
	onErr  ErrorSink

	edits chan *frame.Document
	tasks chan func(*Actor)
	acks  chan ulid.ULID
	done  chan struct{}

	// compile is replaced in tests.
	compile func(context.Context, *frame.Document) (*vector.Generation, error)

	// Owned by the actor goroutine.
	tick     uint64
	lastEdit uint64
	latest   *vector.Generation

	compiles  atomic.Uint64
	discarded atomic.Uint64
}

// ActorStats counts what an actor did.
type ActorStats struct {
	Compiles  uint64
	Discarded uint64
}

// NewActor returns an actor driving c and delivering messages to sink.
// queue is the edit buffer size; values below 1 mean the default.
func NewActor(c *Compiler, sink Sink, queue int) *Actor {
	if queue < 1 {
		queue = defaultQueue
	}
	a := &Actor{
		c:     c,
		sink:  sink,
		edits: make(chan *frame.Document, queue),
		tasks: make(chan func(*Actor)),
		acks:  make(chan ulid.ULID),
		done:  make(chan struct{}),
		tick:  1,
	}
	a.compile = c.Compile
	return a
}

// OnError sets the function told about failures that leave the newest
// edit without a message. It must be called before Run.
func (a *Actor) OnError(fn ErrorSink) { a.onErr = fn }

// Compiler returns the compiler the actor drives.
func (a *Actor) Compiler() *Compiler { return a.c }

// Tick returns the logical clock. Call it only from a Steal function.
func (a *Actor) Tick() uint64 { return a.tick }

// Latest returns the newest generation the actor emitted. Call it only
// from a Steal function.
func (a *Actor) Latest() *vector.Generation { return a.latest }

// Stats returns the actor's counters.
func (a *Actor) Stats() ActorStats {
	return ActorStats{Compiles: a.compiles.Load(), Discarded: a.discarded.Load()}
}

// Edit queues doc for compilation. It blocks while the queue is full.
func (a *Actor) Edit(ctx context.Context, doc *frame.Document) error {
	select {
	case <-a.done:
		return ErrActorStopped
	default:
	}
	select {
	case a.edits <- doc:
		return nil
	case <-a.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ack forwards a consumer acknowledgement to the compiler. It returns once
// the actor has taken the acknowledgement, so a later Steal observes it.
func (a *Actor) Ack(ctx context.Context, id ulid.ULID) error {
	select {
	case a.acks <- id:
		return nil
	case <-a.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Steal runs fn on the actor goroutine and waits for it to return. fn
// must not call back into the actor.
func (a *Actor) Steal(ctx context.Context, fn func(*Actor)) error {
	ran := make(chan struct{})
	task := func(a *Actor) {
		defer close(ran)
		fn(a)
	}
	select {
	case a.tasks <- task:
	case <-a.done:
		return ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type compileResult struct {
	tick uint64
	gen  *vector.Generation
	err  error
}

// Run processes events until ctx is done. A compile in flight is canceled
// and waited for before Run returns. Run must be called once.
func (a *Actor) Run(ctx context.Context) error {
	log := a.c.log()
	log.Info("compiler: actor started")
	defer close(a.done)

	var (
		pending *frame.Document
		cancel  context.CancelFunc
	)
	results := make(chan compileResult, 1)

	for {
		select {
		case <-ctx.Done():
			if cancel != nil {
				cancel()
				<-results
			}
			log.Info("compiler: actor stopped", "tick", a.tick)
			return ctx.Err()

		case doc := <-a.edits:
			a.edit(doc, &pending)
			if cancel != nil {
				cancel()
			}

		case task := <-a.tasks:
			a.tick++
			log.Debug("compiler: actor task", "tick", a.tick)
			task(a)

		case id := <-a.acks:
			a.tick++
			if err := a.c.Ack(id); err != nil {
				log.Warn("compiler: acknowledgement ignored", "id", id.String(), "err", err)
			}

		case r := <-results:
			cancel()
			cancel = nil
			a.finish(r)
		}

		// Take everything else already queued before deciding to compile.
		if a.drain(&pending) && cancel != nil {
			cancel()
		}

		if cancel == nil && pending != nil {
			var cctx context.Context
			cctx, cancel = context.WithCancel(ctx)
			doc, tick := pending, a.tick
			pending = nil
			go func() {
				gen, err := a.compile(cctx, doc)
				results <- compileResult{tick: tick, gen: gen, err: err}
			}()
		}
	}
}

// edit records doc as the newest pending document.
func (a *Actor) edit(doc *frame.Document, pending **frame.Document) {
	a.tick++
	a.lastEdit = a.tick
	*pending = doc
}

// drain takes queued edits without blocking and reports whether there
// were any.
func (a *Actor) drain(pending **frame.Document) bool {
	took := false
	for {
		select {
		case doc := <-a.edits:
			a.edit(doc, pending)
			took = true
		default:
			return took
		}
	}
}

// finish emits a compile result unless an edit arrived after the compile
// started.
func (a *Actor) finish(r compileResult) {
	log := a.c.log()
	if r.err != nil {
		if r.tick < a.lastEdit {
			log.Debug("compiler: superseded compile canceled", "tick", r.tick)
		} else {
			log.Warn("compiler: compile failed", "tick", r.tick, "err", r.err)
			a.fail(r.err)
		}
		a.discarded.Add(1)
		return
	}
	if r.tick < a.lastEdit {
		log.Warn("compiler: discarded stale generation", "seq", r.gen.Seq, "tick", r.tick, "edit", a.lastEdit)
		a.discarded.Add(1)
		return
	}
	a.compiles.Add(1)
	a.latest = r.gen

	msg, err := a.c.Emit(r.gen)
	if err != nil {
		log.Warn("compiler: emit failed", "seq", r.gen.Seq, "err", err)
		a.fail(err)
		return
	}
	if a.sink != nil {
		a.sink(msg)
	}
}

func (a *Actor) fail(err error) {
	if a.onErr != nil {
		a.onErr(err)
	}
}
