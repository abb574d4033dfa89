// Package compiler is the producer side of a synchronization session.
//
// A [Compiler] turns documents into generations, encodes each one for the
// consumer and tracks which generation the consumer has acknowledged. Patches
// are always computed against the acknowledged baseline, so a consumer that
// falls behind receives one patch covering every generation it skipped.
//
//	c := compiler.New(lower.New(st), st)
//	gen, err := c.Compile(ctx, doc)
//	msg, err := c.Emit(gen)
//	// ship msg.Bytes; once applied:
//	c.Ack(gen.ID())
//
// An [Actor] drives a Compiler from a single goroutine. Edits that arrive
// while a compile is running cancel it; queued edits are coalesced so only
// the newest document is compiled.
package compiler
