// Package vecsync turns a typeset document's drawing output into a compact,
// content-addressed vector representation and keeps a remote consumer in
// sync with it incrementally.
//
// # Overview
//
// A compile pass lowers the typesetting engine's scene tree ([frame]) into
// fingerprinted vector items ([vector]) held in a deduplicating store
// ([store]). The resulting generation is either shipped whole in the flat
// binary format ([flat]) or diffed against the last generation the consumer
// acknowledged ([diff]) and shipped as a patch. On the consumer side a
// mirrored store ([mirror]) absorbs modules and patches and drives a
// rendering backend ([backend]).
//
//	st := store.New()
//	lw := lower.New(st)
//	c := compiler.New(lw, st)
//
//	gen, _ := c.Compile(ctx, doc)
//	msg, _ := c.Emit(gen)       // full module bytes the first time
//	recv.Receive(msg.Bytes)     // consumer side
//	c.Ack(gen.ID())             // later emits are patches against gen
//
// # Architecture
//
// The library is organized into:
//   - Data model: fingerprint, vector
//   - Producer: frame (input), text (fonts), lower, store, diff, flat, compiler
//   - Consumer: mirror, backend, backend/raster, backend/svg
//
// # Fingerprints
//
// Every item is identified by a 128-bit BLAKE3 digest of its kind, its
// quantized payload and the fingerprints it references. Equal content always
// yields an equal fingerprint, which is what makes cross-page and
// cross-generation sharing free.
package vecsync

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
