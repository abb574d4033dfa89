// Package backend defines the consumer side of a vecsync session: the
// Backend contract that turns a mirrored module into output, a registry of
// named backends, and a Receiver that feeds encoded bytes to a backend.
//
// # Backend Registration
//
// Backends register themselves from init(), following the database/sql
// driver pattern, and are created by name:
//
//	import _ "github.com/gogpu/vecsync/backend/raster"
//
//	b, err := backend.New("raster", backend.Options{Fonts: lib})
//
// # Receiving Updates
//
// A Receiver decodes each buffer, applies it as a full module or a patch,
// and reports the applied generation so the producer can advance its
// baseline. When a buffer cannot be decoded or a patch does not fit the
// mirror, the mirror is left as it was and the resync callback asks the
// producer for a full module:
//
//	recv := backend.NewReceiver(b,
//		backend.OnAcknowledge(func(id ulid.ULID) { ack <- id }),
//		backend.OnResync(func(err error) { resync <- struct{}{} }))
//	if err := recv.Receive(buf); err != nil { ... }
//
// # Available Backends
//
//   - "raster": paints pages into RGBA images, repainting only pages that
//     changed since they were last painted
//   - "svg": keeps one SVG element tree per page and rebuilds only the
//     trees of changed pages
package backend
