// Package flat encodes modules and patches into a flat little-endian
// binary layout and decodes them without trusting the producer.
//
// # Module layout
//
//	header      40 bytes
//	  magic       [4]byte  "VSYM"
//	  version     u16      major<<8 | minor
//	  flags       u16      reserved, zero
//	  itemCount   u32
//	  pageCount   u32
//	  refCount    u32      entries in the reference table
//	  payloadLen  u32      bytes in the payload region
//	  id          [16]byte generation ULID
//	descriptors itemCount × 36 bytes, ascending by fingerprint
//	  fp          [16]byte
//	  kind        u8
//	  flags       u8       bit 0: required
//	  reserved    u16
//	  payloadOff  u32      offset into the payload region
//	  payloadLen  u32
//	  refOff      u32      first entry in the reference table
//	  refCount    u32
//	references  refCount × 16 bytes
//	payload     payloadLen bytes
//	pages       pageCount × 24 bytes: root [16]byte, width i32, height i32
//
// # Patch layout
//
//	header      64 bytes
//	  magic       [4]byte  "VSYP"
//	  version     u16
//	  flags       u16
//	  itemCount   u32      added items
//	  refCount    u32
//	  payloadLen  u32
//	  staleCount  u32
//	  opCount     u32
//	  reserved    u32
//	  base        [16]byte
//	  target      [16]byte
//	descriptors, references, payload as in a module
//	stale       staleCount × 16 bytes
//	ops         opCount × 32 bytes: kind u8, pad [3]byte, index u32, page record
//
// Decoders check that the declared sizes account for the buffer exactly
// before reading anything else, bound every offset, and by default
// recompute every item fingerprint. A buffer that fails any check yields a
// *DecodeError and no partial result.
//
// Decoders accept any minor version of the major version they implement.
// Items of kinds this build does not know are kept as *vector.Unknown when
// flagged optional and rejected when flagged required.
package flat
