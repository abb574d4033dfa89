package vector

import (
	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync/fingerprint"
)

// PageOpKind classifies how a page position changed between generations.
type PageOpKind uint8

const (
	PageUnchanged PageOpKind = iota
	PageReplaced
	PageInserted
	PageRemoved
)

// String returns a human-readable name for the op kind.
func (k PageOpKind) String() string {
	switch k {
	case PageUnchanged:
		return "Unchanged"
	case PageReplaced:
		return "Replaced"
	case PageInserted:
		return "Inserted"
	case PageRemoved:
		return "Removed"
	default:
		return unknownStr
	}
}

// PageOp is one entry of a patch's page list. Page is meaningful for
// Replaced and Inserted ops and records the prior page for Unchanged.
type PageOp struct {
	Kind  PageOpKind
	Index int
	Page  Page
}

// Patch transforms the consumer state for generation Base into the state
// for generation Target.
//
// Ops are ordered by Index. Unchanged, Replaced and Inserted ops together
// cover indexes 0..n-1 of the target page list; Removed ops follow and name
// trailing indexes of the base page list.
type Patch struct {
	Base   ulid.ULID
	Target ulid.ULID
	// Added holds items reachable from Target but not from Base.
	Added map[fingerprint.Fingerprint]Item
	// Stale lists fingerprints reachable from Base but not from Target,
	// in ascending order.
	Stale []fingerprint.Fingerprint
	Ops   []PageOp
}

// IsEmpty reports whether applying p changes nothing besides the module
// identity.
func (p *Patch) IsEmpty() bool {
	if len(p.Added) > 0 || len(p.Stale) > 0 {
		return false
	}
	for _, op := range p.Ops {
		if op.Kind != PageUnchanged {
			return false
		}
	}
	return true
}

// PageCount returns the number of pages in the target generation.
func (p *Patch) PageCount() int {
	n := 0
	for _, op := range p.Ops {
		if op.Kind != PageRemoved {
			n++
		}
	}
	return n
}
