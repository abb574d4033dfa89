package flat

import (
	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

// checkSize compares the declared layout size with the buffer length.
func checkSize(buf []byte, want uint64) error {
	have := uint64(len(buf))
	switch {
	case have < want:
		return decodeErr(TruncatedPayload, len(buf), "buffer of %d bytes, header declares %d", have, want)
	case have > want:
		return decodeErr(OffsetOutOfBounds, int(want), "%d trailing bytes after declared layout", have-want)
	}
	return nil
}

// moduleHeader is the parsed fixed part of a module buffer.
type moduleHeader struct {
	id        ulid.ULID
	pageCount int
	pageOff   int
	t         tables
}

func parseModuleHeader(buf []byte) (moduleHeader, error) {
	var h moduleHeader
	if err := checkVersion(buf, moduleMagic); err != nil {
		return h, err
	}
	if len(buf) < moduleHeaderSize {
		return h, decodeErr(TruncatedPayload, len(buf), "module header needs %d bytes", moduleHeaderSize)
	}
	items := uint64(le.Uint32(buf[8:]))
	pages := uint64(le.Uint32(buf[12:]))
	refs := uint64(le.Uint32(buf[16:]))
	payload := uint64(le.Uint32(buf[20:]))
	want := layoutSize(moduleHeaderSize,
		[2]uint64{items, descriptorSize},
		[2]uint64{refs, refSize},
		[2]uint64{payload, 1},
		[2]uint64{pages, pageSize})
	if err := checkSize(buf, want); err != nil {
		return h, err
	}
	copy(h.id[:], buf[24:40])
	h.t = newTables(buf, moduleHeaderSize, items, refs, payload)
	h.pageCount = int(pages)
	h.pageOff = h.t.payloadOff + h.t.payloadLen
	return h, nil
}

func newTables(buf []byte, off int, items, refs, payload uint64) tables {
	t := tables{
		buf:        buf,
		itemCount:  int(items),
		descOff:    off,
		refCount:   int(refs),
		payloadLen: int(payload),
	}
	t.refOff = t.descOff + t.itemCount*descriptorSize
	t.payloadOff = t.refOff + t.refCount*refSize
	return t
}

// decodeItems decodes every descriptor into a map keyed by fingerprint.
func (t *tables) decodeItems(verify bool) (map[fingerprint.Fingerprint]vector.Item, error) {
	if err := t.sorted(); err != nil {
		return nil, err
	}
	items := make(map[fingerprint.Fingerprint]vector.Item, t.itemCount)
	for i := range t.itemCount {
		d, err := t.descriptor(i)
		if err != nil {
			return nil, err
		}
		it, err := t.item(i, d, verify)
		if err != nil {
			return nil, err
		}
		items[d.fp] = it
	}
	return items, nil
}

// resolve checks that every reference names an item in items or, when
// known is non-nil, an item the consumer already holds.
func resolve(items map[fingerprint.Fingerprint]vector.Item, known func(fingerprint.Fingerprint) bool) error {
	for fp, it := range items {
		for _, r := range it.Refs() {
			if _, ok := items[r]; ok {
				continue
			}
			if known != nil && known(r) {
				continue
			}
			return decodeErr(DanglingReference, -1, "item %s references missing %s", fp.Short(), r.Short())
		}
	}
	return nil
}

// acyclic rejects reference cycles. Verified fingerprints cannot form a
// cycle, so this only matters for buffers decoded without verification.
func acyclic(items map[fingerprint.Fingerprint]vector.Item) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[fingerprint.Fingerprint]uint8, len(items))
	type frame struct {
		fp   fingerprint.Fingerprint
		refs []fingerprint.Fingerprint
	}
	for start := range items {
		if state[start] != 0 {
			continue
		}
		state[start] = visiting
		stack := []frame{{start, items[start].Refs()}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if len(top.refs) == 0 {
				state[top.fp] = done
				stack = stack[:len(stack)-1]
				continue
			}
			next := top.refs[0]
			top.refs = top.refs[1:]
			child, ok := items[next]
			if !ok {
				continue
			}
			switch state[next] {
			case visiting:
				return decodeErr(DanglingReference, -1, "reference cycle through %s", next.Short())
			case done:
				continue
			}
			state[next] = visiting
			stack = append(stack, frame{next, child.Refs()})
		}
	}
	return nil
}

// DecodeModule decodes and validates a module buffer. On error no module
// is returned.
func DecodeModule(buf []byte, opts ...Option) (*vector.Module, error) {
	c := newConfig(opts)
	h, err := parseModuleHeader(buf)
	if err != nil {
		return nil, err
	}
	items, err := h.t.decodeItems(c.verify)
	if err != nil {
		return nil, err
	}
	if err := resolve(items, nil); err != nil {
		return nil, err
	}
	if !c.verify {
		if err := acyclic(items); err != nil {
			return nil, err
		}
	}
	m := &vector.Module{ID: h.id, Items: items, Pages: make([]vector.Page, h.pageCount)}
	for i := range m.Pages {
		off := h.pageOff + i*pageSize
		p := readPage(buf[off : off+pageSize])
		if _, ok := items[p.Root]; !ok {
			return nil, decodeErr(DanglingReference, off, "page %d root %s not in module", i, p.Root.Short())
		}
		m.Pages[i] = p
	}
	return m, nil
}

// DecodePatch decodes and validates a patch buffer. References from added
// items may name items outside the patch; the consumer checks those
// against its base when applying.
func DecodePatch(buf []byte, opts ...Option) (*vector.Patch, error) {
	c := newConfig(opts)
	if err := checkVersion(buf, patchMagic); err != nil {
		return nil, err
	}
	if len(buf) < patchHeaderSize {
		return nil, decodeErr(TruncatedPayload, len(buf), "patch header needs %d bytes", patchHeaderSize)
	}
	items := uint64(le.Uint32(buf[8:]))
	refs := uint64(le.Uint32(buf[12:]))
	payload := uint64(le.Uint32(buf[16:]))
	stale := uint64(le.Uint32(buf[20:]))
	ops := uint64(le.Uint32(buf[24:]))
	want := layoutSize(patchHeaderSize,
		[2]uint64{items, descriptorSize},
		[2]uint64{refs, refSize},
		[2]uint64{payload, 1},
		[2]uint64{stale, refSize},
		[2]uint64{ops, opSize})
	if err := checkSize(buf, want); err != nil {
		return nil, err
	}

	p := &vector.Patch{}
	copy(p.Base[:], buf[32:48])
	copy(p.Target[:], buf[48:64])
	t := newTables(buf, patchHeaderSize, items, refs, payload)
	added, err := t.decodeItems(c.verify)
	if err != nil {
		return nil, err
	}
	if !c.verify {
		if err := acyclic(added); err != nil {
			return nil, err
		}
	}
	p.Added = added

	off := t.payloadOff + t.payloadLen
	p.Stale = make([]fingerprint.Fingerprint, stale)
	for i := range p.Stale {
		copy(p.Stale[i][:], buf[off:off+refSize])
		off += refSize
	}
	p.Ops = make([]vector.PageOp, ops)
	for i := range p.Ops {
		b := buf[off : off+opSize]
		kind := vector.PageOpKind(b[0])
		if kind > vector.PageRemoved {
			return nil, decodeErr(OffsetOutOfBounds, off, "page op %d has kind %d", i, b[0])
		}
		idx := uint64(le.Uint32(b[4:]))
		if idx >= ops {
			return nil, decodeErr(OffsetOutOfBounds, off+4, "page op %d index %d outside %d ops", i, idx, ops)
		}
		p.Ops[i] = vector.PageOp{Kind: kind, Index: int(idx), Page: readPage(b[8:])}
		off += opSize
	}
	return p, nil
}
