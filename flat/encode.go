package flat

import (
	"fmt"
	"slices"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

// itemTables holds items in descriptor order with their encodings.
type itemTables struct {
	fps        []fingerprint.Fingerprint
	items      []vector.Item
	payloads   [][]byte
	refCount   int
	payloadLen int
}

func (c *config) collect(items map[fingerprint.Fingerprint]vector.Item) (*itemTables, error) {
	t := &itemTables{fps: make([]fingerprint.Fingerprint, 0, len(items))}
	for fp := range items {
		t.fps = append(t.fps, fp)
	}
	slices.SortFunc(t.fps, fingerprint.Fingerprint.Compare)
	t.items = make([]vector.Item, len(t.fps))
	t.payloads = make([][]byte, len(t.fps))
	for i, fp := range t.fps {
		it := items[fp]
		var payload []byte
		if c.payloads != nil {
			payload, _ = c.payloads.Payload(fp)
		}
		if payload == nil {
			payload = it.AppendPayload(nil)
		}
		t.items[i] = it
		t.payloads[i] = payload
		t.refCount += len(it.Refs())
		t.payloadLen += len(payload)
	}
	if !fits32(len(t.fps)) || !fits32(t.refCount) || !fits32(t.payloadLen) {
		return nil, ErrTooLarge
	}
	return t, nil
}

func (t *itemTables) size() int {
	return len(t.fps)*descriptorSize + t.refCount*refSize + t.payloadLen
}

// appendTo writes descriptors, the reference table and the payload region.
func (t *itemTables) appendTo(dst []byte) []byte {
	payloadOff, refOff := 0, 0
	for i, fp := range t.fps {
		it := t.items[i]
		refs := len(it.Refs())
		var flags uint8
		if required(it) {
			flags |= flagRequired
		}
		dst = append(dst, fp[:]...)
		dst = append(dst, byte(it.Kind()), flags, 0, 0)
		dst = le.AppendUint32(dst, uint32(payloadOff))
		dst = le.AppendUint32(dst, uint32(len(t.payloads[i])))
		dst = le.AppendUint32(dst, uint32(refOff))
		dst = le.AppendUint32(dst, uint32(refs))
		payloadOff += len(t.payloads[i])
		refOff += refs
	}
	for _, it := range t.items {
		for _, r := range it.Refs() {
			dst = append(dst, r[:]...)
		}
	}
	for _, p := range t.payloads {
		dst = append(dst, p...)
	}
	return dst
}

func required(it vector.Item) bool {
	if u, ok := it.(*vector.Unknown); ok {
		return !u.Optional
	}
	return it.Kind().Required()
}

// EncodeModule encodes m. Every reference in m must resolve.
func EncodeModule(m *vector.Module, opts ...Option) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("flat: encode: %w", err)
	}
	c := newConfig(opts)
	t, err := c.collect(m.Items)
	if err != nil {
		return nil, err
	}
	if !fits32(len(m.Pages)) {
		return nil, ErrTooLarge
	}

	buf := make([]byte, 0, moduleHeaderSize+t.size()+len(m.Pages)*pageSize)
	buf = append(buf, moduleMagic[:]...)
	buf = le.AppendUint16(buf, Version)
	buf = le.AppendUint16(buf, 0)
	buf = le.AppendUint32(buf, uint32(len(t.fps)))
	buf = le.AppendUint32(buf, uint32(len(m.Pages)))
	buf = le.AppendUint32(buf, uint32(t.refCount))
	buf = le.AppendUint32(buf, uint32(t.payloadLen))
	buf = append(buf, m.ID[:]...)
	buf = t.appendTo(buf)
	for _, p := range m.Pages {
		buf = appendPage(buf, p)
	}
	return buf, nil
}

// EncodePatch encodes p.
func EncodePatch(p *vector.Patch, opts ...Option) ([]byte, error) {
	c := newConfig(opts)
	t, err := c.collect(p.Added)
	if err != nil {
		return nil, err
	}
	if !fits32(len(p.Stale)) || !fits32(len(p.Ops)) {
		return nil, ErrTooLarge
	}

	buf := make([]byte, 0, patchHeaderSize+t.size()+len(p.Stale)*refSize+len(p.Ops)*opSize)
	buf = append(buf, patchMagic[:]...)
	buf = le.AppendUint16(buf, Version)
	buf = le.AppendUint16(buf, 0)
	buf = le.AppendUint32(buf, uint32(len(t.fps)))
	buf = le.AppendUint32(buf, uint32(t.refCount))
	buf = le.AppendUint32(buf, uint32(t.payloadLen))
	buf = le.AppendUint32(buf, uint32(len(p.Stale)))
	buf = le.AppendUint32(buf, uint32(len(p.Ops)))
	buf = le.AppendUint32(buf, 0)
	buf = append(buf, p.Base[:]...)
	buf = append(buf, p.Target[:]...)
	buf = t.appendTo(buf)
	for _, fp := range p.Stale {
		buf = append(buf, fp[:]...)
	}
	for _, op := range p.Ops {
		if !fits32(op.Index) {
			return nil, fmt.Errorf("flat: encode: page op index %d out of range", op.Index)
		}
		buf = append(buf, byte(op.Kind), 0, 0, 0)
		buf = le.AppendUint32(buf, uint32(op.Index))
		buf = appendPage(buf, op.Page)
	}
	return buf, nil
}
