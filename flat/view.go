package flat

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

// View gives random access to an encoded module without decoding every
// item up front. Open validates the header, the size accounting, the
// descriptor order and bounds; items are decoded and verified on access.
//
// A View aliases buf, which must not be modified while the View is in use.
type View struct {
	h      moduleHeader
	verify bool
}

// Open validates the framing of a module buffer and returns a View.
func Open(buf []byte, opts ...Option) (*View, error) {
	c := newConfig(opts)
	h, err := parseModuleHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := h.t.sorted(); err != nil {
		return nil, err
	}
	for i := range h.t.itemCount {
		if _, err := h.t.descriptor(i); err != nil {
			return nil, err
		}
	}
	return &View{h: h, verify: c.verify}, nil
}

// ID returns the generation id of the module.
func (v *View) ID() ulid.ULID { return v.h.id }

// Len returns the number of items.
func (v *View) Len() int { return v.h.t.itemCount }

// PageCount returns the number of pages.
func (v *View) PageCount() int { return v.h.pageCount }

// Fingerprint returns the fingerprint of item i.
func (v *View) Fingerprint(i int) fingerprint.Fingerprint {
	off := v.h.t.descOff + i*descriptorSize
	return fingerprint.Fingerprint(v.h.t.buf[off : off+16])
}

// Item decodes item i.
func (v *View) Item(i int) (fingerprint.Fingerprint, vector.Item, error) {
	if i < 0 || i >= v.h.t.itemCount {
		return fingerprint.Fingerprint{}, nil, fmt.Errorf("flat: item index %d out of range [0, %d)", i, v.h.t.itemCount)
	}
	d, err := v.h.t.descriptor(i)
	if err != nil {
		return fingerprint.Fingerprint{}, nil, err
	}
	it, err := v.h.t.item(i, d, v.verify)
	return d.fp, it, err
}

// Page returns page i.
func (v *View) Page(i int) (vector.Page, error) {
	if i < 0 || i >= v.h.pageCount {
		return vector.Page{}, fmt.Errorf("flat: page index %d out of range [0, %d)", i, v.h.pageCount)
	}
	off := v.h.pageOff + i*pageSize
	return readPage(v.h.t.buf[off : off+pageSize]), nil
}

// Lookup finds and decodes the item with fingerprint fp.
func (v *View) Lookup(fp fingerprint.Fingerprint) (vector.Item, bool, error) {
	i, ok := v.h.t.search(fp)
	if !ok {
		return nil, false, nil
	}
	_, it, err := v.Item(i)
	if err != nil {
		return nil, false, err
	}
	return it, true, nil
}

// Kinds counts items per kind without decoding payloads.
func (v *View) Kinds() map[vector.Kind]int {
	counts := make(map[vector.Kind]int)
	for i := range v.h.t.itemCount {
		off := v.h.t.descOff + i*descriptorSize
		counts[vector.Kind(v.h.t.buf[off+16])]++
	}
	return counts
}

// PayloadBytes returns the size of the payload region.
func (v *View) PayloadBytes() int { return v.h.t.payloadLen }
