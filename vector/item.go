package vector

import (
	"errors"
	"fmt"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
)

// Item is an immutable node of the vector graph. Two items with the same
// fingerprint are interchangeable; once an item has been handed to a Store
// it must not be mutated.
type Item interface {
	// Kind returns the item variant. For Unknown items this is the
	// original wire tag.
	Kind() Kind

	// AppendPayload appends the canonical payload encoding to dst.
	AppendPayload(dst []byte) []byte

	// Refs returns the fingerprints of the items this item references,
	// in canonical order. Callers must not modify the returned slice.
	Refs() []fingerprint.Fingerprint
}

// Fill describes how the interior of a path is painted.
type Fill struct {
	Color Color
	Rule  FillRule
}

// Stroke describes how the outline of a path is painted.
type Stroke struct {
	Color      Color
	Width      fixed.Int26_6
	Cap        LineCap
	Join       LineJoin
	MiterLimit fixed.Int26_6
	Dashes     []fixed.Int26_6
	DashOffset fixed.Int26_6
}

// Path is a filled and/or stroked outline in item-local coordinates.
type Path struct {
	Segments []Segment
	Fill     *Fill
	Stroke   *Stroke
}

// Kind implements Item.
func (*Path) Kind() Kind { return KindPath }

// Refs implements Item.
func (*Path) Refs() []fingerprint.Fingerprint { return nil }

const (
	pathHasFill   = 1 << 0
	pathHasStroke = 1 << 1
)

// AppendPayload implements Item.
func (p *Path) AppendPayload(dst []byte) []byte {
	dst = appendSegments(dst, p.Segments)
	var flags uint8
	if p.Fill != nil {
		flags |= pathHasFill
	}
	if p.Stroke != nil {
		flags |= pathHasStroke
	}
	dst = appendU8(dst, flags)
	if f := p.Fill; f != nil {
		dst = appendU32(dst, uint32(f.Color))
		dst = appendU8(dst, uint8(f.Rule))
	}
	if s := p.Stroke; s != nil {
		dst = appendU32(dst, uint32(s.Color))
		dst = appendI32(dst, int32(s.Width))
		dst = appendU8(dst, uint8(s.Cap))
		dst = appendU8(dst, uint8(s.Join))
		dst = appendI32(dst, int32(s.MiterLimit))
		dst = appendU32(dst, uint32(len(s.Dashes)))
		for _, d := range s.Dashes {
			dst = appendI32(dst, int32(d))
		}
		dst = appendI32(dst, int32(s.DashOffset))
	}
	return dst
}

func decodePath(r *payloadReader) *Path {
	p := &Path{Segments: r.segments()}
	flags := r.u8()
	if flags&^(pathHasFill|pathHasStroke) != 0 {
		r.fail("path: unknown flags %#x", flags)
	}
	if flags&pathHasFill != 0 {
		p.Fill = &Fill{Color: Color(r.u32()), Rule: FillRule(r.u8())}
	}
	if flags&pathHasStroke != 0 {
		s := &Stroke{
			Color:      Color(r.u32()),
			Width:      r.fixed(),
			Cap:        LineCap(r.u8()),
			Join:       LineJoin(r.u8()),
			MiterLimit: r.fixed(),
		}
		if n := r.count(4); n > 0 {
			s.Dashes = make([]fixed.Int26_6, n)
			for i := range s.Dashes {
				s.Dashes[i] = r.fixed()
			}
		}
		s.DashOffset = r.fixed()
		p.Stroke = s
	}
	return p
}

// Glyph is one positioned glyph of a run.
type Glyph struct {
	ID      uint32
	Advance fixed.Int26_6
	Offset  fixed.Point26_6
}

// GlyphRun is a sequence of glyphs from a single font, laid out along the
// baseline starting at the item origin.
type GlyphRun struct {
	Font   fingerprint.Fingerprint
	Size   fixed.Int26_6
	Color  Color
	Glyphs []Glyph
	// Text is the source text, kept for search and accessibility.
	Text string
}

// Kind implements Item.
func (*GlyphRun) Kind() Kind { return KindGlyphRun }

// Refs implements Item.
func (g *GlyphRun) Refs() []fingerprint.Fingerprint {
	return []fingerprint.Fingerprint{g.Font}
}

// AppendPayload implements Item.
func (g *GlyphRun) AppendPayload(dst []byte) []byte {
	dst = appendI32(dst, int32(g.Size))
	dst = appendU32(dst, uint32(g.Color))
	dst = appendU32(dst, uint32(len(g.Glyphs)))
	for _, gl := range g.Glyphs {
		dst = appendU32(dst, gl.ID)
		dst = appendI32(dst, int32(gl.Advance))
		dst = appendPoint(dst, gl.Offset)
	}
	return appendString(dst, g.Text)
}

// Width returns the sum of glyph advances.
func (g *GlyphRun) Width() fixed.Int26_6 {
	var w fixed.Int26_6
	for _, gl := range g.Glyphs {
		w += gl.Advance
	}
	return w
}

func decodeGlyphRun(r *payloadReader, refs []fingerprint.Fingerprint) *GlyphRun {
	if len(refs) != 1 {
		r.fail("glyph run: want 1 reference, have %d", len(refs))
		return nil
	}
	g := &GlyphRun{Font: refs[0], Size: r.fixed(), Color: Color(r.u32())}
	if n := r.count(16); n > 0 {
		g.Glyphs = make([]Glyph, n)
		for i := range g.Glyphs {
			g.Glyphs[i] = Glyph{ID: r.u32(), Advance: r.fixed(), Offset: r.point()}
		}
	}
	g.Text = r.string()
	return g
}

// Image is a raster image scaled into a Size box at the item origin.
type Image struct {
	// Format names the encoding of Data, e.g. "png" or "jpeg".
	Format string
	Width  uint32
	Height uint32
	Size   fixed.Point26_6
	Data   []byte
}

// Kind implements Item.
func (*Image) Kind() Kind { return KindImage }

// Refs implements Item.
func (*Image) Refs() []fingerprint.Fingerprint { return nil }

// AppendPayload implements Item.
func (im *Image) AppendPayload(dst []byte) []byte {
	dst = appendString(dst, im.Format)
	dst = appendU32(dst, im.Width)
	dst = appendU32(dst, im.Height)
	dst = appendPoint(dst, im.Size)
	return appendBytes(dst, im.Data)
}

func decodeImage(r *payloadReader) *Image {
	return &Image{
		Format: r.string(),
		Width:  r.u32(),
		Height: r.u32(),
		Size:   r.point(),
		Data:   r.bytes(),
	}
}

// Child places a referenced item inside a group.
type Child struct {
	Offset fixed.Point26_6
	Ref    fingerprint.Fingerprint
}

// Group composes children under a common transform and optional clip.
// Children paint in slice order.
type Group struct {
	Transform Transform
	// Clip is an outline in group-local coordinates; nil means no clip.
	Clip     []Segment
	Children []Child
}

// Kind implements Item.
func (*Group) Kind() Kind { return KindGroup }

// Refs implements Item. The result is in child order and may contain
// duplicates when the same item is placed twice.
func (g *Group) Refs() []fingerprint.Fingerprint {
	if len(g.Children) == 0 {
		return nil
	}
	refs := make([]fingerprint.Fingerprint, len(g.Children))
	for i, c := range g.Children {
		refs[i] = c.Ref
	}
	return refs
}

// AppendPayload implements Item.
func (g *Group) AppendPayload(dst []byte) []byte {
	for _, v := range g.Transform {
		dst = appendI64(dst, int64(v))
	}
	if g.Clip != nil {
		dst = appendU8(dst, 1)
		dst = appendSegments(dst, g.Clip)
	} else {
		dst = appendU8(dst, 0)
	}
	dst = appendU32(dst, uint32(len(g.Children)))
	for _, c := range g.Children {
		dst = appendPoint(dst, c.Offset)
	}
	return dst
}

func decodeGroup(r *payloadReader, refs []fingerprint.Fingerprint) *Group {
	g := &Group{}
	for i := range g.Transform {
		g.Transform[i] = fixed.Int52_12(r.i64())
	}
	switch r.u8() {
	case 0:
	case 1:
		g.Clip = r.segments()
		if g.Clip == nil {
			g.Clip = []Segment{}
		}
	default:
		r.fail("group: bad clip flag")
	}
	n := r.count(8)
	if r.err == nil && n != len(refs) {
		r.fail("group: %d children but %d references", n, len(refs))
		return nil
	}
	if n > 0 {
		g.Children = make([]Child, n)
		for i := range g.Children {
			g.Children[i] = Child{Offset: r.point(), Ref: refs[i]}
		}
	}
	return g
}

// Link is a clickable rectangle at the item origin.
type Link struct {
	Target string
	Size   fixed.Point26_6
}

// Kind implements Item.
func (*Link) Kind() Kind { return KindLink }

// Refs implements Item.
func (*Link) Refs() []fingerprint.Fingerprint { return nil }

// AppendPayload implements Item.
func (l *Link) AppendPayload(dst []byte) []byte {
	dst = appendString(dst, l.Target)
	return appendPoint(dst, l.Size)
}

// Annotation attaches named metadata to a rectangle at the item origin.
type Annotation struct {
	Name    string
	Content string
	Size    fixed.Point26_6
}

// Kind implements Item.
func (*Annotation) Kind() Kind { return KindAnnotation }

// Refs implements Item.
func (*Annotation) Refs() []fingerprint.Fingerprint { return nil }

// AppendPayload implements Item.
func (a *Annotation) AppendPayload(dst []byte) []byte {
	dst = appendString(dst, a.Name)
	dst = appendString(dst, a.Content)
	return appendPoint(dst, a.Size)
}

// Unknown preserves an item whose kind this build does not understand.
// Optional unknown items decode into Unknown so references to them stay
// valid and the module re-encodes losslessly.
type Unknown struct {
	Tag      Kind
	Payload  []byte
	RefList  []fingerprint.Fingerprint
	Optional bool
}

// Kind implements Item.
func (u *Unknown) Kind() Kind { return u.Tag }

// Refs implements Item.
func (u *Unknown) Refs() []fingerprint.Fingerprint { return u.RefList }

// AppendPayload implements Item.
func (u *Unknown) AppendPayload(dst []byte) []byte { return append(dst, u.Payload...) }

// ErrUnknownKind is returned by DecodeItem for a required item whose kind this
// build does not understand.
var ErrUnknownKind = errors.New("vector: unknown required kind")

// Encode returns the canonical payload of it together with its
// fingerprint.
func Encode(it Item) ([]byte, fingerprint.Fingerprint) {
	payload := it.AppendPayload(nil)
	return payload, fingerprintOf(it.Kind(), payload, it.Refs())
}

// FingerprintOf returns the content fingerprint of it. The fingerprint
// covers the kind tag, the canonical payload and the referenced
// fingerprints in order.
func FingerprintOf(it Item) fingerprint.Fingerprint {
	_, fp := Encode(it)
	return fp
}

// FingerprintOfRaw computes a fingerprint from already-encoded parts, as a
// decoder does when verifying untrusted input.
func FingerprintOfRaw(kind Kind, payload []byte, refs []fingerprint.Fingerprint) fingerprint.Fingerprint {
	return fingerprintOf(kind, payload, refs)
}

func fingerprintOf(kind Kind, payload []byte, refs []fingerprint.Fingerprint) fingerprint.Fingerprint {
	refBytes := make([]byte, 0, len(refs)*fingerprint.Size)
	for _, r := range refs {
		refBytes = append(refBytes, r[:]...)
	}
	return fingerprint.Sum(fingerprint.DomainItem, []byte{byte(kind)}, payload, refBytes)
}

// DecodeItem reconstructs an item from its kind tag, canonical payload and
// references. Unknown kinds decode into *Unknown; optional reports whether
// the producer marked the item as safe to ignore.
func DecodeItem(kind Kind, payload []byte, refs []fingerprint.Fingerprint, optional bool) (Item, error) {
	if !kind.Known() {
		if !optional {
			return nil, fmt.Errorf("%w %d", ErrUnknownKind, kind)
		}
		u := &Unknown{Tag: kind, Optional: true}
		u.Payload = append([]byte(nil), payload...)
		u.RefList = append([]fingerprint.Fingerprint(nil), refs...)
		return u, nil
	}
	r := &payloadReader{buf: payload}
	var it Item
	switch kind {
	case KindPath:
		it = decodePath(r)
	case KindGlyphRun:
		it = decodeGlyphRun(r, refs)
	case KindImage:
		it = decodeImage(r)
	case KindGroup:
		it = decodeGroup(r, refs)
	case KindLink:
		it = &Link{Target: r.string(), Size: r.point()}
	case KindAnnotation:
		it = &Annotation{Name: r.string(), Content: r.string(), Size: r.point()}
	case KindFont:
		it = decodeFont(r)
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	if kind != KindGlyphRun && kind != KindGroup && len(refs) != 0 {
		return nil, fmt.Errorf("%s: %w: unexpected %d references", kind, ErrMalformed, len(refs))
	}
	return it, nil
}
