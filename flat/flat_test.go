package flat

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/oklog/ulid/v2"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/store"
	"github.com/gogpu/vecsync/vector"
)

func pt(x, y float64) fixed.Point26_6 { return vector.QuantizePoint(x, y) }

func rect(w, h float64, c vector.Color) *vector.Path {
	return &vector.Path{
		Segments: []vector.Segment{
			{Op: vector.SegmentMoveTo, Args: [3]fixed.Point26_6{pt(0, 0)}},
			{Op: vector.SegmentLineTo, Args: [3]fixed.Point26_6{pt(w, 0)}},
			{Op: vector.SegmentLineTo, Args: [3]fixed.Point26_6{pt(w, h)}},
			{Op: vector.SegmentLineTo, Args: [3]fixed.Point26_6{pt(0, h)}},
			{Op: vector.SegmentClose},
		},
		Fill: &vector.Fill{Color: c},
	}
}

// testModule builds a two-page module sharing a path between pages.
func testModule(t *testing.T, extra ...vector.Item) *vector.Module {
	t.Helper()
	m := vector.NewModule()
	add := func(it vector.Item) fingerprint.Fingerprint {
		fp := vector.FingerprintOf(it)
		m.Items[fp] = it
		return fp
	}
	font := add(&vector.Font{Family: "go", Weight: 400, Stretch: 1000, UnitsPerEm: 2048, Data: fingerprint.OfBlob([]byte("font"))})
	run := add(&vector.GlyphRun{
		Font:   font,
		Size:   vector.Quantize(12),
		Color:  vector.RGBA(0, 0, 0, 255),
		Glyphs: []vector.Glyph{{ID: 36, Advance: vector.Quantize(7)}, {ID: 37, Advance: vector.Quantize(6)}},
		Text:   "AB",
	})
	box := add(rect(10, 10, vector.RGBA(255, 0, 0, 255)))
	link := add(&vector.Link{Target: "https://example.com", Size: pt(10, 10)})

	children := []vector.Child{{Offset: pt(5, 5), Ref: box}, {Offset: pt(5, 30), Ref: run}}
	for _, it := range extra {
		children = append(children, vector.Child{Ref: add(it)})
	}
	page1 := add(&vector.Group{Transform: vector.IdentityTransform, Children: children})
	page2 := add(&vector.Group{
		Transform: vector.IdentityTransform,
		Clip:      rect(100, 100, 0).Segments,
		Children:  []vector.Child{{Offset: pt(1, 1), Ref: box}, {Ref: link}},
	})
	size := pt(200, 300)
	m.Pages = []vector.Page{
		{Root: page1, Width: size.X, Height: size.Y},
		{Root: page2, Width: size.X, Height: size.Y},
	}
	return m
}

func mustEncode(t *testing.T, m *vector.Module, opts ...Option) []byte {
	t.Helper()
	buf, err := EncodeModule(m, opts...)
	if err != nil {
		t.Fatalf("EncodeModule: %v", err)
	}
	return buf
}

func TestModuleRoundTrip(t *testing.T) {
	m := testModule(t)
	buf := mustEncode(t, m)
	got, err := DecodeModule(buf)
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("DecodeModule mismatch (-want +got):\n%s", diff)
	}

	again := mustEncode(t, got)
	if !bytes.Equal(buf, again) {
		t.Error("re-encoding a decoded module changed its bytes")
	}
}

func TestModuleRoundTripEmptyItems(t *testing.T) {
	m := testModule(t,
		&vector.Path{Fill: &vector.Fill{Color: vector.RGBA(0, 0, 255, 255)}},
		&vector.Image{Format: "raw"},
		&vector.Group{Transform: vector.IdentityTransform, Clip: []vector.Segment{}},
	)
	got, err := DecodeModule(mustEncode(t, m))
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("DecodeModule mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	m := testModule(t)
	a := mustEncode(t, m)
	b := mustEncode(t, m.Clone())
	if !bytes.Equal(a, b) {
		t.Error("encoding the same module twice produced different bytes")
	}
}

func TestEncodeWithStorePayloads(t *testing.T) {
	m := testModule(t)
	st := store.New()
	for fp, it := range m.Items {
		if _, _, err := st.Insert(fp, it); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	want := mustEncode(t, m)
	got := mustEncode(t, m, WithPayloads(st))
	if !bytes.Equal(want, got) {
		t.Error("encoding with store payloads differs from direct encoding")
	}
}

func TestEncodeRejectsDangling(t *testing.T) {
	m := testModule(t)
	m.Pages = append(m.Pages, vector.Page{Root: fingerprint.OfBlob([]byte("missing"))})
	if _, err := EncodeModule(m); !errors.Is(err, vector.ErrDanglingReference) {
		t.Errorf("EncodeModule error = %v, want %v", err, vector.ErrDanglingReference)
	}
}

func TestSniff(t *testing.T) {
	mod := mustEncode(t, testModule(t))
	patch, err := EncodePatch(&vector.Patch{Base: ulid.Make(), Target: ulid.Make()})
	if err != nil {
		t.Fatalf("EncodePatch: %v", err)
	}
	tests := []struct {
		name string
		buf  []byte
		want Format
		err  error
	}{
		{"module", mod, FormatModule, nil},
		{"patch", patch, FormatPatch, nil},
		{"short", []byte("VS"), FormatUnknown, ErrBadMagic},
		{"other", []byte("%PDF-1.7"), FormatUnknown, ErrBadMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.buf)
			if got != tt.want {
				t.Errorf("Sniff = %v, want %v", got, tt.want)
			}
			if !errors.Is(err, tt.err) && err != tt.err {
				t.Errorf("Sniff error = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestDecodeModuleRejects(t *testing.T) {
	m := testModule(t)
	good := mustEncode(t, m)
	n := len(m.Items)
	refTable := moduleHeaderSize + n*descriptorSize
	payloadStart := refTable + int(le.Uint32(good[16:]))*refSize

	mutate := func(f func(b []byte) []byte) []byte {
		return f(bytes.Clone(good))
	}
	tests := []struct {
		name string
		buf  []byte
		opts []Option
		want error
	}{
		{"empty", nil, nil, ErrTruncatedPayload},
		{"magic", mutate(func(b []byte) []byte { b[0] = 'X'; return b }), nil, ErrBadMagic},
		{"patch magic", mutate(func(b []byte) []byte { b[3] = 'P'; return b }), nil, ErrBadMagic},
		{"major version", mutate(func(b []byte) []byte { b[5] = 2; return b }), nil, ErrVersionMismatch},
		{"header only", good[:20], nil, ErrTruncatedPayload},
		{"truncated", good[:len(good)-1], nil, ErrTruncatedPayload},
		{"trailing", append(bytes.Clone(good), 0), nil, ErrOffsetOutOfBounds},
		{"huge counts", mutate(func(b []byte) []byte {
			le.PutUint32(b[8:], 0xffffffff)
			le.PutUint32(b[16:], 0xffffffff)
			return b
		}), nil, ErrTruncatedPayload},
		{"payload offset", mutate(func(b []byte) []byte {
			le.PutUint32(b[moduleHeaderSize+20:], 0xfffffff0)
			return b
		}), nil, ErrOffsetOutOfBounds},
		{"ref offset", mutate(func(b []byte) []byte {
			le.PutUint32(b[moduleHeaderSize+descriptorSize+28:], 0xfffffff0)
			return b
		}), nil, ErrOffsetOutOfBounds},
		{"payload tampered", mutate(func(b []byte) []byte { b[payloadStart] ^= 0xff; return b }), nil, ErrFingerprintMismatch},
		{"unsorted", mutate(func(b []byte) []byte {
			d0 := b[moduleHeaderSize : moduleHeaderSize+descriptorSize]
			d1 := b[moduleHeaderSize+descriptorSize : moduleHeaderSize+2*descriptorSize]
			tmp := bytes.Clone(d0)
			copy(d0, d1)
			copy(d1, tmp)
			return b
		}), nil, ErrFingerprintMismatch},
		{"dangling ref unverified", mutate(func(b []byte) []byte {
			b[refTable] ^= 0xff
			return b
		}), []Option{WithoutVerify()}, ErrDanglingReference},
		{"dangling page root", mutate(func(b []byte) []byte {
			b[len(b)-pageSize] ^= 0xff
			return b
		}), nil, ErrDanglingReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeModule(tt.buf, tt.opts...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodeModule error = %v, want %v", err, tt.want)
			}
			if got != nil {
				t.Error("DecodeModule returned a module alongside an error")
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error %T is not a *DecodeError", err)
			}
		})
	}
}

func TestDecodeMinorVersion(t *testing.T) {
	buf := mustEncode(t, testModule(t))
	buf[4] = 7
	if _, err := DecodeModule(buf); err != nil {
		t.Errorf("DecodeModule with minor version 7: %v", err)
	}
}

func TestUnknownKinds(t *testing.T) {
	optional := &vector.Unknown{Tag: 200, Optional: true, Payload: []byte("future")}
	m := testModule(t, optional)
	got, err := DecodeModule(mustEncode(t, m))
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	fp := vector.FingerprintOf(optional)
	if diff := cmp.Diff(vector.Item(optional), got.Items[fp]); diff != "" {
		t.Errorf("optional unknown mismatch (-want +got):\n%s", diff)
	}

	required := &vector.Unknown{Tag: 201, Payload: []byte("future")}
	_, err = DecodeModule(mustEncode(t, testModule(t, required)))
	if !errors.Is(err, ErrUnknownRequiredKind) {
		t.Errorf("DecodeModule error = %v, want %v", err, ErrUnknownRequiredKind)
	}
}

func TestAcyclic(t *testing.T) {
	a := fingerprint.OfBlob([]byte("a"))
	b := fingerprint.OfBlob([]byte("b"))
	c := fingerprint.OfBlob([]byte("c"))
	chain := map[fingerprint.Fingerprint]vector.Item{
		a: &vector.Unknown{Tag: 100, Optional: true, RefList: []fingerprint.Fingerprint{b, c}},
		b: &vector.Unknown{Tag: 100, Optional: true, RefList: []fingerprint.Fingerprint{c}},
		c: &vector.Unknown{Tag: 100, Optional: true},
	}
	if err := acyclic(chain); err != nil {
		t.Errorf("acyclic(diamond) = %v, want nil", err)
	}
	chain[c] = &vector.Unknown{Tag: 100, Optional: true, RefList: []fingerprint.Fingerprint{a}}
	if err := acyclic(chain); !errors.Is(err, ErrDanglingReference) {
		t.Errorf("acyclic(cycle) = %v, want %v", err, ErrDanglingReference)
	}
}

func testPatch() *vector.Patch {
	box := rect(3, 4, vector.RGBA(0, 255, 0, 255))
	boxFP := vector.FingerprintOf(box)
	root := &vector.Group{Transform: vector.IdentityTransform, Children: []vector.Child{{Ref: boxFP}, {Ref: fingerprint.OfBlob([]byte("base item"))}}}
	rootFP := vector.FingerprintOf(root)
	return &vector.Patch{
		Base:   ulid.Make(),
		Target: ulid.Make(),
		Added:  map[fingerprint.Fingerprint]vector.Item{boxFP: box, rootFP: root},
		Stale:  []fingerprint.Fingerprint{fingerprint.OfBlob([]byte("gone"))},
		Ops: []vector.PageOp{
			{Kind: vector.PageUnchanged, Index: 0, Page: vector.Page{Root: fingerprint.OfBlob([]byte("p0"))}},
			{Kind: vector.PageReplaced, Index: 1, Page: vector.Page{Root: rootFP, Width: vector.Quantize(10), Height: vector.Quantize(20)}},
			{Kind: vector.PageRemoved, Index: 2},
		},
	}
}

func TestPatchRoundTrip(t *testing.T) {
	p := testPatch()
	buf, err := EncodePatch(p)
	if err != nil {
		t.Fatalf("EncodePatch: %v", err)
	}
	got, err := DecodePatch(buf)
	if err != nil {
		t.Fatalf("DecodePatch: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("DecodePatch mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePatchRejects(t *testing.T) {
	good, err := EncodePatch(testPatch())
	if err != nil {
		t.Fatalf("EncodePatch: %v", err)
	}
	opStart := len(good) - 3*opSize
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"module magic", append([]byte("VSYM"), good[4:]...), ErrBadMagic},
		{"truncated", good[:len(good)-1], ErrTruncatedPayload},
		{"header only", good[:patchHeaderSize-1], ErrTruncatedPayload},
		{"op kind", func() []byte { b := bytes.Clone(good); b[opStart] = 9; return b }(), ErrOffsetOutOfBounds},
		{"op index", func() []byte { b := bytes.Clone(good); le.PutUint32(b[opStart+4:], 99); return b }(), ErrOffsetOutOfBounds},
		{"payload tampered", func() []byte {
			b := bytes.Clone(good)
			b[len(b)-3*opSize-refSize-1] ^= 0xff
			return b
		}(), ErrFingerprintMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePatch(tt.buf)
			if !errors.Is(err, tt.want) {
				t.Fatalf("DecodePatch error = %v, want %v", err, tt.want)
			}
			if got != nil {
				t.Error("DecodePatch returned a patch alongside an error")
			}
		})
	}
}

func TestView(t *testing.T) {
	m := testModule(t)
	v, err := Open(mustEncode(t, m))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v.ID() != m.ID {
		t.Errorf("ID = %v, want %v", v.ID(), m.ID)
	}
	if v.Len() != len(m.Items) {
		t.Errorf("Len = %d, want %d", v.Len(), len(m.Items))
	}
	if v.PageCount() != len(m.Pages) {
		t.Errorf("PageCount = %d, want %d", v.PageCount(), len(m.Pages))
	}
	for i, want := range m.Fingerprints() {
		fp, it, err := v.Item(i)
		if err != nil {
			t.Fatalf("Item(%d): %v", i, err)
		}
		if fp != want || v.Fingerprint(i) != want {
			t.Errorf("Item(%d) fingerprint = %v, want %v", i, fp, want)
		}
		if diff := cmp.Diff(m.Items[want], it); diff != "" {
			t.Errorf("Item(%d) mismatch (-want +got):\n%s", i, diff)
		}
		got, ok, err := v.Lookup(want)
		if err != nil || !ok {
			t.Fatalf("Lookup(%v) = %v, %v", want, ok, err)
		}
		if vector.FingerprintOf(got) != want {
			t.Errorf("Lookup(%v) returned a different item", want)
		}
	}
	if _, ok, _ := v.Lookup(fingerprint.OfBlob([]byte("absent"))); ok {
		t.Error("Lookup of an absent fingerprint succeeded")
	}
	for i, want := range m.Pages {
		got, err := v.Page(i)
		if err != nil {
			t.Fatalf("Page(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("Page(%d) = %+v, want %+v", i, got, want)
		}
	}
	if _, err := v.Page(len(m.Pages)); err == nil {
		t.Error("Page past the end succeeded")
	}
	if _, _, err := v.Item(-1); err == nil {
		t.Error("Item(-1) succeeded")
	}
	kinds := v.Kinds()
	if kinds[vector.KindGroup] != 2 || kinds[vector.KindFont] != 1 {
		t.Errorf("Kinds = %v, want 2 groups and 1 font", kinds)
	}
}

func TestOpenRejectsBadFraming(t *testing.T) {
	buf := mustEncode(t, testModule(t))
	if _, err := Open(buf[:len(buf)-2]); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("Open(truncated) error = %v, want %v", err, ErrTruncatedPayload)
	}
}

func BenchmarkDecodeModule(b *testing.B) {
	m := vector.NewModule()
	var children []vector.Child
	for i := range 1000 {
		p := rect(float64(i), 10, vector.Color(i))
		fp := vector.FingerprintOf(p)
		m.Items[fp] = p
		children = append(children, vector.Child{Offset: pt(0, float64(i)), Ref: fp})
	}
	root := &vector.Group{Transform: vector.IdentityTransform, Children: children}
	m.Items[vector.FingerprintOf(root)] = root
	m.Pages = []vector.Page{{Root: vector.FingerprintOf(root)}}
	buf, err := EncodeModule(m)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := DecodeModule(buf); err != nil {
			b.Fatal(err)
		}
	}
}
