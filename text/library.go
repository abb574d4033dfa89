package text

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/internal/memo"
	"github.com/gogpu/vecsync/vector"
)

var (
	// ErrEmptyFontData is returned when font data is empty.
	ErrEmptyFontData = errors.New("text: empty font data")

	// ErrUnknownFont is returned for a font fingerprint that was never added.
	ErrUnknownFont = errors.New("text: unknown font")

	// ErrGlyphRange is returned for glyph ids outside the 16-bit range.
	ErrGlyphRange = errors.New("text: glyph id out of range")
)

// OutlineSource resolves glyph outlines for rendering. Outlines are in
// points for the given size, y pointing down, with the origin on the
// baseline at the glyph's pen position.
type OutlineSource interface {
	Outline(font fingerprint.Fingerprint, glyph uint32, size fixed.Int26_6) ([]vector.Segment, error)
}

// outlineCacheSize is the per-shard capacity of the outline cache.
const outlineCacheSize = 512

type outlineKey struct {
	font  fingerprint.Fingerprint
	glyph uint32
	size  fixed.Int26_6
}

func hashOutlineKey(k outlineKey) uint64 {
	h := memo.FingerprintHasher(k.font)
	h ^= uint64(k.glyph) * 0x9e3779b97f4a7c15
	h ^= uint64(uint32(k.size)) << 17
	return h
}

// Library holds parsed fonts keyed by the fingerprint of their font item.
// It is safe for concurrent use.
type Library struct {
	mu     sync.RWMutex
	fonts  map[fingerprint.Fingerprint]*libraryFont
	family map[string]fingerprint.Fingerprint

	buffers  sync.Pool // *sfnt.Buffer
	shapers  sync.Pool // *shaping.HarfbuzzShaper
	outlines *memo.Cache[outlineKey, []vector.Segment]
}

type libraryFont struct {
	desc *vector.Font
	data []byte
	sfnt *sfnt.Font
	// face is read-only and shared; shaping wraps it in a per-call Face.
	face *font.Font
}

// NewLibrary returns an empty font library.
func NewLibrary() *Library {
	return &Library{
		fonts:    make(map[fingerprint.Fingerprint]*libraryFont),
		family:   make(map[string]fingerprint.Fingerprint),
		buffers:  sync.Pool{New: func() any { return new(sfnt.Buffer) }},
		shapers:  sync.Pool{New: func() any { return new(shaping.HarfbuzzShaper) }},
		outlines: memo.New[outlineKey, []vector.Segment](outlineCacheSize, hashOutlineKey),
	}
}

// Add parses data and registers it. It returns the font descriptor and the
// fingerprint of the descriptor item. Adding the same bytes twice returns
// the existing entry.
func (l *Library) Add(data []byte) (*vector.Font, fingerprint.Fingerprint, error) {
	if len(data) == 0 {
		return nil, fingerprint.Fingerprint{}, ErrEmptyFontData
	}
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint.Fingerprint{}, fmt.Errorf("text: parse font: %w", err)
	}
	desc := describeFace(face, data)
	fp := vector.FingerprintOf(desc)

	l.mu.RLock()
	existing, ok := l.fonts[fp]
	l.mu.RUnlock()
	if ok {
		return existing.desc, fp, nil
	}

	sf, err := sfnt.Parse(data)
	if err != nil {
		return nil, fingerprint.Fingerprint{}, fmt.Errorf("text: parse outlines: %w", err)
	}
	lf := &libraryFont{desc: desc, data: data, sfnt: sf, face: face.Font}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.fonts[fp]; ok {
		return existing.desc, fp, nil
	}
	l.fonts[fp] = lf
	key := font.NormalizeFamily(desc.Family)
	if _, ok := l.family[key]; !ok {
		l.family[key] = fp
	}
	vecsync.Logger().Debug("text: font added", "family", desc.Family, "fp", fp.Short(), "bytes", len(data))
	return desc, fp, nil
}

// Font returns the descriptor registered under fp.
func (l *Library) Font(fp fingerprint.Fingerprint) (*vector.Font, bool) {
	lf, ok := l.get(fp)
	if !ok {
		return nil, false
	}
	return lf.desc, true
}

// Data returns the raw font file registered under fp.
func (l *Library) Data(fp fingerprint.Fingerprint) ([]byte, bool) {
	lf, ok := l.get(fp)
	if !ok {
		return nil, false
	}
	return lf.data, true
}

// Lookup finds the first font added for a family name. Matching ignores
// case and separators.
func (l *Library) Lookup(family string) (*vector.Font, fingerprint.Fingerprint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fp, ok := l.family[font.NormalizeFamily(family)]
	if !ok {
		return nil, fingerprint.Fingerprint{}, false
	}
	return l.fonts[fp].desc, fp, true
}

// Len returns the number of registered fonts.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fonts)
}

func (l *Library) get(fp fingerprint.Fingerprint) (*libraryFont, bool) {
	l.mu.RLock()
	lf, ok := l.fonts[fp]
	l.mu.RUnlock()
	return lf, ok
}

// Outline implements OutlineSource. Results are cached; callers must not
// modify the returned slice.
func (l *Library) Outline(fontFP fingerprint.Fingerprint, glyph uint32, size fixed.Int26_6) ([]vector.Segment, error) {
	lf, ok := l.get(fontFP)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFont, fontFP.Short())
	}
	if glyph > 0xffff {
		return nil, fmt.Errorf("%w: %d", ErrGlyphRange, glyph)
	}
	key := outlineKey{font: fontFP, glyph: glyph, size: size}
	return l.outlines.GetOrCreate(key, func() ([]vector.Segment, error) {
		buf := l.buffers.Get().(*sfnt.Buffer)
		defer l.buffers.Put(buf)
		segs, err := lf.sfnt.LoadGlyph(buf, sfnt.GlyphIndex(glyph), size, nil)
		if err != nil {
			return nil, fmt.Errorf("text: glyph %d: %w", glyph, err)
		}
		return convertSegments(segs), nil
	})
}

// convertSegments turns sfnt contours into closed vector segments. sfnt
// leaves contours implicitly closed.
func convertSegments(segs sfnt.Segments) []vector.Segment {
	if len(segs) == 0 {
		return nil
	}
	out := make([]vector.Segment, 0, len(segs)+4)
	open := false
	for _, s := range segs {
		op := vector.SegmentOp(s.Op)
		if op == vector.SegmentMoveTo && open {
			out = append(out, vector.Segment{Op: vector.SegmentClose})
		}
		var seg vector.Segment
		seg.Op = op
		copy(seg.Args[:op.Points()], s.Args[:op.Points()])
		out = append(out, seg)
		open = true
	}
	return append(out, vector.Segment{Op: vector.SegmentClose})
}
