// Package lower flattens a frame.Document into fingerprinted vector items.
//
// Every scene node becomes one vector item. Children are lowered first, so
// a parent's fingerprint covers its children's fingerprints, and each item
// is interned in the store as soon as it is built. Equal content anywhere
// in the document, or in an earlier compile that shares the store, resolves
// to the same stored item.
//
// Geometry is quantized before hashing (see vector.Quantize) and strings
// are NFC-normalized, so float noise and equivalent Unicode spellings do
// not change fingerprints. Pages are lowered concurrently.
package lower

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/frame"
	"github.com/gogpu/vecsync/store"
	"github.com/gogpu/vecsync/text"
	"github.com/gogpu/vecsync/vector"
)

// ErrUnshapedText is returned for text without glyphs when no font library
// is configured.
var ErrUnshapedText = errors.New("lower: text has no glyphs and no font library to shape it")

// Stats holds lowering counters since the Lowerer was created.
type Stats struct {
	Pages   uint64
	Items   uint64 // items interned, including dedup hits
	Created uint64 // items new to the store
}

// Hits returns the number of interned items that were already stored.
func (s Stats) Hits() uint64 { return s.Items - s.Created }

// Lowerer lowers documents into a store. It is safe for concurrent use.
type Lowerer struct {
	store *store.Store
	opts  options

	// fonts maps a font file's blob fingerprint to its descriptor item.
	fonts sync.Map

	pages   atomic.Uint64
	items   atomic.Uint64
	created atomic.Uint64
}

// New returns a Lowerer that interns into st.
func New(st *store.Store, opts ...Option) *Lowerer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Lowerer{store: st, opts: o}
}

// Store returns the store items are interned into.
func (l *Lowerer) Store() *store.Store { return l.store }

// Stats returns lowering counters.
func (l *Lowerer) Stats() Stats {
	return Stats{Pages: l.pages.Load(), Items: l.items.Load(), Created: l.created.Load()}
}

// Lower lowers doc and returns the module reachable from its pages. The
// module gets a fresh identity. If ctx is canceled, Lower stops and
// returns the context error; items already interned stay in the store.
func (l *Lowerer) Lower(ctx context.Context, doc *frame.Document) (*vector.Module, error) {
	pages, err := l.LowerPages(ctx, doc)
	if err != nil {
		return nil, err
	}
	return l.store.Snapshot(ulid.Make(), pages)
}

// LowerPages lowers doc and returns its page list.
func (l *Lowerer) LowerPages(ctx context.Context, doc *frame.Document) ([]vector.Page, error) {
	start := time.Now()
	before := l.Stats()

	pages := make([]vector.Page, len(doc.Pages))
	run := &lowering{l: l, fonts: make(map[*frame.Font]fingerprint.Fingerprint)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.workers)
	for i := range doc.Pages {
		g.Go(func() error {
			p := &doc.Pages[i]
			root, err := run.frame(gctx, &p.Frame, vector.IdentityTransform, nil)
			if err != nil {
				return fmt.Errorf("lower: page %d: %w", i, err)
			}
			pages[i] = vector.Page{
				Root:   root,
				Width:  vector.Quantize(p.Width),
				Height: vector.Quantize(p.Height),
			}
			l.pages.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	after := l.Stats()
	vecsync.Logger().Debug("lower: document lowered",
		"pages", len(pages),
		"items", after.Items-before.Items,
		"created", after.Created-before.Created,
		"elapsed", time.Since(start))
	return pages, nil
}

// lowering is the state of one LowerPages call.
type lowering struct {
	l *Lowerer

	mu    sync.Mutex
	fonts map[*frame.Font]fingerprint.Fingerprint
}

func (r *lowering) intern(it vector.Item) (fingerprint.Fingerprint, error) {
	fp, isNew, err := r.l.store.Intern(it)
	if err != nil {
		return fp, err
	}
	r.l.items.Add(1)
	if isNew {
		r.l.created.Add(1)
	}
	return fp, nil
}

// frame lowers f into a group item and returns its fingerprint.
func (r *lowering) frame(ctx context.Context, f *frame.Frame, t vector.Transform, clip frame.Path) (fingerprint.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return fingerprint.Fingerprint{}, err
	}
	g := &vector.Group{Transform: t}
	if clip != nil {
		// An empty clip is still a clip: it hides everything.
		g.Clip = segments(clip)
		if g.Clip == nil {
			g.Clip = []vector.Segment{}
		}
	}
	if len(f.Items) > 0 {
		g.Children = make([]vector.Child, 0, len(f.Items))
	}
	for _, p := range f.Items {
		fp, err := r.item(ctx, p.Item)
		if err != nil {
			return fp, err
		}
		g.Children = append(g.Children, vector.Child{
			Offset: vector.QuantizePoint(p.Pos.X, p.Pos.Y),
			Ref:    fp,
		})
	}
	return r.intern(g)
}

func (r *lowering) item(ctx context.Context, it frame.Item) (fingerprint.Fingerprint, error) {
	switch it := it.(type) {
	case *frame.Shape:
		return r.intern(path(it))
	case *frame.Text:
		run, err := r.text(it)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		return r.intern(run)
	case *frame.Image:
		var data []byte
		if len(it.Data) > 0 {
			data = bytes.Clone(it.Data)
		}
		return r.intern(&vector.Image{
			Format: it.Format,
			Width:  uint32(max(it.Width, 0)),
			Height: uint32(max(it.Height, 0)),
			Size:   vector.QuantizePoint(it.Size.X, it.Size.Y),
			Data:   data,
		})
	case *frame.Group:
		return r.frame(ctx, &it.Frame, vector.QuantizeTransform(it.Transform), it.Clip)
	case *frame.Link:
		return r.intern(&vector.Link{
			Target: norm.NFC.String(it.Target),
			Size:   vector.QuantizePoint(it.Size.X, it.Size.Y),
		})
	case *frame.Annotation:
		return r.intern(&vector.Annotation{
			Name:    norm.NFC.String(it.Name),
			Content: norm.NFC.String(it.Content),
			Size:    vector.QuantizePoint(it.Size.X, it.Size.Y),
		})
	default:
		return fingerprint.Fingerprint{}, fmt.Errorf("lower: unsupported item %T", it)
	}
}

func toColor(c color.NRGBA) vector.Color {
	return vector.RGBA(c.R, c.G, c.B, c.A)
}

func path(s *frame.Shape) *vector.Path {
	p := &vector.Path{Segments: segments(s.Path)}
	if s.Fill != nil {
		p.Fill = &vector.Fill{Color: toColor(*s.Fill)}
		if s.EvenOdd {
			p.Fill.Rule = vector.FillEvenOdd
		}
	}
	if st := s.Stroke; st != nil {
		vs := &vector.Stroke{
			Color:      toColor(st.Paint),
			Width:      vector.Quantize(st.Width),
			Cap:        vector.LineCap(st.Cap),
			Join:       vector.LineJoin(st.Join),
			MiterLimit: vector.Quantize(st.MiterLimit),
			DashOffset: vector.Quantize(st.DashPhase),
		}
		for _, d := range st.Dash {
			vs.Dashes = append(vs.Dashes, vector.Quantize(d))
		}
		p.Stroke = vs
	}
	return p
}

func segments(p frame.Path) []vector.Segment {
	if len(p) == 0 {
		return nil
	}
	segs := make([]vector.Segment, len(p))
	for i, e := range p {
		op := vector.SegmentClose
		switch e.Op {
		case frame.MoveTo:
			op = vector.SegmentMoveTo
		case frame.LineTo:
			op = vector.SegmentLineTo
		case frame.QuadTo:
			op = vector.SegmentQuadTo
		case frame.CubeTo:
			op = vector.SegmentCubeTo
		}
		segs[i].Op = op
		for j := 0; j < op.Points(); j++ {
			segs[i].Args[j] = vector.QuantizePoint(e.Pts[j].X, e.Pts[j].Y)
		}
	}
	return segs
}

func (r *lowering) text(t *frame.Text) (*vector.GlyphRun, error) {
	if t.Font == nil {
		return nil, errors.New("lower: text without font")
	}
	fontFP, err := r.font(t.Font)
	if err != nil {
		return nil, err
	}
	run := &vector.GlyphRun{
		Font:  fontFP,
		Size:  vector.Quantize(t.Size),
		Color: toColor(t.Fill),
		Text:  norm.NFC.String(t.Text),
	}
	if len(t.Glyphs) == 0 && t.Text != "" {
		if r.l.opts.fonts == nil {
			return nil, ErrUnshapedText
		}
		shaped, err := r.l.opts.fonts.Shape(fontFP, run.Size, run.Text)
		if err != nil {
			return nil, fmt.Errorf("lower: shape %q: %w", t.Text, err)
		}
		if len(shaped) == 0 {
			return run, nil
		}
		run.Glyphs = make([]vector.Glyph, len(shaped))
		for i, s := range shaped {
			run.Glyphs[i] = vector.Glyph{ID: s.ID, Advance: s.Advance, Offset: s.Offset}
		}
		return run, nil
	}
	if len(t.Glyphs) == 0 {
		return run, nil
	}
	run.Glyphs = make([]vector.Glyph, len(t.Glyphs))
	for i, g := range t.Glyphs {
		run.Glyphs[i] = vector.Glyph{
			ID:      g.ID,
			Advance: vector.Quantize(g.XAdvance),
			Offset:  vector.QuantizePoint(g.XOffset, g.YOffset),
		}
	}
	return run, nil
}

// font resolves a scene font to the fingerprint of its interned descriptor.
func (r *lowering) font(f *frame.Font) (fingerprint.Fingerprint, error) {
	r.mu.Lock()
	fp, ok := r.fonts[f]
	r.mu.Unlock()
	if ok {
		return fp, nil
	}

	desc, err := r.l.describe(f)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	if fp, err = r.intern(desc); err != nil {
		return fp, err
	}

	r.mu.Lock()
	r.fonts[f] = fp
	r.mu.Unlock()
	return fp, nil
}

// describe returns the descriptor for f, parsing its data at most once per
// distinct font file.
func (l *Lowerer) describe(f *frame.Font) (*vector.Font, error) {
	lib := l.opts.fonts
	if f.Data == nil {
		if lib != nil {
			if desc, _, ok := lib.Lookup(f.Family); ok {
				return desc, nil
			}
		}
		// Resolved by family on the consumer side.
		return &vector.Font{Family: norm.NFC.String(f.Family), Weight: 400, Stretch: 1000}, nil
	}

	blob := fingerprint.OfBlob(f.Data)
	if desc, ok := l.fonts.Load(blob); ok {
		return desc.(*vector.Font), nil
	}
	var (
		desc *vector.Font
		err  error
	)
	if lib != nil {
		desc, _, err = lib.Add(f.Data)
	} else {
		desc, err = text.Describe(f.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("lower: font %q: %w", f.Family, err)
	}
	actual, _ := l.fonts.LoadOrStore(blob, desc)
	return actual.(*vector.Font), nil
}
