// Package raster is the backend that paints mirrored pages into RGBA
// images. Importing it registers the "raster" backend.
//
// Each page keeps its last painted image. A page is repainted when a
// patch replaces or inserts it, or when the page at that index has a
// different root or size; unchanged pages are served from the previous
// image without touching the item graph.
package raster

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"
	xvector "golang.org/x/image/vector"
	"seehuhn.de/go/geom/matrix"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/backend"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/internal/memo"
	"github.com/gogpu/vecsync/internal/parallel"
	"github.com/gogpu/vecsync/vector"
)

// Name is the registry name of the raster backend.
const Name = "raster"

func init() {
	backend.Register(Name, func(opts backend.Options) backend.Backend {
		return New(opts)
	})
}

// imageCacheSize is the per-shard capacity of the decoded image cache.
const imageCacheSize = 64

// Backend paints pages into *image.RGBA canvases. It is safe for
// concurrent use; see backend.Backend for the apply rules.
type Backend struct {
	*backend.Base

	opts   backend.Options
	scale  float64
	pool   *parallel.Pool
	images *memo.Cache[fingerprint.Fingerprint, image.Image]

	mu       sync.Mutex
	canvases []canvas

	paints atomic.Uint64
}

type canvas struct {
	root fingerprint.Fingerprint
	img  *image.RGBA
}

// New returns an empty raster backend.
func New(opts backend.Options) *Backend {
	return &Backend{
		Base:   backend.NewBase(),
		opts:   opts,
		scale:  opts.PixelScale(),
		pool:   parallel.NewPool(opts.Workers),
		images: memo.New[fingerprint.Fingerprint, image.Image](imageCacheSize, memo.FingerprintHasher),
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// ApplyFull implements backend.Backend.
func (b *Backend) ApplyFull(m *vector.Module) error {
	if err := b.Base.ApplyFull(m); err != nil {
		return err
	}
	b.trim()
	return nil
}

// ApplyPatch implements backend.Backend.
func (b *Backend) ApplyPatch(p *vector.Patch) error {
	if _, err := b.Base.ApplyPatchChanges(p); err != nil {
		return err
	}
	b.trim()
	return nil
}

// trim drops canvases of pages that no longer exist.
func (b *Backend) trim() {
	n := b.Mirror().PageCount()
	b.mu.Lock()
	if len(b.canvases) > n {
		clear(b.canvases[n:])
		b.canvases = b.canvases[:n]
	}
	b.mu.Unlock()
}

// Image returns the painted image of page i, repainting it first if it
// changed. The returned image must not be modified; it is replaced, not
// reused, when the page is repainted.
func (b *Backend) Image(page int) (*image.RGBA, error) {
	end := b.BeginRender()
	defer end()
	return b.image(page)
}

// RenderAll repaints every changed page on the worker pool and returns
// the pages it painted. Pages that fail stay marked changed.
func (b *Backend) RenderAll(ctx context.Context) ([]int, error) {
	end := b.BeginRender()
	defer end()
	pages := b.Changed().Indexes()
	err := b.pool.Run(ctx, len(pages), func(i int) error {
		_, err := b.image(pages[i])
		return err
	})
	return pages, err
}

// Render implements backend.Backend by writing page i as PNG.
func (b *Backend) Render(page int, w io.Writer) error {
	img, err := b.Image(page)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Paints returns the number of page paints since the backend was created.
func (b *Backend) Paints() uint64 { return b.paints.Load() }

// Close stops the worker pool. The backend can still paint pages one at a
// time afterwards.
func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func (b *Backend) image(page int) (*image.RGBA, error) {
	pg, ok := b.Mirror().Page(page)
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrPageRange, page)
	}
	rect := b.bounds(pg)
	changed := b.Changed().Clear(page)

	b.mu.Lock()
	var c canvas
	if page < len(b.canvases) {
		c = b.canvases[page]
	}
	b.mu.Unlock()
	if !changed && c.img != nil && c.root == pg.Root && c.img.Rect == rect {
		return c.img, nil
	}

	img, err := b.paint(pg, rect)
	if err != nil {
		b.Changed().Mark(page)
		return nil, err
	}
	b.mu.Lock()
	if page >= len(b.canvases) {
		b.canvases = append(b.canvases, make([]canvas, page+1-len(b.canvases))...)
	}
	b.canvases[page] = canvas{root: pg.Root, img: img}
	b.mu.Unlock()
	return img, nil
}

func (b *Backend) bounds(pg vector.Page) image.Rectangle {
	w := int(math.Ceil(vector.ToFloat(pg.Width) * b.scale))
	h := int(math.Ceil(vector.ToFloat(pg.Height) * b.scale))
	return image.Rect(0, 0, max(w, 1), max(h, 1))
}

func (b *Backend) paint(pg vector.Page, rect image.Rectangle) (*image.RGBA, error) {
	img := image.NewRGBA(rect)
	xdraw.Draw(img, rect, image.White, image.Point{}, xdraw.Src)
	p := painter{
		dst:    img,
		get:    b.Mirror().Get,
		fonts:  b.opts.Fonts,
		images: b.images,
		z:      xvector.NewRasterizer(rect.Dx(), rect.Dy()),
	}
	if err := p.draw(pg.Root, matrix.Scale(b.scale, b.scale), nil); err != nil {
		return nil, err
	}
	b.paints.Add(1)
	vecsync.Logger().Debug("raster: painted page", "root", pg.Root.Short(), "size", rect.Size())
	return img, nil
}
