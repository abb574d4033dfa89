// Package svg is the backend that keeps one SVG element tree per mirrored
// page. Importing it registers the "svg" backend.
//
// Element fragments are memoized by item fingerprint, so a subtree shared
// by several pages or generations is built once and the same *backend.Node
// appears wherever the item is placed. A page's tree is rebuilt only when
// the page changes; unchanged pages keep their tree pointer.
package svg

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/backend"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/internal/memo"
	"github.com/gogpu/vecsync/vector"
)

// Name is the registry name of the SVG backend.
const Name = "svg"

func init() {
	backend.Register(Name, func(opts backend.Options) backend.Backend {
		return New(opts)
	})
}

// fragmentCacheSize is the per-shard capacity of the fragment cache.
const fragmentCacheSize = 1024

// Backend builds SVG element trees. It is safe for concurrent use; see
// backend.Backend for the apply rules.
type Backend struct {
	*backend.Base

	opts  backend.Options
	scale float64
	frags *memo.Cache[fingerprint.Fingerprint, *backend.Node]

	mu    sync.Mutex
	trees []pageTree

	builds atomic.Uint64
}

type pageTree struct {
	page vector.Page
	node *backend.Node
}

// New returns an empty SVG backend.
func New(opts backend.Options) *Backend {
	return &Backend{
		Base:  backend.NewBase(),
		opts:  opts,
		scale: opts.PixelScale(),
		frags: memo.New[fingerprint.Fingerprint, *backend.Node](fragmentCacheSize, memo.FingerprintHasher),
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

func (b *Backend) trim() {
	n := b.Mirror().PageCount()
	b.mu.Lock()
	if len(b.trees) > n {
		clear(b.trees[n:])
		b.trees = b.trees[:n]
	}
	b.mu.Unlock()
}

// Tree returns the element tree of page i, rebuilding it first if the
// page changed. The tree must not be modified.
func (b *Backend) Tree(page int) (*backend.Node, error) {
	end := b.BeginRender()
	defer end()
	return b.tree(page)
}

// Render implements backend.Backend by writing page i as an SVG document.
func (b *Backend) Render(page int, w io.Writer) error {
	n, err := b.Tree(page)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"); err != nil {
		return err
	}
	return n.WriteXML(w)
}

// Builds returns the number of page trees built since the backend was
// created.
func (b *Backend) Builds() uint64 { return b.builds.Load() }

func (b *Backend) tree(page int) (*backend.Node, error) {
	pg, ok := b.Mirror().Page(page)
	if !ok {
		return nil, fmt.Errorf("%w: %d", backend.ErrPageRange, page)
	}
	changed := b.Changed().Clear(page)

	b.mu.Lock()
	var t pageTree
	if page < len(b.trees) {
		t = b.trees[page]
	}
	b.mu.Unlock()
	if !changed && t.node != nil && t.page == pg {
		return t.node, nil
	}

	n, err := b.build(pg)
	if err != nil {
		b.Changed().Mark(page)
		return nil, err
	}
	b.mu.Lock()
	if page >= len(b.trees) {
		b.trees = append(b.trees, make([]pageTree, page+1-len(b.trees))...)
	}
	b.trees[page] = pageTree{page: pg, node: n}
	b.mu.Unlock()
	return n, nil
}

func (b *Backend) build(pg vector.Page) (*backend.Node, error) {
	w, h := vector.ToFloat(pg.Width), vector.ToFloat(pg.Height)
	svg := backend.Elem("svg",
		backend.Attr{Name: "xmlns", Value: "http://www.w3.org/2000/svg"},
		backend.Attr{Name: "width", Value: num(w * b.scale)},
		backend.Attr{Name: "height", Value: num(h * b.scale)},
		backend.Attr{Name: "viewBox", Value: "0 0 " + num(w) + " " + num(h)},
	)
	fb := fragmentBuilder{get: b.Mirror().Get, fonts: b.opts.Fonts, cache: b.frags}
	root, err := fb.fragment(pg.Root)
	if err != nil {
		return nil, err
	}
	if root != nil {
		svg.Append(root)
	}
	b.builds.Add(1)
	vecsync.Logger().Debug("svg: built page tree", "root", pg.Root.Short())
	return svg, nil
}
