package backend

import (
	"errors"
	"image"
	"io"

	"github.com/gogpu/vecsync/text"
	"github.com/gogpu/vecsync/vector"
)

// ErrPageRange is returned when a page index is outside the page list.
var ErrPageRange = errors.New("backend: page index out of range")

// Backend materializes the pages of a mirrored module.
//
// ApplyFull and ApplyPatch must not be called concurrently with each
// other; Render may run concurrently with anything.
type Backend interface {
	// Name returns the registered backend name.
	Name() string

	// ApplyFull replaces the backend state with m.
	ApplyFull(m *vector.Module) error

	// ApplyPatch applies p to the current state. On error the state is
	// unchanged.
	ApplyPatch(p *vector.Patch) error

	// Render writes page i in the backend's output format.
	Render(page int, w io.Writer) error
}

// ImageBackend is implemented by backends that paint pages into images.
type ImageBackend interface {
	Backend
	Image(page int) (*image.RGBA, error)
}

// TreeBackend is implemented by backends that keep an element tree per
// page. A page's tree is replaced only when the page changes.
type TreeBackend interface {
	Backend
	Tree(page int) (*Node, error)
}

// Options configures a backend created from the registry.
type Options struct {
	// Fonts supplies glyph outlines. Without it glyph runs are drawn
	// only as far as the backend can without outlines.
	Fonts text.OutlineSource

	// Scale is the number of output pixels per point. Zero means 1.
	Scale float64

	// Workers bounds the goroutines used to paint pages. Zero means
	// GOMAXPROCS.
	Workers int
}

// PixelScale returns Scale, or 1 if Scale is not positive.
func (o Options) PixelScale() float64 {
	if o.Scale <= 0 {
		return 1
	}
	return o.Scale
}
