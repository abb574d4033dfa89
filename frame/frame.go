// Package frame defines the scene tree handed over by the layout engine:
// pages of positioned drawing primitives with resolved geometry, shaped
// text and nested transformed groups.
//
// Coordinates are in points with y pointing down. Transforms use the
// row-vector convention of seehuhn.de/go/geom/matrix: a point (x, y) maps
// to (a*x + c*y + e, b*x + d*y + f).
package frame

import (
	"image/color"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"
)

// Document is a laid-out document.
type Document struct {
	Pages []Page
	// Fonts lists the fonts referenced by text items, if the engine
	// chose to supply them up front.
	Fonts []*Font
}

// Page is one page of the document.
type Page struct {
	Width  float64
	Height float64
	Frame  Frame
}

// Frame is an ordered list of positioned items. Later items paint over
// earlier ones.
type Frame struct {
	Items []Positioned
}

// Push appends item at pos.
func (f *Frame) Push(pos vec.Vec2, item Item) {
	f.Items = append(f.Items, Positioned{Pos: pos, Item: item})
}

// Positioned places an item in its parent frame.
type Positioned struct {
	Pos  vec.Vec2
	Item Item
}

// Item is a scene primitive: *Shape, *Text, *Image, *Group, *Link or
// *Annotation.
type Item interface {
	frameItem()
}

func (*Shape) frameItem()      {}
func (*Text) frameItem()       {}
func (*Image) frameItem()      {}
func (*Group) frameItem()      {}
func (*Link) frameItem()       {}
func (*Annotation) frameItem() {}

// LineCap is the shape at open stroke ends.
type LineCap uint8

const (
	CapButt LineCap = iota
	CapRound
	CapSquare
)

// LineJoin is the shape at stroke corners.
type LineJoin uint8

const (
	JoinMiter LineJoin = iota
	JoinRound
	JoinBevel
)

// Stroke describes an outline.
type Stroke struct {
	Paint      color.NRGBA
	Width      float64
	Cap        LineCap
	Join       LineJoin
	MiterLimit float64
	Dash       []float64
	DashPhase  float64
}

// Shape is a filled and/or stroked path.
type Shape struct {
	Path    Path
	Fill    *color.NRGBA
	EvenOdd bool
	Stroke  *Stroke
}

// Span locates the source text a glyph was produced from. The zero Span
// means the glyph has no source, e.g. generated numbering.
type Span struct {
	File   uint32
	Number uint64
}

// Detached reports whether s points nowhere.
func (s Span) Detached() bool { return s == Span{} }

// Glyph is a shaped glyph. XAdvance moves the pen; the offsets shift only
// this glyph.
type Glyph struct {
	ID       uint32
	XAdvance float64
	XOffset  float64
	YOffset  float64
	Span     Span
}

// Font references a font face. Data may be nil when the consumer of the
// scene resolves fonts by family.
type Font struct {
	Family string
	Data   []byte
}

// Text is a run of shaped glyphs starting on the baseline at its position.
// Glyphs may be empty for unshaped fixtures; Text then carries the string
// to shape.
type Text struct {
	Font   *Font
	Size   float64
	Fill   color.NRGBA
	Glyphs []Glyph
	Text   string
	// Span is the source of the first rune of Text, used to assign glyph
	// spans when the text is shaped later.
	Span Span
}

// Width returns the sum of glyph advances.
func (t *Text) Width() float64 {
	var w float64
	for _, g := range t.Glyphs {
		w += g.XAdvance
	}
	return w
}

// Image is an encoded raster image scaled to Size.
type Image struct {
	Format string
	Data   []byte
	Width  int
	Height int
	Size   vec.Vec2
}

// Group nests a frame under a transform and optional clip. The clip is in
// the group's own coordinates.
type Group struct {
	Transform matrix.Matrix
	Clip      Path
	Frame     Frame
}

// NewGroup returns a group with an identity transform.
func NewGroup() *Group {
	return &Group{Transform: matrix.Identity}
}

// Link is a hyperlink area.
type Link struct {
	Target string
	Size   vec.Vec2
}

// Annotation attaches metadata to an area.
type Annotation struct {
	Name    string
	Content string
	Size    vec.Vec2
}
