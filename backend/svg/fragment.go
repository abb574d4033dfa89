package svg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"

	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/backend"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/internal/memo"
	"github.com/gogpu/vecsync/text"
	"github.com/gogpu/vecsync/vector"
)

// fragmentBuilder converts items into element fragments. A nil fragment
// means the item draws nothing.
type fragmentBuilder struct {
	get   func(fingerprint.Fingerprint) (vector.Item, bool)
	fonts text.OutlineSource
	cache *memo.Cache[fingerprint.Fingerprint, *backend.Node]
}

// fragment returns the memoized fragment of fp. Children are built
// outside the cache lock; when two builds race, the first stored
// fragment wins.
func (fb *fragmentBuilder) fragment(fp fingerprint.Fingerprint) (*backend.Node, error) {
	if n, ok := fb.cache.Get(fp); ok {
		return n, nil
	}
	n, err := fb.build(fp)
	if err != nil {
		return nil, err
	}
	return fb.cache.GetOrCreate(fp, func() (*backend.Node, error) { return n, nil })
}

func (fb *fragmentBuilder) build(fp fingerprint.Fingerprint) (*backend.Node, error) {
	it, ok := fb.get(fp)
	if !ok {
		return nil, fmt.Errorf("svg: item %s not mirrored", fp.Short())
	}
	switch it := it.(type) {
	case *vector.Path:
		return pathNode(it), nil
	case *vector.GlyphRun:
		return fb.glyphs(it)
	case *vector.Image:
		return imageNode(it)
	case *vector.Group:
		return fb.group(fp, it)
	case *vector.Link:
		return linkNode(it), nil
	case *vector.Annotation:
		return annotationNode(it), nil
	}
	return nil, nil
}

func (fb *fragmentBuilder) group(fp fingerprint.Fingerprint, g *vector.Group) (*backend.Node, error) {
	n := backend.Elem("g")
	if !g.Transform.IsIdentity() {
		n.Set("transform", matrixAttr(g.Transform.Float()))
	}
	body := n
	if g.Clip != nil {
		id := "clip-" + fp.String()
		n.Append(backend.Elem("clipPath", backend.Attr{Name: "id", Value: id}).
			Append(backend.Elem("path", backend.Attr{Name: "d", Value: pathData(g.Clip, 0, 0)})))
		body = backend.Elem("g", backend.Attr{Name: "clip-path", Value: "url(#" + id + ")"})
		n.Append(body)
	}
	for _, c := range g.Children {
		child, err := fb.fragment(c.Ref)
		if err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		if c.Offset != (fixed.Point26_6{}) {
			child = backend.Elem("g", backend.Attr{
				Name:  "transform",
				Value: "translate(" + num(vector.ToFloat(c.Offset.X)) + " " + num(vector.ToFloat(c.Offset.Y)) + ")",
			}).Append(child)
		}
		body.Append(child)
	}
	return n, nil
}

func pathNode(p *vector.Path) *backend.Node {
	n := backend.Elem("path", backend.Attr{Name: "d", Value: pathData(p.Segments, 0, 0)})
	if f := p.Fill; f != nil {
		setPaint(n, "fill", f.Color)
		if f.Rule == vector.FillEvenOdd {
			n.Set("fill-rule", "evenodd")
		}
	} else {
		n.Set("fill", "none")
	}
	if s := p.Stroke; s != nil {
		setPaint(n, "stroke", s.Color)
		n.Set("stroke-width", num(vector.ToFloat(s.Width)))
		switch s.Cap {
		case vector.LineCapRound:
			n.Set("stroke-linecap", "round")
		case vector.LineCapSquare:
			n.Set("stroke-linecap", "square")
		}
		switch s.Join {
		case vector.LineJoinRound:
			n.Set("stroke-linejoin", "round")
		case vector.LineJoinBevel:
			n.Set("stroke-linejoin", "bevel")
		default:
			n.Set("stroke-miterlimit", num(vector.ToFloat(s.MiterLimit)))
		}
		if len(s.Dashes) > 0 {
			parts := make([]string, len(s.Dashes))
			for i, d := range s.Dashes {
				parts[i] = num(vector.ToFloat(d))
			}
			n.Set("stroke-dasharray", strings.Join(parts, " "))
			if s.DashOffset != 0 {
				n.Set("stroke-dashoffset", num(vector.ToFloat(s.DashOffset)))
			}
		}
	}
	return n
}

// glyphs draws a run as outline paths when an outline source is
// available and as a text element otherwise.
func (fb *fragmentBuilder) glyphs(g *vector.GlyphRun) (*backend.Node, error) {
	if fb.fonts == nil {
		n := backend.Elem("text", backend.Attr{Name: "font-size", Value: num(vector.ToFloat(g.Size))})
		if it, ok := fb.get(g.Font); ok {
			if f, ok := it.(*vector.Font); ok && f.Family != "" {
				n.Set("font-family", f.Family)
			}
		}
		setPaint(n, "fill", g.Color)
		return n.Append(backend.TextNode(g.Text)), nil
	}

	var d strings.Builder
	pen := 0.0
	for _, gl := range g.Glyphs {
		segs, err := fb.fonts.Outline(g.Font, gl.ID, g.Size)
		if err != nil {
			return nil, fmt.Errorf("svg: %w", err)
		}
		if len(segs) > 0 {
			if d.Len() > 0 {
				d.WriteByte(' ')
			}
			d.WriteString(pathData(segs, pen+vector.ToFloat(gl.Offset.X), vector.ToFloat(gl.Offset.Y)))
		}
		pen += vector.ToFloat(gl.Advance)
	}
	n := backend.Elem("path", backend.Attr{Name: "d", Value: d.String()})
	setPaint(n, "fill", g.Color)
	if g.Text != "" {
		n.Append(backend.Elem("title").Append(backend.TextNode(g.Text)))
	}
	return n, nil
}

var imageTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// formatRGBA names raw non-premultiplied RGBA pixels; they are embedded
// as PNG.
const formatRGBA = "rgba"

func imageNode(im *vector.Image) (*backend.Node, error) {
	data, mime := im.Data, imageTypes[im.Format]
	if im.Format == formatRGBA {
		w, h := int(im.Width), int(im.Height)
		if uint64(im.Width)*uint64(im.Height)*4 != uint64(len(im.Data)) {
			return nil, fmt.Errorf("svg: rgba image %dx%d has %d bytes", w, h, len(im.Data))
		}
		var buf bytes.Buffer
		src := &image.NRGBA{Pix: im.Data, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
		if err := png.Encode(&buf, src); err != nil {
			return nil, fmt.Errorf("svg: %w", err)
		}
		data, mime = buf.Bytes(), "image/png"
	}
	if mime == "" {
		return nil, nil
	}
	return backend.Elem("image",
		backend.Attr{Name: "width", Value: num(vector.ToFloat(im.Size.X))},
		backend.Attr{Name: "height", Value: num(vector.ToFloat(im.Size.Y))},
		backend.Attr{Name: "preserveAspectRatio", Value: "none"},
		backend.Attr{Name: "href", Value: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)},
	), nil
}

func linkNode(l *vector.Link) *backend.Node {
	return backend.Elem("a", backend.Attr{Name: "href", Value: l.Target}).Append(
		backend.Elem("rect",
			backend.Attr{Name: "width", Value: num(vector.ToFloat(l.Size.X))},
			backend.Attr{Name: "height", Value: num(vector.ToFloat(l.Size.Y))},
			backend.Attr{Name: "fill", Value: "transparent"},
		))
}

func annotationNode(a *vector.Annotation) *backend.Node {
	return backend.Elem("g",
		backend.Attr{Name: "class", Value: "annotation"},
		backend.Attr{Name: "data-name", Value: a.Name},
	).Append(backend.Elem("title").Append(backend.TextNode(a.Content)))
}

func setPaint(n *backend.Node, attr string, c vector.Color) {
	nc := c.NRGBA()
	n.Set(attr, fmt.Sprintf("#%02x%02x%02x", nc.R, nc.G, nc.B))
	if !c.Opaque() {
		n.Set(attr+"-opacity", num(float64(nc.A)/255))
	}
}

// pathData returns the SVG path data of segs translated by (dx, dy).
func pathData(segs []vector.Segment, dx, dy float64) string {
	var b []byte
	for i, s := range segs {
		if i > 0 {
			b = append(b, ' ')
		}
		switch s.Op {
		case vector.SegmentMoveTo:
			b = append(b, 'M')
		case vector.SegmentLineTo:
			b = append(b, 'L')
		case vector.SegmentQuadTo:
			b = append(b, 'Q')
		case vector.SegmentCubeTo:
			b = append(b, 'C')
		case vector.SegmentClose:
			b = append(b, 'Z')
			continue
		}
		for j, p := range s.Args[:s.Op.Points()] {
			if j > 0 {
				b = append(b, ' ')
			}
			b = appendNum(b, vector.ToFloat(p.X)+dx)
			b = append(b, ' ')
			b = appendNum(b, vector.ToFloat(p.Y)+dy)
		}
	}
	return string(b)
}

func matrixAttr(m [6]float64) string {
	b := []byte("matrix(")
	for i, v := range m {
		if i > 0 {
			b = append(b, ' ')
		}
		b = appendNum(b, v)
	}
	return string(append(b, ')'))
}

func num(v float64) string { return string(appendNum(nil, v)) }

func appendNum(b []byte, v float64) []byte {
	if v == 0 {
		// avoid "-0"
		return append(b, '0')
	}
	return strconv.AppendFloat(b, v, 'f', -1, 64)
}
