package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"

	// Image formats accepted in fixtures.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrFixture is wrapped by all fixture parsing errors.
var ErrFixture = errors.New("frame: invalid scene fixture")

// yamlDocument is the on-disk form of a scene fixture.
type yamlDocument struct {
	Fonts []yamlFont `yaml:"fonts"`
	Pages []yamlPage `yaml:"pages"`
}

type yamlFont struct {
	Family string `yaml:"family"`
	Src    string `yaml:"src"`
}

type yamlPage struct {
	Width  float64    `yaml:"width"`
	Height float64    `yaml:"height"`
	Items  []yamlItem `yaml:"items"`
}

type yamlItem struct {
	At         []float64       `yaml:"at"`
	Rect       *yamlRect       `yaml:"rect"`
	Path       *yamlPath       `yaml:"path"`
	Text       *yamlText       `yaml:"text"`
	Image      *yamlImage      `yaml:"image"`
	Group      *yamlGroup      `yaml:"group"`
	Link       *yamlLink       `yaml:"link"`
	Annotation *yamlAnnotation `yaml:"annotation"`
}

type yamlPaint struct {
	Fill    string      `yaml:"fill"`
	EvenOdd bool        `yaml:"even_odd"`
	Stroke  *yamlStroke `yaml:"stroke"`
}

type yamlStroke struct {
	Paint      string    `yaml:"paint"`
	Width      float64   `yaml:"width"`
	Cap        string    `yaml:"cap"`
	Join       string    `yaml:"join"`
	MiterLimit float64   `yaml:"miter_limit"`
	Dash       []float64 `yaml:"dash"`
	DashPhase  float64   `yaml:"dash_phase"`
}

type yamlRect struct {
	Size      []float64 `yaml:"size"`
	yamlPaint `yaml:",inline"`
}

type yamlPath struct {
	D         string `yaml:"d"`
	yamlPaint `yaml:",inline"`
}

type yamlSpan struct {
	File  uint32 `yaml:"file"`
	Start uint64 `yaml:"start"`
}

type yamlGlyph struct {
	ID      uint32  `yaml:"id"`
	Advance float64 `yaml:"advance"`
	DX      float64 `yaml:"dx"`
	DY      float64 `yaml:"dy"`
	Span    *uint64 `yaml:"span"`
}

type yamlText struct {
	Font    string      `yaml:"font"`
	Size    float64     `yaml:"size"`
	Fill    string      `yaml:"fill"`
	Content string      `yaml:"content"`
	Span    yamlSpan    `yaml:"span"`
	Glyphs  []yamlGlyph `yaml:"glyphs"`
}

type yamlImage struct {
	Src  string    `yaml:"src"`
	Data string    `yaml:"data"`
	Size []float64 `yaml:"size"`
}

type yamlGroup struct {
	Transform []float64  `yaml:"transform"`
	Clip      *yamlClip  `yaml:"clip"`
	Items     []yamlItem `yaml:"items"`
}

type yamlClip struct {
	Rect []float64 `yaml:"rect"`
	D    string    `yaml:"d"`
}

type yamlLink struct {
	Target string    `yaml:"target"`
	Size   []float64 `yaml:"size"`
}

type yamlAnnotation struct {
	Name    string    `yaml:"name"`
	Content string    `yaml:"content"`
	Size    []float64 `yaml:"size"`
}

// LoadFile reads a YAML scene fixture. Relative font and image paths are
// resolved against the fixture's directory.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frame: %w", err)
	}
	defer f.Close()
	return loadYAML(f, filepath.Dir(path))
}

// LoadYAML reads a YAML scene fixture. Relative paths are resolved against
// the working directory.
func LoadYAML(r io.Reader) (*Document, error) {
	return loadYAML(r, ".")
}

func loadYAML(r io.Reader, dir string) (*Document, error) {
	var yd yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&yd); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFixture, err)
	}
	b := &fixtureBuilder{dir: dir, fonts: make(map[string]*Font)}
	doc := &Document{}
	for i, yf := range yd.Fonts {
		if yf.Family == "" {
			return nil, fmt.Errorf("%w: font %d: family is required", ErrFixture, i)
		}
		f := &Font{Family: yf.Family}
		if yf.Src != "" {
			data, err := os.ReadFile(b.resolve(yf.Src))
			if err != nil {
				return nil, fmt.Errorf("%w: font %q: %w", ErrFixture, yf.Family, err)
			}
			f.Data = data
		}
		b.fonts[yf.Family] = f
		doc.Fonts = append(doc.Fonts, f)
	}
	for i, yp := range yd.Pages {
		if yp.Width <= 0 || yp.Height <= 0 {
			return nil, fmt.Errorf("%w: page %d: width and height must be > 0", ErrFixture, i)
		}
		fr, err := b.frame(yp.Items)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		doc.Pages = append(doc.Pages, Page{Width: yp.Width, Height: yp.Height, Frame: fr})
	}
	return doc, nil
}

type fixtureBuilder struct {
	dir   string
	fonts map[string]*Font
}

func (b *fixtureBuilder) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.dir, p)
}

func (b *fixtureBuilder) font(family string) *Font {
	if f, ok := b.fonts[family]; ok {
		return f
	}
	f := &Font{Family: family}
	b.fonts[family] = f
	return f
}

func (b *fixtureBuilder) frame(items []yamlItem) (Frame, error) {
	var fr Frame
	for i, yi := range items {
		pos, err := point(yi.At, "at")
		if err != nil {
			return fr, fmt.Errorf("item %d: %w", i, err)
		}
		it, err := b.item(&yi)
		if err != nil {
			return fr, fmt.Errorf("item %d: %w", i, err)
		}
		fr.Push(pos, it)
	}
	return fr, nil
}

func (b *fixtureBuilder) item(yi *yamlItem) (Item, error) {
	var out []Item
	if yi.Rect != nil {
		size, err := point(yi.Rect.Size, "size")
		if err != nil {
			return nil, err
		}
		s, err := shape(Rect(size.X, size.Y), &yi.Rect.yamlPaint)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if yi.Path != nil {
		p, err := ParsePathData(yi.Path.D)
		if err != nil {
			return nil, err
		}
		s, err := shape(p, &yi.Path.yamlPaint)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if yi.Text != nil {
		t, err := b.text(yi.Text)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if yi.Image != nil {
		im, err := b.image(yi.Image)
		if err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	if yi.Group != nil {
		g, err := b.group(yi.Group)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if yi.Link != nil {
		size, err := point(yi.Link.Size, "size")
		if err != nil {
			return nil, err
		}
		out = append(out, &Link{Target: yi.Link.Target, Size: size})
	}
	if yi.Annotation != nil {
		size, err := point(yi.Annotation.Size, "size")
		if err != nil {
			return nil, err
		}
		out = append(out, &Annotation{Name: yi.Annotation.Name, Content: yi.Annotation.Content, Size: size})
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: item must have exactly one kind, has %d", ErrFixture, len(out))
	}
	return out[0], nil
}

func shape(p Path, yp *yamlPaint) (*Shape, error) {
	s := &Shape{Path: p, EvenOdd: yp.EvenOdd}
	if yp.Fill != "" {
		c, err := ParseColor(yp.Fill)
		if err != nil {
			return nil, err
		}
		s.Fill = &c
	}
	if ys := yp.Stroke; ys != nil {
		c, err := ParseColor(ys.Paint)
		if err != nil {
			return nil, err
		}
		st := &Stroke{Paint: c, Width: ys.Width, MiterLimit: ys.MiterLimit, Dash: ys.Dash, DashPhase: ys.DashPhase}
		if st.Width == 0 {
			st.Width = 1
		}
		if st.MiterLimit == 0 {
			st.MiterLimit = 4
		}
		switch ys.Cap {
		case "", "butt":
		case "round":
			st.Cap = CapRound
		case "square":
			st.Cap = CapSquare
		default:
			return nil, fmt.Errorf("%w: unknown line cap %q", ErrFixture, ys.Cap)
		}
		switch ys.Join {
		case "", "miter":
		case "round":
			st.Join = JoinRound
		case "bevel":
			st.Join = JoinBevel
		default:
			return nil, fmt.Errorf("%w: unknown line join %q", ErrFixture, ys.Join)
		}
		s.Stroke = st
	}
	if s.Fill == nil && s.Stroke == nil {
		return nil, fmt.Errorf("%w: shape has neither fill nor stroke", ErrFixture)
	}
	return s, nil
}

func (b *fixtureBuilder) text(yt *yamlText) (*Text, error) {
	if yt.Font == "" || yt.Size <= 0 {
		return nil, fmt.Errorf("%w: text needs font and positive size", ErrFixture)
	}
	t := &Text{
		Font: b.font(yt.Font),
		Size: yt.Size,
		Fill: color.NRGBA{A: 0xff},
		Text: yt.Content,
		Span: Span{File: yt.Span.File, Number: yt.Span.Start},
	}
	if yt.Fill != "" {
		c, err := ParseColor(yt.Fill)
		if err != nil {
			return nil, err
		}
		t.Fill = c
	}
	for i, g := range yt.Glyphs {
		gl := Glyph{ID: g.ID, XAdvance: g.Advance, XOffset: g.DX, YOffset: g.DY}
		switch {
		case g.Span != nil:
			gl.Span = Span{File: yt.Span.File, Number: *g.Span}
		case !t.Span.Detached():
			gl.Span = Span{File: t.Span.File, Number: t.Span.Number + uint64(i)}
		}
		t.Glyphs = append(t.Glyphs, gl)
	}
	return t, nil
}

func (b *fixtureBuilder) image(yi *yamlImage) (*Image, error) {
	var data []byte
	switch {
	case yi.Src != "" && yi.Data != "":
		return nil, fmt.Errorf("%w: image has both src and data", ErrFixture)
	case yi.Src != "":
		var err error
		if data, err = os.ReadFile(b.resolve(yi.Src)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFixture, err)
		}
	case yi.Data != "":
		var err error
		if data, err = base64.StdEncoding.DecodeString(yi.Data); err != nil {
			return nil, fmt.Errorf("%w: image data: %w", ErrFixture, err)
		}
	default:
		return nil, fmt.Errorf("%w: image needs src or data", ErrFixture)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: image: %w", ErrFixture, err)
	}
	im := &Image{Format: format, Data: data, Width: cfg.Width, Height: cfg.Height}
	if yi.Size != nil {
		if im.Size, err = point(yi.Size, "size"); err != nil {
			return nil, err
		}
	} else {
		im.Size = vec.Vec2{X: float64(cfg.Width), Y: float64(cfg.Height)}
	}
	return im, nil
}

func (b *fixtureBuilder) group(yg *yamlGroup) (*Group, error) {
	g := NewGroup()
	switch len(yg.Transform) {
	case 0:
	case 6:
		g.Transform = matrix.Matrix{yg.Transform[0], yg.Transform[1], yg.Transform[2],
			yg.Transform[3], yg.Transform[4], yg.Transform[5]}
	default:
		return nil, fmt.Errorf("%w: transform needs 6 numbers, has %d", ErrFixture, len(yg.Transform))
	}
	if c := yg.Clip; c != nil {
		switch {
		case c.Rect != nil:
			size, err := point(c.Rect, "clip rect")
			if err != nil {
				return nil, err
			}
			g.Clip = Rect(size.X, size.Y)
		case c.D != "":
			p, err := ParsePathData(c.D)
			if err != nil {
				return nil, err
			}
			g.Clip = p
		default:
			return nil, fmt.Errorf("%w: empty clip", ErrFixture)
		}
	}
	fr, err := b.frame(yg.Items)
	if err != nil {
		return nil, err
	}
	g.Frame = fr
	return g, nil
}

func point(v []float64, name string) (vec.Vec2, error) {
	switch len(v) {
	case 0:
		return vec.Vec2{}, nil
	case 2:
		return vec.Vec2{X: v[0], Y: v[1]}, nil
	default:
		return vec.Vec2{}, fmt.Errorf("%w: %s needs 2 numbers, has %d", ErrFixture, name, len(v))
	}
}

// ParseColor parses "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.NRGBA, error) {
	h, ok := strings.CutPrefix(s, "#")
	if !ok || (len(h) != 6 && len(h) != 8) {
		return color.NRGBA{}, fmt.Errorf("%w: bad color %q", ErrFixture, s)
	}
	if len(h) == 6 {
		h += "ff"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: bad color %q", ErrFixture, s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ParsePathData parses absolute SVG path commands M, L, Q, C and Z.
func ParsePathData(d string) (Path, error) {
	toks := tokenizePath(d)
	var p Path
	var cmd byte
	args := func(n int) ([]float64, error) {
		if len(toks) < n {
			return nil, fmt.Errorf("%w: path %q: %c needs %d numbers", ErrFixture, d, cmd, n)
		}
		out := make([]float64, n)
		for i := range out {
			v, err := strconv.ParseFloat(toks[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: path %q: %w", ErrFixture, d, err)
			}
			out[i] = v
		}
		toks = toks[n:]
		return out, nil
	}
	for len(toks) > 0 {
		if t := toks[0]; len(t) == 1 && unicode.IsLetter(rune(t[0])) {
			cmd = t[0]
			toks = toks[1:]
		} else if cmd == 0 || cmd == 'Z' {
			return nil, fmt.Errorf("%w: path %q: number without command", ErrFixture, d)
		}
		switch cmd {
		case 'M':
			a, err := args(2)
			if err != nil {
				return nil, err
			}
			p.MoveTo(a[0], a[1])
			cmd = 'L' // implicit lineto after moveto
		case 'L':
			a, err := args(2)
			if err != nil {
				return nil, err
			}
			p.LineTo(a[0], a[1])
		case 'Q':
			a, err := args(4)
			if err != nil {
				return nil, err
			}
			p.QuadTo(a[0], a[1], a[2], a[3])
		case 'C':
			a, err := args(6)
			if err != nil {
				return nil, err
			}
			p.CubeTo(a[0], a[1], a[2], a[3], a[4], a[5])
		case 'Z':
			p.Close()
		default:
			return nil, fmt.Errorf("%w: path %q: unsupported command %c", ErrFixture, d, cmd)
		}
	}
	return p, nil
}

// tokenizePath splits path data into single-letter commands and numbers.
func tokenizePath(d string) []string {
	var toks []string
	start := -1
	flush := func(i int) {
		if start >= 0 {
			toks = append(toks, d[start:i])
			start = -1
		}
	}
	for i := 0; i < len(d); i++ {
		c := d[i]
		switch {
		case c == ' ' || c == ',' || c == '\n' || c == '\t' || c == '\r':
			flush(i)
		case (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z' && c != 'e'):
			flush(i)
			toks = append(toks, d[i:i+1])
		case c == '-' && start >= 0 && d[i-1] != 'e':
			flush(i)
			start = i
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(d))
	return toks
}
