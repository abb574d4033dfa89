package lower

import (
	"errors"
	"fmt"

	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/frame"
	"github.com/gogpu/vecsync/text"
	"github.com/gogpu/vecsync/vector"
)

// Shape fills in glyphs for every text item of doc that has none, using
// fonts from lib. Glyph spans count runes from the text's own span. Text
// that is already shaped is left alone.
func Shape(doc *frame.Document, lib *text.Library) error {
	for i := range doc.Pages {
		if err := shapeFrame(&doc.Pages[i].Frame, lib); err != nil {
			return fmt.Errorf("lower: page %d: %w", i, err)
		}
	}
	return nil
}

func shapeFrame(f *frame.Frame, lib *text.Library) error {
	for _, p := range f.Items {
		switch it := p.Item.(type) {
		case *frame.Group:
			if err := shapeFrame(&it.Frame, lib); err != nil {
				return err
			}
		case *frame.Text:
			if len(it.Glyphs) > 0 || it.Text == "" {
				continue
			}
			fp, err := libraryFont(lib, it.Font)
			if err != nil {
				return err
			}
			shaped, err := lib.Shape(fp, vector.Quantize(it.Size), it.Text)
			if err != nil {
				return err
			}
			it.Glyphs = make([]frame.Glyph, len(shaped))
			for j, s := range shaped {
				g := frame.Glyph{
					ID:       s.ID,
					XAdvance: vector.ToFloat(s.Advance),
					XOffset:  vector.ToFloat(s.Offset.X),
					YOffset:  vector.ToFloat(s.Offset.Y),
				}
				if !it.Span.Detached() {
					g.Span = frame.Span{File: it.Span.File, Number: it.Span.Number + uint64(s.Cluster)}
				}
				it.Glyphs[j] = g
			}
		}
	}
	return nil
}

func libraryFont(lib *text.Library, f *frame.Font) (fingerprint.Fingerprint, error) {
	if f == nil {
		return fingerprint.Fingerprint{}, errors.New("lower: text without font")
	}
	if f.Data != nil {
		_, fp, err := lib.Add(f.Data)
		return fp, err
	}
	_, fp, ok := lib.Lookup(f.Family)
	if !ok {
		return fp, fmt.Errorf("%w: family %q", text.ErrUnknownFont, f.Family)
	}
	return fp, nil
}
