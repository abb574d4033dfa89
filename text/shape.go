package text

import (
	"fmt"
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/vecsync/fingerprint"
)

// Shaped is one positioned glyph produced by Shape.
type Shaped struct {
	ID      uint32
	Advance fixed.Int26_6
	// Offset is applied to the pen position before drawing, y down.
	Offset fixed.Point26_6
	// Cluster is the index of the first rune of the glyph's cluster.
	Cluster int
}

// Shape lays out s left to right with the font registered under fontFP.
// It is used for scene fixtures that carry text without glyphs; real
// documents arrive already shaped.
func (l *Library) Shape(fontFP fingerprint.Fingerprint, size fixed.Int26_6, s string) ([]Shaped, error) {
	lf, ok := l.get(fontFP)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFont, fontFP.Short())
	}
	if s == "" {
		return nil, nil
	}
	runes := []rune(s)
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		// font.Face is not safe for concurrent use; the Font it wraps is.
		Face:     font.NewFace(lf.face),
		Size:     size,
		Script:   scriptOf(runes),
		Language: language.NewLanguage("en"),
	}

	hb := l.shapers.Get().(*shaping.HarfbuzzShaper)
	out := hb.Shape(input)
	l.shapers.Put(hb)

	glyphs := make([]Shaped, len(out.Glyphs))
	for i, g := range out.Glyphs {
		glyphs[i] = Shaped{
			ID:      uint32(g.GlyphID),
			Advance: g.Advance,
			Offset:  fixed.Point26_6{X: g.XOffset, Y: -g.YOffset},
			Cluster: g.TextIndex(),
		}
	}
	return glyphs, nil
}

// scriptOf returns the script of the first non-space rune.
func scriptOf(runes []rune) language.Script {
	for _, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}
