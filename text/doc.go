// Package text supplies the font side of the vector representation.
//
// [Describe] turns an OpenType file into a [vector.Font] descriptor using
// go-text/typesetting. A [Library] holds parsed fonts keyed by the
// fingerprint of their descriptor; it resolves fonts by family, shapes
// plain strings for scene fixtures that carry no glyphs, and implements
// [OutlineSource] for backends that draw glyphs as paths.
//
// Outlines come from golang.org/x/image/font/sfnt, in points at the
// requested size with y pointing down, and are memoised per font, glyph
// and size.
package text
