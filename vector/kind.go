package vector

// unknownStr is returned by String methods for out-of-range values.
const unknownStr = "Unknown"

// Kind identifies the variant of a vector item. The numeric value is the
// tag written to the wire.
type Kind uint8

// Item kinds.
const (
	KindPath       Kind = 1
	KindGlyphRun   Kind = 2
	KindImage      Kind = 3
	KindGroup      Kind = 4
	KindLink       Kind = 5
	KindAnnotation Kind = 6
	KindFont       Kind = 7
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindPath:
		return "Path"
	case KindGlyphRun:
		return "GlyphRun"
	case KindImage:
		return "Image"
	case KindGroup:
		return "Group"
	case KindLink:
		return "Link"
	case KindAnnotation:
		return "Annotation"
	case KindFont:
		return "Font"
	default:
		return unknownStr
	}
}

// Known reports whether this build can interpret items of kind k.
func (k Kind) Known() bool {
	return k >= KindPath && k <= KindFont
}

// Required reports whether a consumer must understand items of kind k to
// render a page correctly. Links and annotations carry no visible geometry,
// so an older consumer may ignore them.
func (k Kind) Required() bool {
	switch k {
	case KindLink, KindAnnotation:
		return false
	default:
		return true
	}
}
