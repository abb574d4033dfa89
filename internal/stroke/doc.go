// Package stroke turns vector outlines into device-space polylines and
// expands stroked polylines into outlines that fill under the nonzero rule.
//
// # Pipeline
//
// Flatten transforms segments through a matrix and replaces curves with
// line runs within a tolerance. Dash splits contours into dashes. An
// Expander offsets each contour by half the stroke width on both sides:
//
//  1. the forward offset runs along the contour
//  2. the end cap joins it to the backward offset
//  3. the backward offset runs in reverse
//  4. the start cap closes the outline
//
// Closed contours have no caps; they produce two rings of opposite
// orientation instead.
//
// # Caps and joins
//
// Caps and joins use vector.LineCap and vector.LineJoin. Miter joins fall
// back to bevels when the miter ratio exceeds the limit. Round joins and
// caps are drawn with cubic arcs.
//
// The expansion follows the forward/backward offset scheme of kurbo's
// stroke.rs and tiny-skia's stroker.rs.
package stroke
