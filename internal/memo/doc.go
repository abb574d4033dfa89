// Package memo provides a sharded LRU for artifacts derived from immutable
// content: glyph outlines, decoded images and rendered SVG fragments.
//
// Keys are usually fingerprints, so a cached value never goes stale; the
// LRU bound only limits memory. Values are computed at most once per key
// while resident: GetOrCreate runs the constructor under the shard lock.
//
//	c := memo.New[fingerprint.Fingerprint, image.Image](64, memo.FingerprintHasher)
//	img, err := c.GetOrCreate(fp, func() (image.Image, error) { return decode(fp) })
package memo
