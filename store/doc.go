// Package store implements the content-addressed fingerprint store.
//
// A Store maps fingerprints to immutable vector items. Inserting an item
// whose fingerprint is already present returns the stored item instead of
// keeping a duplicate, which is what shares content across pages and across
// compile generations. Re-inserting a fingerprint with different content is
// a collision and is reported, never resolved.
//
// The table is split into 16 shards, each with its own lock, so lowering
// can insert from many goroutines at once. Two goroutines inserting the
// same content race for the shard lock; exactly one wins and both observe
// the winner's item.
//
//	st := store.New()
//	fp, _, err := st.Intern(item)
//	live, err := st.MarkReachable(roots)
//	stale := st.StaleSince(prevLive)
//	st.Retain(live)
//
// Entries are never evicted implicitly. Retain compacts the table to a live
// set once the caller no longer needs older generations.
package store
