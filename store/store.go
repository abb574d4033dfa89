package store

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/gogpu/vecsync"
	"github.com/gogpu/vecsync/fingerprint"
	"github.com/gogpu/vecsync/vector"
)

const (
	// shardCount is the number of shards. Must be a power of 2.
	shardCount = 16

	// shardMask selects a shard from the first fingerprint byte.
	shardMask = shardCount - 1
)

var (
	// ErrFingerprintCollision reports two different items under one
	// fingerprint.
	ErrFingerprintCollision = errors.New("store: fingerprint collision")

	// ErrNotFound is returned when a fingerprint is not in the store.
	ErrNotFound = errors.New("store: item not found")

	// ErrDanglingReference is returned when a reachable reference has no
	// entry. It is the same value as vector.ErrDanglingReference.
	ErrDanglingReference = vector.ErrDanglingReference
)

// CollisionError describes a rejected insert.
type CollisionError struct {
	Fingerprint fingerprint.Fingerprint
	Stored      vector.Kind
	Inserted    vector.Kind
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("store: fingerprint collision on %s (stored %v, inserted %v)",
		e.Fingerprint, e.Stored, e.Inserted)
}

// Unwrap returns ErrFingerprintCollision.
func (e *CollisionError) Unwrap() error { return ErrFingerprintCollision }

// Stats holds store counters.
type Stats struct {
	Len        int
	Inserts    uint64 // new entries
	Hits       uint64 // inserts that found an equal entry
	Collisions uint64
}

// Store is a sharded, concurrency-safe fingerprint table.
// A Store must not be copied after creation.
type Store struct {
	shards [shardCount]*shard

	liveMu sync.RWMutex
	live   vector.Set

	inserts    atomic.Uint64
	hits       atomic.Uint64
	collisions atomic.Uint64
}

type shard struct {
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]*entry
}

// entry keeps the canonical encoding next to the item so collision checks
// and the flat encoder never re-encode.
type entry struct {
	item    vector.Item
	payload []byte
	refs    []fingerprint.Fingerprint
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[fingerprint.Fingerprint]*entry)}
	}
	return s
}

func (s *Store) shard(fp fingerprint.Fingerprint) *shard {
	return s.shards[fp[0]&shardMask]
}

// Insert stores it under fp unless an entry already exists. It returns the
// item held by the store afterwards and whether this call created it.
//
// fp must be vector.FingerprintOf(it); Insert does not rehash. If an entry
// exists with different content, Insert returns a *CollisionError and the
// store is unchanged.
func (s *Store) Insert(fp fingerprint.Fingerprint, it vector.Item) (vector.Item, bool, error) {
	return s.insert(fp, it, it.AppendPayload(nil))
}

// Intern computes the fingerprint of it and inserts it.
func (s *Store) Intern(it vector.Item) (fingerprint.Fingerprint, bool, error) {
	payload, fp := vector.Encode(it)
	_, isNew, err := s.insert(fp, it, payload)
	return fp, isNew, err
}

func (s *Store) insert(fp fingerprint.Fingerprint, it vector.Item, payload []byte) (vector.Item, bool, error) {
	sh := s.shard(fp)

	// Fast path: read lock for the common dedup hit
	sh.mu.RLock()
	e, ok := sh.entries[fp]
	sh.mu.RUnlock()
	if ok {
		return s.resolve(fp, e, it, payload)
	}

	sh.mu.Lock()
	// Re-check after acquiring write lock
	if e, ok := sh.entries[fp]; ok {
		sh.mu.Unlock()
		return s.resolve(fp, e, it, payload)
	}
	sh.entries[fp] = &entry{item: it, payload: payload, refs: slices.Clone(it.Refs())}
	sh.mu.Unlock()

	s.inserts.Add(1)
	return it, true, nil
}

// resolve compares a candidate against an existing entry. Entries are
// immutable, so no lock is needed.
func (s *Store) resolve(fp fingerprint.Fingerprint, e *entry, it vector.Item, payload []byte) (vector.Item, bool, error) {
	if e.item.Kind() != it.Kind() || !bytes.Equal(e.payload, payload) || !slices.Equal(e.refs, it.Refs()) {
		s.collisions.Add(1)
		err := &CollisionError{Fingerprint: fp, Stored: e.item.Kind(), Inserted: it.Kind()}
		vecsync.Logger().Error("store: fingerprint collision", "fp", fp.String(),
			"stored", e.item.Kind().String(), "inserted", it.Kind().String())
		return nil, false, err
	}
	s.hits.Add(1)
	return e.item, false, nil
}

// Get returns the item stored under fp.
func (s *Store) Get(fp fingerprint.Fingerprint) (vector.Item, bool) {
	sh := s.shard(fp)
	sh.mu.RLock()
	e, ok := sh.entries[fp]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.item, true
}

// Has reports whether fp is stored.
func (s *Store) Has(fp fingerprint.Fingerprint) bool {
	_, ok := s.Get(fp)
	return ok
}

// Payload returns the canonical payload of the item stored under fp.
// The returned slice must not be modified.
func (s *Store) Payload(fp fingerprint.Fingerprint) ([]byte, bool) {
	sh := s.shard(fp)
	sh.mu.RLock()
	e, ok := sh.entries[fp]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.payload, true
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

// MarkReachable computes the set of fingerprints reachable from roots and
// records it as the live set. Every reachable reference must be stored.
func (s *Store) MarkReachable(roots []fingerprint.Fingerprint) (vector.Set, error) {
	live := make(vector.Set)
	stack := slices.Clone(roots)
	for len(stack) > 0 {
		fp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if live.Has(fp) {
			continue
		}
		it, ok := s.Get(fp)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingReference, fp)
		}
		live.Add(fp)
		stack = append(stack, it.Refs()...)
	}

	s.liveMu.Lock()
	s.live = live
	s.liveMu.Unlock()
	return live, nil
}

// Live returns the set recorded by the last MarkReachable call.
func (s *Store) Live() vector.Set {
	s.liveMu.RLock()
	defer s.liveMu.RUnlock()
	return s.live
}

// StaleSince returns, in ascending order, the fingerprints of prev that
// are not in the current live set.
func (s *Store) StaleSince(prev vector.Set) []fingerprint.Fingerprint {
	return prev.Difference(s.Live())
}

// Retain removes every entry not in keep and returns how many were
// removed.
func (s *Store) Retain(keep vector.Set) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for fp := range sh.entries {
			if !keep.Has(fp) {
				delete(sh.entries, fp)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		vecsync.Logger().Debug("store: retained", "kept", len(keep), "removed", removed)
	}
	return removed
}

// Snapshot marks the items reachable from pages and returns them as a
// module with the given identity.
func (s *Store) Snapshot(id ulid.ULID, pages []vector.Page) (*vector.Module, error) {
	roots := make([]fingerprint.Fingerprint, len(pages))
	for i, p := range pages {
		roots[i] = p.Root
	}
	live, err := s.MarkReachable(roots)
	if err != nil {
		return nil, err
	}
	m := &vector.Module{
		ID:    id,
		Items: make(map[fingerprint.Fingerprint]vector.Item, len(live)),
		Pages: slices.Clone(pages),
	}
	for fp := range live {
		it, ok := s.Get(fp)
		if !ok {
			// Retain ran concurrently with Snapshot.
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fp)
		}
		m.Items[fp] = it
	}
	return m, nil
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	return Stats{
		Len:        s.Len(),
		Inserts:    s.inserts.Load(),
		Hits:       s.hits.Load(),
		Collisions: s.collisions.Load(),
	}
}

// ResetStats zeroes the counters.
func (s *Store) ResetStats() {
	s.inserts.Store(0)
	s.hits.Store(0)
	s.collisions.Store(0)
}
