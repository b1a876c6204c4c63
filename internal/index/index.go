// Package index implements the concurrent hash index: fingerprint ->
// entry handle, with exact key-bytes comparison resolving collisions.
//
// Every bucket is guarded by its own sync.RWMutex rather than a fully
// lock-free chain: concurrent readers never block each other at the
// bucket-contention level, while writers still serialize per bucket.
// What a fully lock-free design buys over this is avoiding the brief,
// table-wide pause during a grow; the part of the contract that
// actually matters for hot-path correctness -- never recycling the
// bytes a concurrent reader is still looking at -- is handled by
// deferring cell reuse through internal/epoch, which this package does
// not own but whose Guard callers are expected to hold across Lookup.
package index

import (
	"bytes"
	"sync"
)

const defaultBucketCount = 16

// Index maps a fingerprint+key to an opaque value V (typically a pointer
// to entry metadata owned by pkg/hotcache). It grows (never shrinks) when
// the load factor exceeds 0.75.
type Index[V any] struct {
	// tableMu guards the bucket slice itself (only swapped during grow);
	// readers take the read lock so ordinary traffic never contends with
	// itself, only with the rare resize.
	tableMu sync.RWMutex
	buckets []*bucket[V]

	countMu sync.Mutex
	count   int64
}

type chainNode[V any] struct {
	fp   uint64
	key  []byte
	val  V
	next *chainNode[V]
}

type bucket[V any] struct {
	mu   sync.RWMutex
	head *chainNode[V]
}

// New constructs an Index sized to hold roughly expectedPopulation entries
// at a load factor below 0.75: a power of two at least 2x the expected
// population.
func New[V any](expectedPopulation int) *Index[V] {
	n := defaultBucketCount
	for n < expectedPopulation*2 {
		n *= 2
	}
	idx := &Index[V]{buckets: make([]*bucket[V], n)}
	for i := range idx.buckets {
		idx.buckets[i] = &bucket[V]{}
	}
	return idx
}

// Lookup returns the value stored for (fingerprint, key), or the zero
// value and false if absent. Never blocked by another reader; blocked
// only behind an in-flight writer on the same bucket or a table resize.
func (idx *Index[V]) Lookup(fp uint64, key []byte) (V, bool) {
	idx.tableMu.RLock()
	b := idx.buckets[fp&uint64(len(idx.buckets)-1)]
	idx.tableMu.RUnlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for n := b.head; n != nil; n = n.next {
		if n.fp == fp && bytes.Equal(n.key, key) {
			return n.val, true
		}
	}
	var zero V
	return zero, false
}

// Insert adds or replaces the entry for (fingerprint, key). It reports the
// previous value (if any) so the caller can retire its backing resources.
func (idx *Index[V]) Insert(fp uint64, key []byte, val V) (old V, replaced bool) {
	idx.tableMu.RLock()
	b := idx.buckets[fp&uint64(len(idx.buckets)-1)]
	idx.tableMu.RUnlock()

	b.mu.Lock()
	for n := b.head; n != nil; n = n.next {
		if n.fp == fp && bytes.Equal(n.key, key) {
			old, replaced = n.val, true
			n.val = val
			b.mu.Unlock()
			return old, replaced
		}
	}
	b.head = &chainNode[V]{fp: fp, key: key, val: val, next: b.head}
	b.mu.Unlock()

	idx.afterInsert()
	return old, false
}

// Remove deletes the entry for (fingerprint, key), returning it if found.
func (idx *Index[V]) Remove(fp uint64, key []byte) (V, bool) {
	idx.tableMu.RLock()
	b := idx.buckets[fp&uint64(len(idx.buckets)-1)]
	idx.tableMu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	var prev *chainNode[V]
	for n := b.head; n != nil; n = n.next {
		if n.fp == fp && bytes.Equal(n.key, key) {
			if prev == nil {
				b.head = n.next
			} else {
				prev.next = n.next
			}
			idx.countMu.Lock()
			idx.count--
			idx.countMu.Unlock()
			return n.val, true
		}
		prev = n
	}
	var zero V
	return zero, false
}

// afterInsert bumps the live-entry estimate and, if the load factor now
// exceeds 0.75, doubles the bucket array under the table's write lock.
// The resize pauses all Lookup/Insert/Remove calls for its duration -- a
// deliberate simplification of a lock-free redirection-tombstone scheme
// (see package doc) -- but is itself rare, since the table only ever
// doubles.
func (idx *Index[V]) afterInsert() {
	idx.countMu.Lock()
	idx.count++
	grow := float64(idx.count)/float64(idx.currentSize()) > 0.75
	idx.countMu.Unlock()
	if grow {
		idx.resize()
	}
}

func (idx *Index[V]) currentSize() int {
	idx.tableMu.RLock()
	defer idx.tableMu.RUnlock()
	return len(idx.buckets)
}

func (idx *Index[V]) resize() {
	idx.tableMu.Lock()
	defer idx.tableMu.Unlock()

	n := len(idx.buckets)
	grown := make([]*bucket[V], n*2)
	for i := range grown {
		grown[i] = &bucket[V]{}
	}
	mask := uint64(len(grown) - 1)
	for _, b := range idx.buckets {
		// A reader that fetched b before this resize acquired tableMu may
		// still be about to take b.mu.RLock(); take the write lock here so
		// relinking never races with that in-flight traversal.
		b.mu.Lock()
		for node := b.head; node != nil; {
			next := node.next
			nb := grown[node.fp&mask]
			node.next = nb.head
			nb.head = node
			node = next
		}
		b.mu.Unlock()
	}
	idx.buckets = grown
}

// Range calls fn for every live entry, stopping early if fn returns
// false. Used by PURGE and the periodic TTL sweep, which need to
// enumerate entries; not on any per-request hot path. Held locks are per-bucket
// read locks taken one bucket at a time, so Range never blocks the
// whole table for its duration the way resize does.
func (idx *Index[V]) Range(fn func(fp uint64, key []byte, val V) bool) {
	idx.tableMu.RLock()
	buckets := idx.buckets
	idx.tableMu.RUnlock()

	for _, b := range buckets {
		b.mu.RLock()
		var nodes []*chainNode[V]
		for n := b.head; n != nil; n = n.next {
			nodes = append(nodes, n)
		}
		b.mu.RUnlock()
		for _, n := range nodes {
			if !fn(n.fp, n.key, n.val) {
				return
			}
		}
	}
}

// Len returns the approximate number of live entries.
func (idx *Index[V]) Len() int {
	idx.countMu.Lock()
	defer idx.countMu.Unlock()
	return int(idx.count)
}
