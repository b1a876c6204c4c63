// Package policy defines the hook interfaces shared by every pluggable
// eviction, admission, and hotness-estimation strategy (component C6,
// §4.6). Hooks mirror the on_hit/on_miss/on_admit/on_insert/
// select_victims/on_evict/on_tick contract named in §4.6, generalizing
// the shard-bound hook split used by the other_examples shardcache
// policy package (Hooks/ShardPolicy) to operate on plain, copyable entry
// metadata instead of intrusive list nodes, since HybridKV's entries
// live in the arena rather than behind Go pointers a policy can hold
// onto directly.
package policy

import "time"

// EntryView is the read-only metadata a policy needs to make a decision.
// It is a snapshot, not a live handle: policies never get write access to
// the index or arena directly, only recommend actions that pkg/hotcache
// then carries out.
type EntryView struct {
	Fingerprint  uint64
	Key          []byte
	Tenant       string
	SizeBytes    int64
	InsertedAt   time.Time
	LastAccessAt time.Time
	AccessCount  uint64
}

// Eviction is a pluggable eviction strategy (§4.6: LRU, LFU, SLRU, TwoQ,
// FIFO). Implementations are not required to be safe for concurrent use;
// pkg/hotcache serializes calls into a policy behind its own lock.
type Eviction interface {
	// OnInsert records a newly admitted entry.
	OnInsert(e EntryView)
	// OnHit updates recency/frequency bookkeeping for a read hit.
	OnHit(e EntryView)
	// OnRemove drops bookkeeping for an entry removed for any reason
	// other than this policy's own SelectVictims call (e.g. explicit
	// invalidation or PURGE).
	OnRemove(e EntryView)
	// SelectVictims picks entries to evict until at least needBytes of
	// capacity would be reclaimed, in the policy's preferred order.
	SelectVictims(needBytes int64) []EntryView
	// OnEvict is called once per entry actually evicted, after
	// SelectVictims returned it and pkg/hotcache carried out the
	// removal, so the policy can retire any ghost-queue bookkeeping.
	OnEvict(e EntryView)
}

// Admission is a pluggable admission strategy (§4.6: threshold,
// TinyLFU-style, size-aware). It decides whether a candidate is worth
// admitting, optionally in comparison to the victim eviction would pick.
type Admission interface {
	// OnAdmit reports whether candidate should be admitted. victim is
	// the entry that would need to be evicted to make room, or nil if
	// there is free capacity.
	OnAdmit(candidate EntryView, victim *EntryView) bool
}

// Hotness is a pluggable hotness estimator (§4.6 and §4.9: Count-Min
// Sketch, reservoir sampling, tiered counters), consulted by admission
// policies and the hot-key tracker alike.
type Hotness interface {
	OnHit(fp uint64)
	OnMiss(fp uint64)
	// Estimate returns a relative frequency score; only the ordering
	// between two calls is meaningful, not the absolute value.
	Estimate(fp uint64) uint32
	// OnTick ages the estimator (e.g. halving a sketch, decaying
	// tiered counters). Called periodically by pkg/hotcache.
	OnTick()
}

// Less implements the deterministic eviction tie-break rule: given two
// candidates a policy judges otherwise equal, the older insertion loses
// (is evicted first); if insertion timestamps tie too, the smaller
// fingerprint loses. LFU breaks equal-frequency ties through Less; LRU,
// SLRU, TwoQ and FIFO order candidates by their queues alone and do not
// call it.
func Less(a, b EntryView) bool {
	if !a.InsertedAt.Equal(b.InsertedAt) {
		return a.InsertedAt.Before(b.InsertedAt)
	}
	return a.Fingerprint < b.Fingerprint
}
