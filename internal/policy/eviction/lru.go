// Package eviction implements the concrete eviction strategies named in
// §4.6: LRU, LFU, SLRU, TwoQ, FIFO. Each keeps its own lightweight
// bookkeeping (an intrusive doubly linked list keyed by fingerprint,
// mirroring the other_examples shardcache list-node split) rather than
// holding arena pointers directly.
package eviction

import (
	"container/list"
	"sort"

	"github.com/hybridkv/hotcache/internal/policy"
)

// LRU evicts the least-recently-used entry first.
type LRU struct {
	ll    *list.List
	index map[uint64]*list.Element
}

// NewLRU constructs an empty LRU policy.
func NewLRU() *LRU {
	return &LRU{ll: list.New(), index: make(map[uint64]*list.Element)}
}

func (p *LRU) OnInsert(e policy.EntryView) {
	el := p.ll.PushFront(e)
	p.index[e.Fingerprint] = el
}

func (p *LRU) OnHit(e policy.EntryView) {
	if el, ok := p.index[e.Fingerprint]; ok {
		el.Value = e
		p.ll.MoveToFront(el)
	}
}

func (p *LRU) OnRemove(e policy.EntryView) {
	if el, ok := p.index[e.Fingerprint]; ok {
		p.ll.Remove(el)
		delete(p.index, e.Fingerprint)
	}
}

func (p *LRU) SelectVictims(needBytes int64) []policy.EntryView {
	var victims []policy.EntryView
	var reclaimed int64
	for el := p.ll.Back(); el != nil && reclaimed < needBytes; el = el.Prev() {
		e := el.Value.(policy.EntryView)
		victims = append(victims, e)
		reclaimed += e.SizeBytes
	}
	return victims
}

func (p *LRU) OnEvict(e policy.EntryView) {
	p.OnRemove(e)
}

// sortByTieBreak orders candidates using policy.Less. No policy in this
// package calls it; LFU applies policy.Less inside its own comparison.
func sortByTieBreak(views []policy.EntryView) {
	sort.Slice(views, func(i, j int) bool {
		return policy.Less(views[i], views[j])
	})
}
