package eviction

import (
	"sort"

	"github.com/hybridkv/hotcache/internal/policy"
)

// LFU evicts the least-frequently-used entry first, breaking ties
// through policy.Less.
type LFU struct {
	entries map[uint64]policy.EntryView
}

// NewLFU constructs an empty LFU policy.
func NewLFU() *LFU {
	return &LFU{entries: make(map[uint64]policy.EntryView)}
}

func (p *LFU) OnInsert(e policy.EntryView) {
	p.entries[e.Fingerprint] = e
}

func (p *LFU) OnHit(e policy.EntryView) {
	p.entries[e.Fingerprint] = e
}

func (p *LFU) OnRemove(e policy.EntryView) {
	delete(p.entries, e.Fingerprint)
}

func (p *LFU) SelectVictims(needBytes int64) []policy.EntryView {
	views := make([]policy.EntryView, 0, len(p.entries))
	for _, e := range p.entries {
		views = append(views, e)
	}
	sortByFrequency(views)

	var victims []policy.EntryView
	var reclaimed int64
	for _, e := range views {
		if reclaimed >= needBytes {
			break
		}
		victims = append(victims, e)
		reclaimed += e.SizeBytes
	}
	return victims
}

func (p *LFU) OnEvict(e policy.EntryView) {
	p.OnRemove(e)
}

func sortByFrequency(views []policy.EntryView) {
	sort.Slice(views, func(i, j int) bool { return lessFrequency(views[i], views[j]) })
}

func lessFrequency(a, b policy.EntryView) bool {
	if a.AccessCount != b.AccessCount {
		return a.AccessCount < b.AccessCount
	}
	return policy.Less(a, b)
}
