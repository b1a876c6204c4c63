package eviction

import "github.com/hybridkv/hotcache/internal/policy"

// FIFO evicts entries strictly in insertion order, ignoring hits.
type FIFO struct {
	order []policy.EntryView
	index map[uint64]int
}

// NewFIFO constructs an empty FIFO policy.
func NewFIFO() *FIFO {
	return &FIFO{index: make(map[uint64]int)}
}

func (p *FIFO) OnInsert(e policy.EntryView) {
	p.index[e.Fingerprint] = len(p.order)
	p.order = append(p.order, e)
}

func (p *FIFO) OnHit(policy.EntryView) {}

func (p *FIFO) OnRemove(e policy.EntryView) {
	i, ok := p.index[e.Fingerprint]
	if !ok {
		return
	}
	p.order = append(p.order[:i], p.order[i+1:]...)
	delete(p.index, e.Fingerprint)
	for fp, idx := range p.index {
		if idx > i {
			p.index[fp] = idx - 1
		}
	}
}

func (p *FIFO) SelectVictims(needBytes int64) []policy.EntryView {
	var victims []policy.EntryView
	var reclaimed int64
	for _, e := range p.order {
		if reclaimed >= needBytes {
			break
		}
		victims = append(victims, e)
		reclaimed += e.SizeBytes
	}
	return victims
}

func (p *FIFO) OnEvict(e policy.EntryView) {
	p.OnRemove(e)
}
