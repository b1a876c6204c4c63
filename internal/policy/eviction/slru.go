package eviction

import "github.com/hybridkv/hotcache/internal/policy"

// SLRU is a segmented LRU: new entries enter a probationary segment;
// a hit promotes an entry into the protected segment. Eviction always
// drains the probationary segment's tail first, only reaching into the
// protected segment once probation is empty.
type SLRU struct {
	protectedCap  int64
	protectedUsed int64
	protected     *LRU
	probation     *LRU
	segment       map[uint64]bool // true if currently in protected
}

// NewSLRU constructs an SLRU policy whose protected segment may hold up
// to protectedCapBytes before further promotions start displacing its
// own LRU tail back into probation.
func NewSLRU(protectedCapBytes int64) *SLRU {
	return &SLRU{
		protectedCap: protectedCapBytes,
		protected:    NewLRU(),
		probation:    NewLRU(),
		segment:      make(map[uint64]bool),
	}
}

func (p *SLRU) OnInsert(e policy.EntryView) {
	p.probation.OnInsert(e)
	p.segment[e.Fingerprint] = false
}

func (p *SLRU) OnHit(e policy.EntryView) {
	if p.segment[e.Fingerprint] {
		p.protected.OnHit(e)
		return
	}
	p.probation.OnRemove(e)
	p.protected.OnInsert(e)
	p.segment[e.Fingerprint] = true
	p.protectedUsed += e.SizeBytes
	p.rebalanceProtected()
}

// rebalanceProtected demotes the protected segment's LRU tail back into
// probation when the segment grows past its byte cap.
func (p *SLRU) rebalanceProtected() {
	for p.protectedUsed > p.protectedCap {
		victims := p.protected.SelectVictims(1)
		if len(victims) == 0 {
			break
		}
		demoted := victims[0]
		p.protected.OnRemove(demoted)
		p.probation.OnInsert(demoted)
		p.segment[demoted.Fingerprint] = false
		p.protectedUsed -= demoted.SizeBytes
	}
}

func (p *SLRU) OnRemove(e policy.EntryView) {
	if p.segment[e.Fingerprint] {
		p.protected.OnRemove(e)
		p.protectedUsed -= e.SizeBytes
	} else {
		p.probation.OnRemove(e)
	}
	delete(p.segment, e.Fingerprint)
}

func (p *SLRU) SelectVictims(needBytes int64) []policy.EntryView {
	victims := p.probation.SelectVictims(needBytes)
	var reclaimed int64
	for _, v := range victims {
		reclaimed += v.SizeBytes
	}
	if reclaimed < needBytes {
		victims = append(victims, p.protected.SelectVictims(needBytes-reclaimed)...)
	}
	return victims
}

func (p *SLRU) OnEvict(e policy.EntryView) {
	p.OnRemove(e)
}
