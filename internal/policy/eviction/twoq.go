package eviction

import "github.com/hybridkv/hotcache/internal/policy"

// TwoQ implements the 2Q policy: entries enter a FIFO "in" queue; a hit
// while still in "in" promotes the entry to a proper LRU "main" queue;
// an entry evicted out of "in" leaves a ghost key behind in "out" (key
// only, no bytes) so a near-future re-admission can be recognized as
// recently-seen and routed straight into "main" instead of "in" again,
// grounded on the same 2Q shape as other_examples' shardcache
// policy/twoq package.
type TwoQ struct {
	inCapBytes int64
	inUsed     int64
	in         []policy.EntryView // FIFO, index 0 is oldest
	main       *LRU
	ghostOut   map[uint64]struct{}
	ghostCap   int
	ghostOrder []uint64
	location   map[uint64]bool // true => in main, false => in "in"
}

// NewTwoQ constructs a TwoQ policy. inCapBytes bounds the "in" queue;
// ghostCap bounds how many evicted-from-"in" keys are remembered.
func NewTwoQ(inCapBytes int64, ghostCap int) *TwoQ {
	return &TwoQ{
		inCapBytes: inCapBytes,
		main:       NewLRU(),
		ghostOut:   make(map[uint64]struct{}),
		ghostCap:   ghostCap,
		location:   make(map[uint64]bool),
	}
}

func (p *TwoQ) OnInsert(e policy.EntryView) {
	if _, wasGhost := p.ghostOut[e.Fingerprint]; wasGhost {
		delete(p.ghostOut, e.Fingerprint)
		p.main.OnInsert(e)
		p.location[e.Fingerprint] = true
		return
	}
	p.in = append(p.in, e)
	p.inUsed += e.SizeBytes
	p.location[e.Fingerprint] = false
	p.admitFromIn()
}

// admitFromIn moves the oldest "in" entries into the ghost-tracked
// eviction path once the queue exceeds its byte cap; callers drain
// SelectVictims against "in" first so this only records ghosts for
// entries actually pushed out by byte pressure, not by this bookkeeping
// step itself.
func (p *TwoQ) admitFromIn() {
	for p.inUsed > p.inCapBytes && len(p.in) > 0 {
		oldest := p.in[0]
		p.in = p.in[1:]
		p.inUsed -= oldest.SizeBytes
		delete(p.location, oldest.Fingerprint)
		p.rememberGhost(oldest.Fingerprint)
	}
}

func (p *TwoQ) rememberGhost(fp uint64) {
	if _, ok := p.ghostOut[fp]; ok {
		return
	}
	if len(p.ghostOrder) >= p.ghostCap && p.ghostCap > 0 {
		oldest := p.ghostOrder[0]
		p.ghostOrder = p.ghostOrder[1:]
		delete(p.ghostOut, oldest)
	}
	p.ghostOut[fp] = struct{}{}
	p.ghostOrder = append(p.ghostOrder, fp)
}

func (p *TwoQ) OnHit(e policy.EntryView) {
	if p.location[e.Fingerprint] {
		p.main.OnHit(e)
		return
	}
	p.removeFromIn(e.Fingerprint)
	p.main.OnInsert(e)
	p.location[e.Fingerprint] = true
}

func (p *TwoQ) removeFromIn(fp uint64) {
	for i, e := range p.in {
		if e.Fingerprint == fp {
			p.inUsed -= e.SizeBytes
			p.in = append(p.in[:i], p.in[i+1:]...)
			return
		}
	}
}

func (p *TwoQ) OnRemove(e policy.EntryView) {
	if inMain, tracked := p.location[e.Fingerprint]; tracked {
		if inMain {
			p.main.OnRemove(e)
		} else {
			p.removeFromIn(e.Fingerprint)
		}
		delete(p.location, e.Fingerprint)
	}
}

func (p *TwoQ) SelectVictims(needBytes int64) []policy.EntryView {
	var victims []policy.EntryView
	var reclaimed int64
	for _, e := range p.in {
		if reclaimed >= needBytes {
			break
		}
		victims = append(victims, e)
		reclaimed += e.SizeBytes
	}
	if reclaimed < needBytes {
		victims = append(victims, p.main.SelectVictims(needBytes-reclaimed)...)
	}
	return victims
}

func (p *TwoQ) OnEvict(e policy.EntryView) {
	if inMain, tracked := p.location[e.Fingerprint]; tracked && !inMain {
		p.rememberGhost(e.Fingerprint)
	}
	p.OnRemove(e)
}
