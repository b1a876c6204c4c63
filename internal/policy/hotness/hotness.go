// Package hotness implements the pluggable hotness estimators: a
// Count-Min Sketch wrapper, reservoir sampling, and tiered
// (multi-window) counters.
package hotness

import (
	"math/rand"
	"sync"

	"github.com/hybridkv/hotcache/internal/sketch"
)

// CMS adapts internal/sketch.Sketch to policy.Hotness.
type CMS struct {
	sk *sketch.Sketch
}

// NewCMS constructs a CMS estimator backed by sk (or a new default
// Sketch if sk is nil).
func NewCMS(sk *sketch.Sketch) *CMS {
	if sk == nil {
		sk = sketch.New(sketch.DefaultWidth, sketch.DefaultHalvePeriod)
	}
	return &CMS{sk: sk}
}

func (c *CMS) OnHit(fp uint64)  { c.sk.Increment(fp) }
func (c *CMS) OnMiss(fp uint64) { c.sk.Increment(fp) }
func (c *CMS) OnTick()          {}
func (c *CMS) Estimate(fp uint64) uint32 { return c.sk.Estimate(fp) }

// Reservoir estimates hotness via reservoir sampling: a fixed-size
// sample of recently observed fingerprints is maintained with uniform
// probability, and Estimate reports how many sample slots a key
// currently occupies. Cheaper to reason about than a sketch when the
// key space is small and an operator wants an exact recent-sample count
// rather than a probabilistic estimate.
type Reservoir struct {
	mu      sync.Mutex
	sample  []uint64
	seen    uint64
	rng     *rand.Rand
	maxSize int
}

// NewReservoir constructs a Reservoir estimator holding up to size
// samples.
func NewReservoir(size int, seed int64) *Reservoir {
	return &Reservoir{
		sample:  make([]uint64, 0, size),
		maxSize: size,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (r *Reservoir) OnHit(fp uint64) { r.observe(fp) }

func (r *Reservoir) OnMiss(fp uint64) { r.observe(fp) }

func (r *Reservoir) observe(fp uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen++
	if len(r.sample) < r.maxSize {
		r.sample = append(r.sample, fp)
		return
	}
	j := r.rng.Int63n(int64(r.seen))
	if j < int64(r.maxSize) {
		r.sample[j] = fp
	}
}

func (r *Reservoir) OnTick() {}

// Estimate returns the number of sample slots currently occupied by fp.
func (r *Reservoir) Estimate(fp uint64) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint32
	for _, s := range r.sample {
		if s == fp {
			n++
		}
	}
	return n
}

// Tiered tracks per-fingerprint counts across a short ring of windows,
// decaying older windows out on OnTick so hotness reflects recent
// traffic rather than all-time totals.
type Tiered struct {
	mu      sync.Mutex
	windows []map[uint64]uint32
	cursor  int
}

// NewTiered constructs a Tiered estimator with windowCount windows.
func NewTiered(windowCount int) *Tiered {
	if windowCount < 1 {
		windowCount = 1
	}
	t := &Tiered{windows: make([]map[uint64]uint32, windowCount)}
	for i := range t.windows {
		t.windows[i] = make(map[uint64]uint32)
	}
	return t
}

func (t *Tiered) OnHit(fp uint64) { t.observe(fp) }

func (t *Tiered) OnMiss(fp uint64) { t.observe(fp) }

func (t *Tiered) observe(fp uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows[t.cursor][fp]++
}

// OnTick rotates to the next window, clearing it so it can accumulate
// fresh counts while the others continue to contribute to Estimate.
func (t *Tiered) OnTick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = (t.cursor + 1) % len(t.windows)
	t.windows[t.cursor] = make(map[uint64]uint32)
}

// Estimate sums fp's count across every live window.
func (t *Tiered) Estimate(fp uint64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total uint32
	for _, w := range t.windows {
		total += w[fp]
	}
	return total
}
