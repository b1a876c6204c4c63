// Package sketch implements a Count-Min Sketch: a fixed-memory approximate
// frequency estimator shared by the hot-key tracker and the TinyLFU-style
// admission and hotness policies.
//
// Four hash rows over a power-of-two width, periodic halving every W
// events to age observations, the same aging behaviour
// github.com/dgraph-io/ristretto/v2's internal count-min sketch uses.
// Row hashes are derived with xxhash rather than a second general-purpose
// hash to keep estimation cheap on the read-sampling path.
package sketch

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const depth = 4

// DefaultWidth is used when callers do not specify one: enough buckets
// per row to keep collision-driven overestimation low for a few hundred
// thousand distinct keys.
const DefaultWidth = 1 << 14

// DefaultHalvePeriod ages the sketch every 100k observed events.
const DefaultHalvePeriod = 100_000

// Sketch is a concurrency-safe Count-Min Sketch over uint64 fingerprints.
type Sketch struct {
	width       uint32
	mask        uint32
	rows        [depth][]atomic.Uint32
	events      atomic.Uint64
	halvePeriod uint64
}

// New constructs a Sketch. width is rounded up to the next power of two;
// halvePeriod of 0 selects DefaultHalvePeriod.
func New(width uint32, halvePeriod uint64) *Sketch {
	if width == 0 {
		width = DefaultWidth
	}
	w := uint32(1)
	for w < width {
		w <<= 1
	}
	if halvePeriod == 0 {
		halvePeriod = DefaultHalvePeriod
	}
	s := &Sketch{width: w, mask: w - 1, halvePeriod: halvePeriod}
	for i := range s.rows {
		s.rows[i] = make([]atomic.Uint32, w)
	}
	return s
}

func (s *Sketch) indexFor(row int, fp uint64) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], fp)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(row)*0x9E3779B97F4A7C15+1)
	return uint32(xxhash.Sum64(buf[:])) & s.mask
}

// Increment records one observation of fp. Every DefaultHalvePeriod
// events (or the configured halvePeriod), all counters are halved to age
// out stale frequency estimates.
func (s *Sketch) Increment(fp uint64) {
	for row := 0; row < depth; row++ {
		s.rows[row][s.indexFor(row, fp)].Add(1)
	}
	if s.events.Add(1)%s.halvePeriod == 0 {
		s.halve()
	}
}

func (s *Sketch) halve() {
	for row := 0; row < depth; row++ {
		r := s.rows[row]
		for i := range r {
			v := r[i].Load()
			r[i].Store(v / 2)
		}
	}
}

// Estimate returns the minimum of the depth row counters for fp, the
// standard Count-Min Sketch frequency estimate (never an underestimate,
// sometimes an overestimate from hash collisions).
func (s *Sketch) Estimate(fp uint64) uint32 {
	min := uint32(0)
	for row := 0; row < depth; row++ {
		v := s.rows[row][s.indexFor(row, fp)].Load()
		if row == 0 || v < min {
			min = v
		}
	}
	return min
}

// Halve ages every counter by half without resetting the event counter,
// used by callers (such as the hot-key tracker) that want to age the
// sketch on their own schedule instead of after a fixed event count.
func (s *Sketch) Halve() {
	s.halve()
}

// Reset zeroes every counter, used when a tenant's hotness estimator is
// reconfigured.
func (s *Sketch) Reset() {
	for row := 0; row < depth; row++ {
		for i := range s.rows[row] {
			s.rows[row][i].Store(0)
		}
	}
	s.events.Store(0)
}
