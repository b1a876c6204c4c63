// Package tracker implements the hot-key tracker (component C9, §4.9):
// every read the authoritative store serves is sampled into a shared
// Count-Min Sketch, and on a periodic window (default 5s) the tracker
// extracts candidates whose estimated rate, read ratio, and value size
// clear the promotion thresholds.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/hybridkv/hotcache/internal/sketch"
)

// DefaultWindow is the candidate-extraction period from §4.9.
const DefaultWindow = 5 * time.Second

// Thresholds gates which sampled keys are reported as promotion
// candidates.
type Thresholds struct {
	MinRatePerSecond float64
	MinReadRatio     float64
	MaxValueBytes    int64
}

// DefaultThresholds matches §4.9: rate >= 100 ops/s, read ratio >= 90%,
// below the value-size ceiling.
func DefaultThresholds(maxValueBytes int64) Thresholds {
	return Thresholds{MinRatePerSecond: 100, MinReadRatio: 0.90, MaxValueBytes: maxValueBytes}
}

type keyStats struct {
	tenant    string
	key       []byte
	reads     uint64
	writes    uint64
	lastBytes int64
}

// Candidate is one key the tracker believes is worth promoting.
type Candidate struct {
	Tenant        string
	Key           []byte
	Fingerprint   uint64
	EstimatedRate float64
	ReadRatio     float64
}

// Tracker accumulates read/write samples and periodically extracts
// candidates. Safe for concurrent use from many reader goroutines.
type Tracker struct {
	mu         sync.Mutex
	sk         *sketch.Sketch
	stats      map[uint64]*keyStats
	thresholds Thresholds
	lastTick   time.Time
}

// New constructs a Tracker. sk may be nil to use a fresh default Sketch.
func New(sk *sketch.Sketch, thresholds Thresholds) *Tracker {
	if sk == nil {
		sk = sketch.New(sketch.DefaultWidth, sketch.DefaultHalvePeriod)
	}
	return &Tracker{sk: sk, stats: make(map[uint64]*keyStats), thresholds: thresholds, lastTick: time.Now()}
}

func (t *Tracker) statsFor(fp uint64, tenant string, key []byte) *keyStats {
	s, ok := t.stats[fp]
	if !ok {
		s = &keyStats{tenant: tenant, key: append([]byte(nil), key...)}
		t.stats[fp] = s
	}
	return s
}

// RecordRead samples one store read of (tenant, fp, key) returning a
// value of size valueBytes.
func (t *Tracker) RecordRead(tenant string, fp uint64, key []byte, valueBytes int64) {
	t.sk.Increment(fp)
	t.mu.Lock()
	s := t.statsFor(fp, tenant, key)
	s.reads++
	s.lastBytes = valueBytes
	t.mu.Unlock()
}

// RecordWrite samples one store write of (tenant, fp, key), used to
// compute the read ratio that keeps write-heavy keys from being
// promoted into a cache that cannot serve writes.
func (t *Tracker) RecordWrite(tenant string, fp uint64, key []byte) {
	t.mu.Lock()
	s := t.statsFor(fp, tenant, key)
	s.writes++
	t.mu.Unlock()
}

// Tick closes the current window as of now, returning candidates that
// cleared the configured thresholds, resetting per-key window counters,
// and aging the shared sketch by half.
func (t *Tracker) Tick(now time.Time) []Candidate {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := DefaultWindow
	if !t.lastTick.IsZero() {
		if d := now.Sub(t.lastTick); d > 0 {
			elapsed = d
		}
	}
	t.lastTick = now

	var candidates []Candidate
	for fp, s := range t.stats {
		total := s.reads + s.writes
		if total == 0 {
			continue
		}
		rate := float64(s.reads) / elapsed.Seconds()
		ratio := float64(s.reads) / float64(total)
		if rate >= t.thresholds.MinRatePerSecond &&
			ratio >= t.thresholds.MinReadRatio &&
			(t.thresholds.MaxValueBytes == 0 || s.lastBytes <= t.thresholds.MaxValueBytes) {
			candidates = append(candidates, Candidate{
				Tenant:        s.tenant,
				Key:           s.key,
				Fingerprint:   fp,
				EstimatedRate: rate,
				ReadRatio:     ratio,
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].EstimatedRate > candidates[j].EstimatedRate })

	t.stats = make(map[uint64]*keyStats)
	t.sk.Halve()
	return candidates
}

// Sketch exposes the shared frequency sketch so an admission or hotness
// policy can estimate the same keys the tracker samples.
func (t *Tracker) Sketch() *sketch.Sketch {
	return t.sk
}
