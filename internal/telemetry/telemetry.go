// Package telemetry implements the cache's counters and latency
// histogram: hits, misses, admissions, refusals, evictions by reason,
// bytes-in-use, entry count, per tenant and globally, plus a
// fixed-resolution read-path latency histogram.
//
// Counters are plain atomics so Stats() snapshots are cheap; the hot path
// takes only a read lock to look up a tenant's counters (a write lock the
// first time a tenant is seen). A *prometheus.Registry can optionally be
// attached so the same numbers are also scrapeable; when no registry is
// supplied the Prometheus mirror is skipped entirely and the hot path
// pays only for the atomic increments it would pay for anyway.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EvictReason enumerates why an entry left the cache.
type EvictReason int

const (
	EvictPressure EvictReason = iota
	EvictTTL
	EvictInvalidation
	EvictAdmin
)

func (r EvictReason) String() string {
	switch r {
	case EvictPressure:
		return "pressure"
	case EvictTTL:
		return "ttl"
	case EvictInvalidation:
		return "invalidation"
	case EvictAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// latencyBoundsNS are the fixed histogram bucket upper bounds, in
// nanoseconds: 1us, 10us, 100us, 1ms, 10ms, 100ms, +Inf.
var latencyBoundsNS = [...]int64{1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000}

type histogram struct {
	buckets [len(latencyBoundsNS) + 1]atomic.Uint64
	sum     atomic.Int64
	count   atomic.Uint64
}

func (h *histogram) observe(d time.Duration) {
	ns := d.Nanoseconds()
	h.sum.Add(ns)
	h.count.Add(1)
	for i, bound := range latencyBoundsNS {
		if ns <= bound {
			h.buckets[i].Add(1)
			return
		}
	}
	h.buckets[len(latencyBoundsNS)].Add(1)
}

// HistogramSnapshot is a point-in-time read of a latency histogram.
type HistogramSnapshot struct {
	BucketUpperBoundsNS []int64
	BucketCounts        []uint64
	Count               uint64
	SumNS               int64
}

func (h *histogram) snapshot() HistogramSnapshot {
	counts := make([]uint64, len(h.buckets))
	for i := range h.buckets {
		counts[i] = h.buckets[i].Load()
	}
	return HistogramSnapshot{
		BucketUpperBoundsNS: latencyBoundsNS[:],
		BucketCounts:        counts,
		Count:               h.count.Load(),
		SumNS:               h.sum.Load(),
	}
}

// Counters holds every monotone counter plus the gauges tracked for one
// scope (global or a single tenant).
type Counters struct {
	Hits, Misses       atomic.Uint64
	Admissions         atomic.Uint64
	Refusals           atomic.Uint64
	EvictedPressure    atomic.Uint64
	EvictedTTL         atomic.Uint64
	EvictedInvalidated atomic.Uint64
	EvictedAdmin       atomic.Uint64
	BytesInUse         atomic.Int64
	EntryCount         atomic.Int64
	readLatency        histogram
}

func (c *Counters) evictCounter(reason EvictReason) *atomic.Uint64 {
	switch reason {
	case EvictTTL:
		return &c.EvictedTTL
	case EvictInvalidation:
		return &c.EvictedInvalidated
	case EvictAdmin:
		return &c.EvictedAdmin
	default:
		return &c.EvictedPressure
	}
}

// Snapshot is the STATS response payload for one scope.
type Snapshot struct {
	Hits, Misses                                             uint64
	Admissions, Refusals                                     uint64
	EvictedPressure, EvictedTTL, EvictedInvalidated, EvictedAdmin uint64
	BytesInUse, EntryCount                                   int64
	ReadLatency                                              HistogramSnapshot
}

func (c *Counters) snapshot() Snapshot {
	return Snapshot{
		Hits:                c.Hits.Load(),
		Misses:              c.Misses.Load(),
		Admissions:          c.Admissions.Load(),
		Refusals:            c.Refusals.Load(),
		EvictedPressure:     c.EvictedPressure.Load(),
		EvictedTTL:          c.EvictedTTL.Load(),
		EvictedInvalidated:  c.EvictedInvalidated.Load(),
		EvictedAdmin:        c.EvictedAdmin.Load(),
		BytesInUse:          c.BytesInUse.Load(),
		EntryCount:          c.EntryCount.Load(),
		ReadLatency:         c.readLatency.snapshot(),
	}
}

// promMirror optionally re-exports counters through client_golang.
type promMirror struct {
	hits, misses, admissions, refusals *prometheus.CounterVec
	evictions                          *prometheus.CounterVec
	bytesInUse, entryCount             *prometheus.GaugeVec
	readLatency                        *prometheus.HistogramVec
}

func newPromMirror(reg *prometheus.Registry) *promMirror {
	label := []string{"tenant"}
	m := &promMirror{
		hits:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hotcache", Name: "hits_total", Help: "Cache hits."}, label),
		misses:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hotcache", Name: "misses_total", Help: "Cache misses."}, label),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hotcache", Name: "admissions_total", Help: "Successful admissions."}, label),
		refusals:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hotcache", Name: "refusals_total", Help: "Refused admissions."}, label),
		evictions:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "hotcache", Name: "evictions_total", Help: "Evictions by reason."}, []string{"tenant", "reason"}),
		bytesInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "hotcache", Name: "bytes_in_use", Help: "Live bytes in the arena."}, label),
		entryCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "hotcache", Name: "entry_count", Help: "Live entry count."}, label),
		readLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hotcache",
			Name:      "read_latency_seconds",
			Help:      "READ command service time.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 10, 7),
		}, label),
	}
	reg.MustRegister(m.hits, m.misses, m.admissions, m.refusals, m.evictions, m.bytesInUse, m.entryCount, m.readLatency)
	return m
}

// Telemetry is the registry of global and per-tenant Counters.
type Telemetry struct {
	mu      sync.RWMutex
	global  Counters
	tenants map[string]*Counters
	prom    *promMirror
}

// New constructs a Telemetry registry. reg may be nil, in which case no
// Prometheus mirroring happens and only in-process counters are kept.
func New(reg *prometheus.Registry) *Telemetry {
	t := &Telemetry{tenants: make(map[string]*Counters)}
	if reg != nil {
		t.prom = newPromMirror(reg)
	}
	return t
}

func (t *Telemetry) counters(tenant string) *Counters {
	t.mu.RLock()
	c, ok := t.tenants[tenant]
	t.mu.RUnlock()
	if ok {
		return c
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.tenants[tenant]; ok {
		return c
	}
	c = &Counters{}
	t.tenants[tenant] = c
	return c
}

// IncHit records a successful read.
func (t *Telemetry) IncHit(tenant string) {
	t.counters(tenant).Hits.Add(1)
	t.global.Hits.Add(1)
	if t.prom != nil {
		t.prom.hits.WithLabelValues(tenant).Inc()
	}
}

// IncMiss records a failed read.
func (t *Telemetry) IncMiss(tenant string) {
	t.counters(tenant).Misses.Add(1)
	t.global.Misses.Add(1)
	if t.prom != nil {
		t.prom.misses.WithLabelValues(tenant).Inc()
	}
}

// IncAdmission records a successful BATCH_PROMOTE item.
func (t *Telemetry) IncAdmission(tenant string) {
	t.counters(tenant).Admissions.Add(1)
	t.global.Admissions.Add(1)
	if t.prom != nil {
		t.prom.admissions.WithLabelValues(tenant).Inc()
	}
}

// IncRefusal records a refused admission (policy REJECT or governor PRESSURE).
func (t *Telemetry) IncRefusal(tenant string) {
	t.counters(tenant).Refusals.Add(1)
	t.global.Refusals.Add(1)
	if t.prom != nil {
		t.prom.refusals.WithLabelValues(tenant).Inc()
	}
}

// IncEviction records an eviction of one entry for the given reason.
func (t *Telemetry) IncEviction(tenant string, reason EvictReason) {
	t.counters(tenant).evictCounter(reason).Add(1)
	t.global.evictCounter(reason).Add(1)
	if t.prom != nil {
		t.prom.evictions.WithLabelValues(tenant, reason.String()).Inc()
	}
}

// SetBytesInUse updates the gauge tracking tenant's live arena bytes.
func (t *Telemetry) SetBytesInUse(tenant string, n int64) {
	old := t.counters(tenant).BytesInUse.Swap(n)
	t.global.BytesInUse.Add(n - old)
	if t.prom != nil {
		t.prom.bytesInUse.WithLabelValues(tenant).Set(float64(n))
	}
}

// SetEntryCount updates the gauge tracking tenant's live entry count.
func (t *Telemetry) SetEntryCount(tenant string, n int64) {
	old := t.counters(tenant).EntryCount.Swap(n)
	t.global.EntryCount.Add(n - old)
	if t.prom != nil {
		t.prom.entryCount.WithLabelValues(tenant).Set(float64(n))
	}
}

// ObserveReadLatency records one READ command's service time.
func (t *Telemetry) ObserveReadLatency(tenant string, d time.Duration) {
	t.counters(tenant).readLatency.observe(d)
	t.global.readLatency.observe(d)
	if t.prom != nil {
		t.prom.readLatency.WithLabelValues(tenant).Observe(d.Seconds())
	}
}

// Snapshot returns tenant's counters, or the global aggregate when tenant
// is empty.
func (t *Telemetry) Snapshot(tenant string) Snapshot {
	if tenant == "" {
		return t.global.snapshot()
	}
	return t.counters(tenant).snapshot()
}
