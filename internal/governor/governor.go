// Package governor implements the memory governor (component C3): global
// and per-tenant byte budgets, soft/hard watermarks, and the accounting
// fault fallback described in §4.3 and §7.
//
// It implements arena.Gate directly so the object arena can ask it for
// admission without importing pkg/hotcache.
package governor

import (
	"errors"
	"sync"
)

// ErrUnknownTenant is returned when an operation references a tenant that
// was never registered via RegisterTenant.
var ErrUnknownTenant = errors.New("governor: unknown tenant")

// ErrMinGuaranteeExceedsBudget is returned by RegisterTenant when the sum
// of all tenants' min guarantees would exceed the total byte budget,
// violating the §3 Tenant invariant.
var ErrMinGuaranteeExceedsBudget = errors.New("governor: sum of tenant min guarantees exceeds total budget")

// Watermark levels, mirroring the PRESSURE event's "level 0..2" framing in
// §6 (0 here means "below soft", reserved for internal use; 1 == soft,
// 2 == hard).
const (
	LevelNone = 0
	LevelSoft = 1
	LevelHard = 2
)

// TenantConfig is the subset of §3 Tenant knobs the governor enforces.
// Policy selection (eviction/admission/consistency) lives in the policy
// plane; the governor only ever reasons about bytes.
type TenantConfig struct {
	HardCapBytes     int64
	MinGuaranteeBytes int64
	Weight           float64
	Priority         int
}

type tenantState struct {
	cfg  TenantConfig
	used int64
}

// Governor tracks bytes in use globally and per tenant and decides
// admission. Reserve/Release implement internal/arena.Gate.
type Governor struct {
	mu            sync.Mutex
	totalBytes    int64
	softWatermark float64
	hardWatermark float64
	globalUsed    int64
	tenants       map[string]*tenantState
	faulted       bool
}

// New constructs a Governor with the given total byte budget and
// soft/hard watermark fractions (defaults from §6: 0.80 / 1.00).
func New(totalBytes int64, softWatermark, hardWatermark float64) *Governor {
	if softWatermark <= 0 {
		softWatermark = 0.80
	}
	if hardWatermark <= 0 {
		hardWatermark = 1.00
	}
	return &Governor{
		totalBytes:    totalBytes,
		softWatermark: softWatermark,
		hardWatermark: hardWatermark,
		tenants:       make(map[string]*tenantState),
	}
}

// RegisterTenant adds or replaces a tenant's budget configuration. It
// rejects configurations that would push the sum of min guarantees past
// the total budget (§3 Tenant invariant).
func (g *Governor) RegisterTenant(id string, cfg TenantConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	sum := cfg.MinGuaranteeBytes
	for other, ts := range g.tenants {
		if other == id {
			continue
		}
		sum += ts.cfg.MinGuaranteeBytes
	}
	if sum > g.totalBytes {
		return ErrMinGuaranteeExceedsBudget
	}

	ts, ok := g.tenants[id]
	if !ok {
		ts = &tenantState{}
		g.tenants[id] = ts
	}
	ts.cfg = cfg
	return nil
}

// Reserve grants n bytes to tenant if doing so would not exceed either the
// tenant's hard cap or the global hard watermark. It is the sole
// admission gate consulted by internal/arena before creating or reusing a
// cell.
func (g *Governor) Reserve(tenant string, n int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.faulted {
		return false
	}
	ts, ok := g.tenants[tenant]
	if !ok {
		return false
	}
	if ts.used+n > ts.cfg.HardCapBytes {
		return false
	}
	if float64(g.globalUsed+n) > g.hardWatermark*float64(g.totalBytes) {
		return false
	}
	ts.used += n
	g.globalUsed += n
	return true
}

// Release returns n bytes to tenant's and the global pool. Released bytes
// that would take a tenant's usage below zero indicate an accounting
// drift and trip the fault fallback (§7 ACCOUNTING_FAULT): genuine errors
// here are classifier bugs, not ordinary denials.
func (g *Governor) Release(tenant string, n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, ok := g.tenants[tenant]
	if !ok {
		g.faulted = true
		return
	}
	ts.used -= n
	g.globalUsed -= n
	if ts.used < 0 || g.globalUsed < 0 {
		g.faulted = true
	}
}

// Watermark reports the current global occupancy level.
func (g *Governor) Watermark() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watermarkLocked()
}

func (g *Governor) watermarkLocked() int {
	ratio := float64(g.globalUsed) / float64(g.totalBytes)
	switch {
	case ratio >= g.hardWatermark:
		return LevelHard
	case ratio >= g.softWatermark:
		return LevelSoft
	default:
		return LevelNone
	}
}

// Faulted reports whether the governor has tripped its accounting fault
// fallback. While faulted, Reserve always refuses; reads are unaffected
// because they never call into the governor.
func (g *Governor) Faulted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faulted
}

// Reconcile clears a tripped accounting fault after an operator (or a
// background self-check) has re-derived ground-truth usage, typically by
// resumming the arena's live cells. It is deliberately manual: the
// governor never clears a fault on its own.
func (g *Governor) Reconcile(tenant string, correctedUsed int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ts, ok := g.tenants[tenant]; ok {
		ts.used = correctedUsed
	}
	g.faulted = false
}

// TenantStats is a point-in-time snapshot of one tenant's byte usage.
type TenantStats struct {
	Tenant            string
	UsedBytes         int64
	HardCapBytes      int64
	MinGuaranteeBytes int64
	Weight            float64
	Priority          int
}

// Stats returns tenant's current usage snapshot.
func (g *Governor) Stats(tenant string) (TenantStats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.tenants[tenant]
	if !ok {
		return TenantStats{}, ErrUnknownTenant
	}
	return TenantStats{
		Tenant:            tenant,
		UsedBytes:         ts.used,
		HardCapBytes:      ts.cfg.HardCapBytes,
		MinGuaranteeBytes: ts.cfg.MinGuaranteeBytes,
		Weight:            ts.cfg.Weight,
		Priority:          ts.cfg.Priority,
	}, nil
}

// AllTenantStats returns a point-in-time snapshot of every registered
// tenant's usage, for the tenant-budget policy (internal/policy/tenant) to
// rank when the cache is under global pressure and must decide which
// tenant's entries to evict from first.
func (g *Governor) AllTenantStats() []TenantStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]TenantStats, 0, len(g.tenants))
	for name, ts := range g.tenants {
		out = append(out, TenantStats{
			Tenant:            name,
			UsedBytes:         ts.used,
			HardCapBytes:      ts.cfg.HardCapBytes,
			MinGuaranteeBytes: ts.cfg.MinGuaranteeBytes,
			Weight:            ts.cfg.Weight,
			Priority:          ts.cfg.Priority,
		})
	}
	return out
}

// GlobalUsedBytes returns total bytes in use across all tenants.
func (g *Governor) GlobalUsedBytes() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.globalUsed
}

// Headroom reports how many more bytes tenant could admit before hitting
// its hard cap, used by the promotion manager to filter candidates (§4.10
// step 2) without needing a failing Reserve/Release round-trip.
func (g *Governor) Headroom(tenant string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.tenants[tenant]
	if !ok {
		return 0, ErrUnknownTenant
	}
	room := ts.cfg.HardCapBytes - ts.used
	if room < 0 {
		room = 0
	}
	return room, nil
}
