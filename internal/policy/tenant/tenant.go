// Package tenant implements the tenant budget-enforcement policies:
// proportional sharing by configured weight (respecting each
// tenant's min guarantee) and priority-based preemption, both consulted
// when the governor reports global pressure and an eviction must pick
// which tenant yields bytes first. internal/governor already enforces
// the hard per-tenant cap; this package only decides ordering among
// tenants that are all within their caps but the cache as a whole is
// over its soft or hard watermark.
package tenant

import "sort"

// Usage is one tenant's current accounting snapshot, mirroring
// governor.TenantStats without importing internal/governor (kept
// dependency-free so pkg/hotcache can feed it from any accounting
// source).
type Usage struct {
	Tenant            string
	UsedBytes         int64
	MinGuaranteeBytes int64
	Weight            float64
	Priority          int
}

// ProportionalScheduler orders tenants for eviction pressure by how far
// each is above its fair share, share being its weight's fraction of
// total weight across all tenants currently over their min guarantee.
// Tenants at or below their min guarantee are never selected.
type ProportionalScheduler struct{}

// NewProportionalScheduler constructs a ProportionalScheduler.
func NewProportionalScheduler() *ProportionalScheduler { return &ProportionalScheduler{} }

// Rank returns tenant ids ordered from "yield bytes first" to "yield
// last", excluding any tenant at or below its min guarantee.
func (s *ProportionalScheduler) Rank(usages []Usage) []string {
	var totalWeight float64
	for _, u := range usages {
		totalWeight += u.Weight
	}
	if totalWeight <= 0 {
		totalWeight = float64(len(usages))
	}

	type scored struct {
		tenant string
		excess float64
	}
	var candidates []scored
	for _, u := range usages {
		if u.UsedBytes <= u.MinGuaranteeBytes {
			continue
		}
		share := u.Weight
		if share <= 0 {
			share = 1
		}
		fairShare := share / totalWeight
		candidates = append(candidates, scored{
			tenant: u.Tenant,
			excess: float64(u.UsedBytes) * (1 - fairShare),
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].excess > candidates[j].excess })

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.tenant
	}
	return out
}

// PriorityScheduler orders tenants by ascending priority value (lower
// number preempted first), falling back to descending used bytes within
// the same priority so the largest offender inside a priority class
// yields first.
type PriorityScheduler struct{}

// NewPriorityScheduler constructs a PriorityScheduler.
func NewPriorityScheduler() *PriorityScheduler { return &PriorityScheduler{} }

// Rank returns tenant ids ordered from "yield bytes first" to "yield
// last", excluding any tenant at or below its min guarantee.
func (s *PriorityScheduler) Rank(usages []Usage) []string {
	candidates := make([]Usage, 0, len(usages))
	for _, u := range usages {
		if u.UsedBytes > u.MinGuaranteeBytes {
			candidates = append(candidates, u)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].UsedBytes > candidates[j].UsedBytes
	})
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Tenant
	}
	return out
}
