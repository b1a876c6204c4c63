package tenant

import "testing"

func TestProportionalSchedulerExcludesUnderMinGuarantee(t *testing.T) {
	s := NewProportionalScheduler()
	usages := []Usage{
		{Tenant: "a", UsedBytes: 100, MinGuaranteeBytes: 200, Weight: 1},
		{Tenant: "b", UsedBytes: 900, MinGuaranteeBytes: 100, Weight: 1},
	}
	rank := s.Rank(usages)
	if len(rank) != 1 || rank[0] != "b" {
		t.Fatalf("rank = %v, want [b]", rank)
	}
}

func TestProportionalSchedulerFavorsLowerWeight(t *testing.T) {
	s := NewProportionalScheduler()
	usages := []Usage{
		{Tenant: "heavy", UsedBytes: 1000, Weight: 4},
		{Tenant: "light", UsedBytes: 1000, Weight: 1},
	}
	rank := s.Rank(usages)
	if rank[0] != "light" {
		t.Fatalf("expected lighter-weight tenant to yield first, got %v", rank)
	}
}

func TestPrioritySchedulerOrdersByPriorityThenUsage(t *testing.T) {
	s := NewPriorityScheduler()
	usages := []Usage{
		{Tenant: "low-pri-small", UsedBytes: 100, Priority: 1},
		{Tenant: "low-pri-big", UsedBytes: 900, Priority: 1},
		{Tenant: "high-pri", UsedBytes: 50, Priority: 5},
	}
	rank := s.Rank(usages)
	want := []string{"low-pri-big", "low-pri-small", "high-pri"}
	for i, w := range want {
		if rank[i] != w {
			t.Fatalf("rank = %v, want %v", rank, want)
		}
	}
}
