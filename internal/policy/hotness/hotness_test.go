package hotness

import "testing"

func TestCMSTracksRelativeFrequency(t *testing.T) {
	c := NewCMS(nil)
	for i := 0; i < 5; i++ {
		c.OnHit(1)
	}
	c.OnHit(2)
	if c.Estimate(1) <= c.Estimate(2) {
		t.Fatalf("expected fp 1 to be hotter: %d vs %d", c.Estimate(1), c.Estimate(2))
	}
}

func TestReservoirBoundsSampleSize(t *testing.T) {
	r := NewReservoir(4, 1)
	for i := uint64(0); i < 100; i++ {
		r.OnHit(i)
	}
	var total uint32
	for i := uint64(0); i < 100; i++ {
		total += r.Estimate(i)
	}
	if total != 4 {
		t.Fatalf("expected exactly 4 occupied sample slots, got %d", total)
	}
}

func TestTieredDecaysOldWindows(t *testing.T) {
	tr := NewTiered(2)
	tr.OnHit(1)
	tr.OnHit(1)
	if got := tr.Estimate(1); got != 2 {
		t.Fatalf("Estimate = %d, want 2", got)
	}
	tr.OnTick()
	tr.OnTick()
	if got := tr.Estimate(1); got != 0 {
		t.Fatalf("expected count to decay to 0 after cycling past both windows, got %d", got)
	}
}
