package sketch

import "testing"

func TestEstimateTracksFrequency(t *testing.T) {
	s := New(1024, 1_000_000)
	for i := 0; i < 10; i++ {
		s.Increment(42)
	}
	s.Increment(7)

	if got := s.Estimate(42); got < 10 {
		t.Fatalf("Estimate(42) = %d, want >= 10", got)
	}
	if got := s.Estimate(7); got < 1 {
		t.Fatalf("Estimate(7) = %d, want >= 1", got)
	}
	if got := s.Estimate(99999); got > s.Estimate(42) {
		t.Fatalf("unseen fingerprint estimate %d exceeds hot fingerprint estimate", got)
	}
}

func TestHalvingAgesCounters(t *testing.T) {
	s := New(64, 4)
	s.Increment(1)
	s.Increment(1)
	s.Increment(1)
	before := s.Estimate(1)
	s.Increment(1) // 4th event triggers halve()
	after := s.Estimate(1)
	if after >= before {
		t.Fatalf("expected halving to reduce estimate: before=%d after=%d", before, after)
	}
}

func TestReset(t *testing.T) {
	s := New(64, 1_000_000)
	s.Increment(5)
	s.Reset()
	if got := s.Estimate(5); got != 0 {
		t.Fatalf("Estimate after Reset = %d, want 0", got)
	}
}

func TestWidthRoundedToPowerOfTwo(t *testing.T) {
	s := New(100, 1_000_000)
	if s.width != 128 {
		t.Fatalf("width = %d, want 128", s.width)
	}
	if s.mask != 127 {
		t.Fatalf("mask = %d, want 127", s.mask)
	}
}
