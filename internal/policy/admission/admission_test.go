package admission

import (
	"testing"

	"github.com/hybridkv/hotcache/internal/policy"
	"github.com/hybridkv/hotcache/internal/sketch"
)

type fakeHotness struct{ estimates map[uint64]uint32 }

func (f fakeHotness) OnHit(uint64)             {}
func (f fakeHotness) OnMiss(uint64)            {}
func (f fakeHotness) OnTick()                  {}
func (f fakeHotness) Estimate(fp uint64) uint32 { return f.estimates[fp] }

func TestThresholdAdmitsOnlyAboveMinEstimate(t *testing.T) {
	hot := fakeHotness{estimates: map[uint64]uint32{1: 10, 2: 1}}
	a := NewThreshold(hot, 5)
	if !a.OnAdmit(policy.EntryView{Fingerprint: 1}, nil) {
		t.Fatal("expected hot key to be admitted")
	}
	if a.OnAdmit(policy.EntryView{Fingerprint: 2}, nil) {
		t.Fatal("expected cold key to be refused")
	}
}

func TestTinyLFUComparesAgainstVictim(t *testing.T) {
	sk := sketch.New(1024, 1_000_000)
	for i := 0; i < 10; i++ {
		sk.Increment(1)
	}
	sk.Increment(2)
	a := NewTinyLFU(sk)

	candidate := policy.EntryView{Fingerprint: 1}
	victim := policy.EntryView{Fingerprint: 2}
	if !a.OnAdmit(candidate, &victim) {
		t.Fatal("expected hotter candidate to displace colder victim")
	}
	if a.OnAdmit(victim, &candidate) {
		t.Fatal("expected colder candidate to lose against hotter victim")
	}
}

func TestSizeAwareRefusesOversized(t *testing.T) {
	alwaysAdmit := admissionFunc(func(policy.EntryView, *policy.EntryView) bool { return true })
	a := NewSizeAware(1024, alwaysAdmit)
	if a.OnAdmit(policy.EntryView{SizeBytes: 2048}, nil) {
		t.Fatal("expected oversized candidate to be refused")
	}
	if !a.OnAdmit(policy.EntryView{SizeBytes: 512}, nil) {
		t.Fatal("expected undersized candidate to fall through to inner policy")
	}
}

type admissionFunc func(candidate policy.EntryView, victim *policy.EntryView) bool

func (f admissionFunc) OnAdmit(c policy.EntryView, v *policy.EntryView) bool { return f(c, v) }
