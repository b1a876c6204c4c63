package arena

import (
	"testing"

	"github.com/hybridkv/hotcache/internal/epoch"
)

type fakeGate struct{ refuse bool }

func (g *fakeGate) Reserve(tenant string, n int64) bool { return !g.refuse }
func (g *fakeGate) Release(tenant string, n int64)      {}

// countingGate records reserved/released bytes so tests can observe when
// Release actually fires relative to epoch reclamation.
type countingGate struct {
	reserved int64
	released int64
}

func (g *countingGate) Reserve(tenant string, n int64) bool {
	g.reserved += n
	return true
}
func (g *countingGate) Release(tenant string, n int64) { g.released += n }

func TestAllocateAndWith(t *testing.T) {
	a := New(&fakeGate{}, epoch.New(), nil)
	h, size, err := a.Allocate("t1", []byte("hello"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if size != 64 {
		t.Fatalf("expected smallest class 64, got %d", size)
	}
	if got := string(a.With(h)); got != "hello" {
		t.Fatalf("With() = %q, want hello", got)
	}
}

func TestAllocateTooLarge(t *testing.T) {
	a := New(&fakeGate{}, epoch.New(), []int64{64})
	_, _, err := a.Allocate("t1", make([]byte, 1000))
	if err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestAllocateOOM(t *testing.T) {
	a := New(&fakeGate{refuse: true}, epoch.New(), nil)
	_, _, err := a.Allocate("t1", []byte("x"))
	if err != ErrOOM {
		t.Fatalf("expected ErrOOM, got %v", err)
	}
}

func TestRetireRecyclesCellAfterGrace(t *testing.T) {
	recl := epoch.New()
	a := New(&fakeGate{}, recl, nil)

	g := recl.Enter()
	h1, _, _ := a.Allocate("t1", []byte("a"))
	a.Retire("t1", h1)

	for i := 0; i < 4; i++ {
		recl.Tick()
	}
	g.Exit()
	for i := 0; i < 4; i++ {
		recl.Tick()
	}

	h2, _, err := a.Allocate("t1", []byte("b"))
	if err != nil {
		t.Fatalf("allocate after retire: %v", err)
	}
	if h2 != h1 {
		t.Fatalf("allocate after grace = %+v, want recycled cell %+v", h2, h1)
	}
	if got := string(a.With(h2)); got != "b" {
		t.Fatalf("With() = %q, want b", got)
	}
}

// TestRetireReleasesGateBytesSynchronously guards against accounting that
// only frees governor bytes once the epoch reclaimer gets around to
// recycling the cell: an admit-under-pressure retry allocates again right
// after evicting, with no intervening Tick, and must see the freed bytes
// immediately.
func TestRetireReleasesGateBytesSynchronously(t *testing.T) {
	recl := epoch.New()
	g := &countingGate{}
	a := New(g, recl, nil)

	h, size, err := a.Allocate("t1", []byte("a"))
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	a.Retire("t1", h)

	if g.released != size {
		t.Fatalf("Release called with %d bytes right after Retire, want %d with no Tick yet", g.released, size)
	}
}
