// Package arena implements the slab-backed object store for cached entries
// (component C1 of the hot-key cache): fixed geometric size classes, a
// free list per class, and stable integer handles. Handles stay valid for
// the lifetime of the cell; recycling a retired cell is deferred to
// internal/epoch so wait-free readers are never racing a write into
// memory they are still viewing.
//
// © 2025 HybridKV authors. MIT License.
package arena

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hybridkv/hotcache/internal/epoch"
)

// ErrTooLarge is returned when a value (plus its length prefix) exceeds the
// largest configured size class.
var ErrTooLarge = errors.New("arena: value exceeds largest size class")

// ErrOOM is returned when the Gate refuses to reserve bytes for a new cell.
var ErrOOM = errors.New("arena: allocation refused by memory governor")

const lenPrefix = 4 // uint32 length header stored at the start of every cell

// Gate is the accounting collaborator (implemented by internal/governor)
// that decides whether the arena may grow. The arena calls Reserve before
// creating a brand-new cell and before handing out a recycled one, and
// calls Release as soon as a cell is retired -- not when it is actually
// returned to its free list, which waits on reader quiescence. Accounting
// therefore mirrors "sum of occupied cell sizes" as required by the data
// model's invariant #2 without forcing an evict-then-admit retry to wait
// on in-flight readers.
type Gate interface {
	Reserve(tenant string, n int64) bool
	Release(tenant string, n int64)
}

// Handle is a stable, opaque reference to a cell. The zero Handle refers to
// the first cell of class 0; the invalid handle is NilHandle, which uses an
// out-of-range class.
type Handle struct {
	class uint16
	index uint32
}

// NilHandle is the distinguished invalid handle.
var NilHandle = Handle{class: 0xFFFF}

// Valid reports whether h refers to a real cell.
func (h Handle) Valid() bool { return h.class != 0xFFFF }

type class struct {
	mu       sync.Mutex // guards growth of cells and the free list
	cellSize int64
	cells    atomic.Pointer[[][]byte] // swapped (never mutated in place) on growth
	free     []uint32
}

// Arena owns every size class and the shared reclamation epoch.
type Arena struct {
	gate    Gate
	recl    *epoch.Reclaimer
	classes []*class
}

// DefaultClassSizes returns the geometric size classes used when none are
// supplied: powers of two from 64 B up to 4 KiB, comfortably covering the
// default 256 B key ceiling plus 1 KiB value ceiling plus header overhead.
func DefaultClassSizes() []int64 {
	return []int64{64, 128, 256, 512, 1024, 2048, 4096}
}

// New constructs an Arena backed by gate for admission accounting and recl
// for deferred reclamation. sizes must be strictly increasing and are
// typically arena.DefaultClassSizes().
func New(gate Gate, recl *epoch.Reclaimer, sizes []int64) *Arena {
	if len(sizes) == 0 {
		sizes = DefaultClassSizes()
	}
	a := &Arena{gate: gate, recl: recl, classes: make([]*class, len(sizes))}
	for i, s := range sizes {
		a.classes[i] = &class{cellSize: s}
	}
	return a
}

// classFor returns the index of the smallest class that can hold need
// bytes (payload + length prefix), or -1 if none fits.
func (a *Arena) classFor(need int64) int {
	for i, c := range a.classes {
		if c.cellSize >= need {
			return i
		}
	}
	return -1
}

// Allocate copies data into a freshly chosen cell and returns a handle to
// it. The cell is sized to the smallest class that fits len(data)+4 bytes
// of length header. tenant is forwarded to the Gate for per-tenant byte
// accounting.
func (a *Arena) Allocate(tenant string, data []byte) (Handle, int64, error) {
	need := int64(len(data) + lenPrefix)
	ci := a.classFor(need)
	if ci < 0 {
		return NilHandle, 0, ErrTooLarge
	}
	c := a.classes[ci]
	cellSize := c.cellSize

	if !a.gate.Reserve(tenant, cellSize) {
		return NilHandle, 0, ErrOOM
	}

	c.mu.Lock()
	var idx uint32
	var cell []byte
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
		cell = (*c.cells.Load())[idx]
	} else {
		cur := c.cells.Load()
		var old [][]byte
		if cur != nil {
			old = *cur
		}
		idx = uint32(len(old))
		cell = make([]byte, cellSize)
		grown := append(append([][]byte{}, old...), cell)
		c.cells.Store(&grown)
	}
	c.mu.Unlock()

	binary.LittleEndian.PutUint32(cell[:lenPrefix], uint32(len(data)))
	copy(cell[lenPrefix:], data)

	return Handle{class: uint16(ci), index: idx}, cellSize, nil
}

// With returns a read-only view of the bytes stored at h. Valid only while
// the caller holds an open epoch.Guard obtained before the handle could
// have been retired.
func (a *Arena) With(h Handle) []byte {
	if !h.Valid() {
		return nil
	}
	cells := a.classes[h.class].cells.Load()
	cell := (*cells)[h.index]
	n := binary.LittleEndian.Uint32(cell[:lenPrefix])
	return cell[lenPrefix : lenPrefix+int(n)]
}

// Retire releases h's accounted bytes back to the Gate immediately --
// the cell is no longer "in use" the moment its owning entry is gone,
// regardless of when a reader still inspecting it finishes -- and
// schedules the cell itself for recycling once every reader that might
// still observe it has exited its critical section. Splitting the two is
// what lets an admission that just evicted a victim retry Allocate
// without waiting on readers: accounting must mirror live entries right
// away, but the physical slab slot can only be handed to a new cell once
// nobody can still read the old one.
func (a *Arena) Retire(tenant string, h Handle) {
	if !h.Valid() {
		return
	}
	c := a.classes[h.class]
	idx := h.index
	a.gate.Release(tenant, c.cellSize)
	a.recl.Retire(func() {
		c.mu.Lock()
		c.free = append(c.free, idx)
		c.mu.Unlock()
	})
}

// CellSize returns the class size backing h, or 0 for an invalid handle.
func (a *Arena) CellSize(h Handle) int64 {
	if !h.Valid() {
		return 0
	}
	return a.classes[h.class].cellSize
}
