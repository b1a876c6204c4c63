// Package epoch implements a small epoch-based reclamation (EBR) primitive,
// a standalone building block shared by the object arena and the
// concurrent index: a reader enters a critical section, does its
// lock-free traversal, and exits; a writer that wants to recycle memory
// retires a cleanup callback instead of running it immediately. The
// callback only runs once every reader that could have observed the
// retired memory has left its critical section.
//
// Reclamation happens per-retirement rather than by freeing a whole
// arena generation in one shot, and is driven by an explicit Tick, so
// callers (arena, index) can invoke it from their own background loops.
package epoch

import "sync"

// Reclaimer tracks three generations of in-flight readers and retired
// callbacks. Three buckets are the minimum needed to guarantee that the
// bucket being recycled can never receive new readers: readers are only
// ever admitted into the current epoch's bucket.
type Reclaimer struct {
	mu      sync.Mutex
	epoch   uint64 // advanced only by Tick, under both mu and amu
	active  [3]int64
	pending [3][]func()
	amu     sync.Mutex // guards active[] independently of mu (hot path)
}

// New constructs an idle Reclaimer at epoch 0.
func New() *Reclaimer {
	return &Reclaimer{}
}

// Guard represents an open read-side critical section.
type Guard struct {
	r     *Reclaimer
	epoch uint64
}

// Enter opens a critical section. The caller must call Exit when done;
// Enter never blocks.
func (r *Reclaimer) Enter() Guard {
	r.amu.Lock()
	e := r.epoch
	r.active[e%3]++
	r.amu.Unlock()
	return Guard{r: r, epoch: e}
}

// Exit closes the critical section opened by Enter.
func (g Guard) Exit() {
	g.r.amu.Lock()
	g.r.active[g.epoch%3]--
	g.r.amu.Unlock()
}

// Retire schedules fn to run once no reader that entered before this call
// remains active. fn must not block and must not itself call Retire or
// Tick re-entrantly.
func (r *Reclaimer) Retire(fn func()) {
	r.mu.Lock()
	r.pending[r.epoch%3] = append(r.pending[r.epoch%3], fn)
	r.mu.Unlock()
}

// Tick attempts to advance the global epoch by one generation, running any
// callbacks retired two generations ago. It returns false (a no-op) when
// readers are still active in the generation about to be recycled; callers
// should simply try again on their next scheduled tick.
func (r *Reclaimer) Tick() bool {
	r.mu.Lock()

	// The bucket that becomes eligible for reclamation is exactly two
	// generations behind the epoch we are about to move to, which is the
	// same index as one generation ahead of the current epoch (mod 3).
	// No reader is ever admitted into that bucket again once we leave it,
	// so the only remaining concern is readers that are still draining.
	recycle := (r.epoch + 1) % 3

	r.amu.Lock()
	busy := r.active[recycle] != 0
	if !busy {
		r.epoch++
	}
	r.amu.Unlock()
	if busy {
		r.mu.Unlock()
		return false
	}

	fns := r.pending[recycle]
	r.pending[recycle] = nil
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return true
}

// PendingCount reports the number of callbacks awaiting reclamation,
// summed across all generations. Useful for telemetry/diagnostics.
func (r *Reclaimer) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.pending {
		n += len(p)
	}
	return n
}
