package hotcache

import (
	"sync/atomic"
	"time"

	"github.com/hybridkv/hotcache/internal/arena"
)

// entry is the metadata kept in the index for every resident key; the
// bytes themselves live in the arena behind Handle. It carries a
// byte-oriented key/value shape rather than generic K/V fields, plus
// the version/tenant bookkeeping the ledger and governor need.
type entry struct {
	fingerprint uint64
	key         []byte
	tenant      string
	handle      arena.Handle
	sizeBytes   int64
	version     uint64
	// expiresAt is the absolute TTL deadline (§3 Data Model "expiry"), or
	// the zero Time when the entry never expires on its own.
	expiresAt time.Time

	insertedAt time.Time
	// lastAccess and accessCount are updated on every hit without
	// holding the index bucket lock, so they are atomics even though the
	// struct they live in is only ever reached through a lock-protected
	// lookup.
	lastAccessUnixNano atomic.Int64
	accessCount         atomic.Uint64
}

func (e *entry) touch(now time.Time) {
	e.lastAccessUnixNano.Store(now.UnixNano())
	e.accessCount.Add(1)
}

func (e *entry) lastAccess() time.Time {
	return time.Unix(0, e.lastAccessUnixNano.Load())
}

// expired reports whether e's TTL deadline has passed as of now. An entry
// with no expiresAt set never expires this way.
func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
