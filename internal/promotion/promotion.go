// Package promotion implements the promotion manager: a periodic
// control loop that asks the hot-key tracker for
// candidates, filters them against tenant budget headroom, fetches
// their current value and version from the authoritative store, and
// submits them as a single BATCH_PROMOTE call. Idempotent across
// restarts because every submission carries the version the store had
// at fetch time; the ledger on the receiving end refuses anything older
// than what it has already recorded.
package promotion

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hybridkv/hotcache/internal/tracker"
	"github.com/hybridkv/hotcache/pkg/storeiface"
)

// maxConcurrentFetches bounds how many in-flight store.Get calls one
// promotion cycle issues at once, so a topK of hundreds doesn't open
// hundreds of simultaneous connections to the authoritative store.
const maxConcurrentFetches = 16

// DefaultInterval matches the tracker's own default window.
const DefaultInterval = 5 * time.Second

// DefaultTopK bounds how many candidates are considered per cycle.
const DefaultTopK = 64

// Item is one promotion candidate ready for submission.
type Item struct {
	Tenant  string
	Key     []byte
	Value   []byte
	Version uint64
	// TTL is the entry's time-to-live from admission, or 0 for no expiry.
	// Hot-tracker-driven promotions never set it; BATCH_PROMOTE callers may.
	TTL time.Duration
}

// Result reports the outcome of submitting one Item.
type Result struct {
	Tenant   string
	Key      []byte
	Accepted bool
}

// Promoter is the BATCH_PROMOTE collaborator, implemented by
// pkg/hotcache.Cache.
type Promoter interface {
	BatchPromote(ctx context.Context, items []Item) []Result
}

// Headroom reports remaining tenant byte budget, implemented by
// internal/governor.Governor.
type Headroom interface {
	Headroom(tenant string) (int64, error)
}

// Manager runs the periodic promotion loop.
type Manager struct {
	tracker  *tracker.Tracker
	store    storeiface.Store
	headroom Headroom
	promoter Promoter
	topK     int
	interval time.Duration

	weight map[string]float64
}

// New constructs a Manager. topK of 0 selects DefaultTopK; interval of 0
// selects DefaultInterval.
func New(tr *tracker.Tracker, store storeiface.Store, headroom Headroom, promoter Promoter, topK int, interval time.Duration) *Manager {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		tracker:  tr,
		store:    store,
		headroom: headroom,
		promoter: promoter,
		topK:     topK,
		interval: interval,
		weight:   make(map[string]float64),
	}
}

func weightKey(tenant string, key []byte) string {
	return tenant + "\x00" + string(key)
}

func (m *Manager) weightFor(tenant string, key []byte) float64 {
	if w, ok := m.weight[weightKey(tenant, key)]; ok {
		return w
	}
	return 1.0
}

// RunOnce executes a single promotion cycle as of now, returning the
// number of items submitted.
func (m *Manager) RunOnce(ctx context.Context, now time.Time) (int, error) {
	candidates := m.tracker.Tick(now)

	// Re-rank by sampling weight, so candidates the store or a policy has
	// recently rejected fall behind fresh ones without being dropped
	// outright.
	type weighted struct {
		c tracker.Candidate
		w float64
	}
	ws := make([]weighted, 0, len(candidates))
	for _, c := range candidates {
		ws = append(ws, weighted{c: c, w: c.EstimatedRate * m.weightFor(c.Tenant, c.Key)})
	}
	for i := 1; i < len(ws); i++ {
		j := i
		for j > 0 && ws[j].w > ws[j-1].w {
			ws[j], ws[j-1] = ws[j-1], ws[j]
			j--
		}
	}
	if len(ws) > m.topK {
		ws = ws[:m.topK]
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	// Fetching each candidate's current value/version from the
	// authoritative store is the only I/O in a cycle; fan it out so a
	// slow store doesn't serialize topK round-trips.
	fetched := make([]*Item, len(ws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, w := range ws {
		i, w := i, w
		g.Go(func() error {
			room, err := m.headroom.Headroom(w.c.Tenant)
			if err != nil || room <= 0 {
				return nil
			}
			rec, err := m.store.Get(gctx, w.c.Tenant, w.c.Key)
			if err != nil || int64(len(rec.Value)) > room {
				return nil
			}
			fetched[i] = &Item{Tenant: w.c.Tenant, Key: w.c.Key, Value: rec.Value, Version: rec.Version}
			return nil
		})
	}
	_ = g.Wait()

	var items []Item
	for _, it := range fetched {
		if it != nil {
			items = append(items, *it)
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	results := m.promoter.BatchPromote(ctx, items)
	accepted := 0
	for _, r := range results {
		k := weightKey(r.Tenant, r.Key)
		if r.Accepted {
			accepted++
			delete(m.weight, k)
			continue
		}
		next := m.weightFor(r.Tenant, r.Key) * 0.5
		if next < 0.05 {
			next = 0.05
		}
		m.weight[k] = next
	}
	return accepted, nil
}

// Run drives RunOnce on m.interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.RunOnce(ctx, now)
		}
	}
}
