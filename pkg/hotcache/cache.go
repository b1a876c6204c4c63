// Package hotcache is the public command surface: it wires the object
// arena, concurrent index, memory governor, version/invalidation ledger,
// telemetry, policy plane, event bus, hot-key tracker and promotion
// manager into the READ / INVALIDATE / BATCH_PROMOTE / PURGE / STATS /
// CONFIGURE operations.
//
// Cache itself satisfies internal/promotion.Promoter, so the promotion
// manager submits directly back into the same admission path BATCH_PROMOTE
// requests go through -- there is exactly one way bytes enter the cache.
package hotcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hybridkv/hotcache/internal/arena"
	"github.com/hybridkv/hotcache/internal/epoch"
	"github.com/hybridkv/hotcache/internal/events"
	"github.com/hybridkv/hotcache/internal/governor"
	"github.com/hybridkv/hotcache/internal/index"
	"github.com/hybridkv/hotcache/internal/ledger"
	"github.com/hybridkv/hotcache/internal/policy"
	"github.com/hybridkv/hotcache/internal/policy/tenant"
	"github.com/hybridkv/hotcache/internal/promotion"
	"github.com/hybridkv/hotcache/internal/sketch"
	"github.com/hybridkv/hotcache/internal/telemetry"
	"github.com/hybridkv/hotcache/internal/tracker"
	"github.com/hybridkv/hotcache/pkg/storeiface"
)

// ReadOutcome reports how a READ was served.
type ReadOutcome int

const (
	OutcomeMiss ReadOutcome = iota
	OutcomeHit
	OutcomeStale
)

// ReadResult is the READ response payload.
type ReadResult struct {
	Outcome ReadOutcome
	Value   []byte
	Version uint64
}

// StatsSnapshot is the STATS response payload for one scope.
type StatsSnapshot struct {
	Tenant    string
	Counters  telemetry.Snapshot
	Governor  governor.TenantStats
}

// Cache is a single hot-key cache instance. Construct with New.
type Cache struct {
	cfg       *config
	arena     *arena.Arena
	idx       *index.Index[*entry]
	gov       *governor.Governor
	ledger    *ledger.Ledger
	telemetry *telemetry.Telemetry
	events    *events.Bus
	tracker   *tracker.Tracker
	promotion *promotion.Manager
	recl      *epoch.Reclaimer
	store     storeiface.Store
	logger    *zap.Logger
	sk        *sketch.Sketch
	// tenantSched ranks tenants for cross-tenant preemption when the
	// requesting tenant has exhausted its own eviction candidates but the
	// cache is still over a watermark (§4.6 Tenant budget: priority
	// preemption in the shared pool only).
	tenantSched *tenant.PriorityScheduler

	mu         sync.RWMutex
	tenants    map[string]*tenantPolicies
	tenantIDs  map[string]uint32
	idToTenant map[uint32]string
	nextTenantID uint32

	// sf dedups concurrent async-refresh fetches of the same key against
	// the authoritative store, collapsing a thundering herd of misses on
	// the same (tenant, key) into one request.
	sf singleflight.Group

	wg sync.WaitGroup
}

// New constructs a Cache. WithStore is mandatory; every other Option has a
// sensible default.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.store == nil {
		return nil, errors.New("hotcache: WithStore is required")
	}

	gov := governor.New(cfg.totalBytes, cfg.softWatermark, cfg.hardWatermark)
	recl := epoch.New()
	ar := arena.New(gov, recl, arena.DefaultClassSizes())
	idx := index.New[*entry](1024)
	led := ledger.New(cfg.staleGrace)
	tel := telemetry.New(cfg.registry)
	evBus := events.New(cfg.eventBufferSize)
	sk := sketch.New(sketch.DefaultWidth, sketch.DefaultHalvePeriod)
	trk := tracker.New(sk, tracker.Thresholds{
		MinRatePerSecond: cfg.hotRateMin,
		MinReadRatio:     cfg.readRatioMin,
		MaxValueBytes:    cfg.valueSizeMax,
	})

	c := &Cache{
		cfg:        cfg,
		arena:      ar,
		idx:        idx,
		gov:        gov,
		ledger:     led,
		telemetry:  tel,
		events:     evBus,
		tracker:    trk,
		recl:       recl,
		store:       cfg.store,
		logger:      cfg.logger,
		sk:          sk,
		tenantSched: tenant.NewPriorityScheduler(),
		tenants:    make(map[string]*tenantPolicies),
		tenantIDs:  make(map[string]uint32),
		idToTenant: make(map[uint32]string),
	}
	c.promotion = promotion.New(trk, cfg.store, gov, c, cfg.promoteTopK, cfg.promoteInterval)
	return c, nil
}

// RegisterTenant adds or reconfigures a tenant. It is also how CONFIGURE
// is served: re-registering an already-known tenant swaps in fresh
// policy instances while leaving resident entries in place. A freshly
// swapped eviction policy starts with no bookkeeping for those entries and
// no rescan runs. LFU, SLRU and TwoQ start tracking a carried-over entry on
// its next hit; LRU and FIFO ignore hits on entries they have not seen, so
// they track one only once it is admitted again, and until then their
// SelectVictims never returns it.
func (c *Cache) RegisterTenant(tenant string, opts TenantOptions) error {
	if err := c.gov.RegisterTenant(tenant, governor.TenantConfig{
		HardCapBytes:      opts.HardCapBytes,
		MinGuaranteeBytes: opts.MinGuaranteeBytes,
		Weight:            opts.Weight,
		Priority:          opts.Priority,
	}); err != nil {
		return err
	}

	tp, err := newTenantPolicies(opts, c.sk)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tenantIDs[tenant]; !exists {
		id := c.nextTenantID
		c.nextTenantID++
		c.tenantIDs[tenant] = id
		c.idToTenant[id] = tenant
	}
	c.tenants[tenant] = tp
	return nil
}

// Configure applies opts to an already-registered tenant; semantically
// identical to RegisterTenant (the CONFIGURE wire operation never creates
// a tenant governor bookkeeping did not already know about).
func (c *Cache) Configure(tenant string, opts TenantOptions) error {
	return c.RegisterTenant(tenant, opts)
}

func (c *Cache) tenantPolicy(tenant string) (*tenantPolicies, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tp, ok := c.tenants[tenant]
	return tp, ok
}

// TenantName resolves the wire-level numeric tenant id to the name used
// everywhere else in the module.
func (c *Cache) TenantName(id uint32) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.idToTenant[id]
	return name, ok
}

// TenantID resolves a tenant name to its wire-level numeric id.
func (c *Cache) TenantID(tenant string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.tenantIDs[tenant]
	return id, ok
}

func fingerprint(tenant string, key []byte) uint64 {
	buf := make([]byte, 0, len(tenant)+1+len(key))
	buf = append(buf, tenant...)
	buf = append(buf, 0)
	buf = append(buf, key...)
	return xxhash.Sum64(buf)
}

func viewOf(e *entry) policy.EntryView {
	return policy.EntryView{
		Fingerprint:  e.fingerprint,
		Key:          e.key,
		Tenant:       e.tenant,
		SizeBytes:    e.sizeBytes,
		InsertedAt:   e.insertedAt,
		LastAccessAt: e.lastAccess(),
		AccessCount:  e.accessCount.Load(),
	}
}

// Read serves a READ command. expectedVersion is only consulted under
// Consistency: version.
func (c *Cache) Read(ctx context.Context, tenant string, key []byte, expectedVersion *uint64) (ReadResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return ReadResult{}, err
	}
	if len(key) == 0 || int64(len(key)) > c.cfg.keySizeMax {
		return ReadResult{}, ErrInvalidInput
	}
	tp, ok := c.tenantPolicy(tenant)
	if !ok {
		return ReadResult{}, ErrUnknownTenant
	}

	fp := fingerprint(tenant, key)
	guard := c.recl.Enter()
	e, found := c.idx.Lookup(fp, key)
	var value []byte
	var version uint64
	now := time.Now()
	expired := found && e.expired(now)
	if found && !expired {
		value = append([]byte(nil), c.arena.With(e.handle)...)
		version = e.version
	}
	guard.Exit()

	if expired {
		c.evictExpired(tenant, tp, e)
		found = false
	}

	if !found {
		c.telemetry.IncMiss(tenant)
		c.tracker.RecordRead(tenant, fp, key, 0)
		c.telemetry.ObserveReadLatency(tenant, time.Since(start))
		return ReadResult{Outcome: OutcomeMiss}, nil
	}
	outcome := OutcomeHit
	tombstoned := c.ledger.Tombstoned(key, now)
	switch tp.consistency {
	case ConsistencyStrict:
		if tombstoned {
			outcome = OutcomeMiss
		}
	case ConsistencyBounded:
		if tombstoned {
			if tp.boundedStaleness > 0 && !c.ledger.BoundedStaleExpired(key, now) {
				outcome = OutcomeStale
			} else {
				outcome = OutcomeMiss
			}
		}
	case ConsistencyVersion:
		// The expected-version comparison is the whole of this mode's
		// contract (§4.4 "reads carry an expected version; mismatch is
		// reported as MISS") and runs on every read, tombstoned or not --
		// a caller that never supplies expectedVersion gets no freshness
		// check beyond plain tombstone staleness.
		if expectedVersion != nil && version != *expectedVersion {
			outcome = OutcomeMiss
		} else if tombstoned {
			outcome = OutcomeStale
		}
	case ConsistencyAsyncRefresh:
		if tombstoned {
			c.scheduleAsyncRefresh(tenant, key)
		}
	}
	if outcome == OutcomeMiss && tombstoned && tp.consistency == ConsistencyBounded {
		c.evictStale(tenant, tp, e)
	}

	if outcome == OutcomeMiss {
		c.telemetry.IncMiss(tenant)
		c.tracker.RecordRead(tenant, fp, key, int64(len(value)))
		c.telemetry.ObserveReadLatency(tenant, time.Since(start))
		return ReadResult{Outcome: OutcomeMiss}, nil
	}

	e.touch(now)
	tp.eviction.OnHit(viewOf(e))
	tp.hotness.OnHit(fp)
	c.telemetry.IncHit(tenant)
	c.tracker.RecordRead(tenant, fp, key, int64(len(value)))
	c.telemetry.ObserveReadLatency(tenant, time.Since(start))
	return ReadResult{Outcome: outcome, Value: value, Version: version}, nil
}

// scheduleAsyncRefresh kicks off a best-effort background refetch for a
// stale key served under Consistency: async_refresh. Concurrent reads of
// the same key collapse into a single store fetch.
func (c *Cache) scheduleAsyncRefresh(tenant string, key []byte) {
	k := tenant + "\x00" + string(key)
	c.sf.DoChan(k, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rec, err := c.store.Get(ctx, tenant, key)
		if err != nil {
			return nil, err
		}
		c.BatchPromote(ctx, []promotion.Item{{Tenant: tenant, Key: key, Value: rec.Value, Version: rec.Version}})
		return nil, nil
	})
}

// Invalidate serves an INVALIDATE command.
func (c *Cache) Invalidate(ctx context.Context, tenant string, key []byte, newVersion uint64) error {
	tp, ok := c.tenantPolicy(tenant)
	if !ok {
		return ErrUnknownTenant
	}
	if len(key) == 0 {
		return ErrInvalidInput
	}
	if err := c.ledger.Invalidate(key, newVersion, time.Now(), tp.boundedStaleness); err != nil {
		return err
	}

	if tp.consistency == ConsistencyStrict {
		fp := fingerprint(tenant, key)
		if old, removed := c.idx.Remove(fp, key); removed {
			c.arena.Retire(tenant, old.handle)
			tp.eviction.OnRemove(viewOf(old))
			c.telemetry.IncEviction(tenant, telemetry.EvictInvalidation)
			c.events.Publish(events.Event{Kind: events.KindEvicted, Tenant: tenant, Key: key, Reason: "invalidation", Timestamp: time.Now()})
		}
	}
	return nil
}

// BatchPromote serves a BATCH_PROMOTE command and also satisfies
// internal/promotion.Promoter, so the promotion manager's
// periodic loop submits through this exact path.
func (c *Cache) BatchPromote(ctx context.Context, items []promotion.Item) []promotion.Result {
	results := make([]promotion.Result, len(items))
	for i, it := range items {
		results[i] = c.admitOne(it)
	}
	return results
}

func (c *Cache) admitOne(it promotion.Item) promotion.Result {
	res := promotion.Result{Tenant: it.Tenant, Key: it.Key}

	tp, ok := c.tenantPolicy(it.Tenant)
	if !ok {
		return res
	}
	if len(it.Key) == 0 || int64(len(it.Key)) > c.cfg.keySizeMax || int64(len(it.Value)) > c.cfg.valueSizeMax {
		c.telemetry.IncRefusal(it.Tenant)
		return res
	}

	fp := fingerprint(it.Tenant, it.Key)
	if err := c.ledger.CheckAdmission(it.Key, it.Version); err != nil {
		c.telemetry.IncRefusal(it.Tenant)
		return res
	}

	candidate := policy.EntryView{
		Fingerprint: fp,
		Key:         it.Key,
		Tenant:      it.Tenant,
		SizeBytes:   int64(len(it.Value)),
		InsertedAt:  time.Now(),
	}
	// A promotion request is itself an observation of the key: the hot-key
	// tracker or an operator already decided it worth promoting, so it
	// counts toward the candidate's estimate the admission policy checks
	// below, the same way a cache hit does in Read.
	tp.hotness.OnHit(fp)

	handle, cellSize, err := c.arena.Allocate(it.Tenant, it.Value)
	if err != nil {
		if !errors.Is(err, arena.ErrOOM) {
			c.telemetry.IncRefusal(it.Tenant)
			return res
		}
		// Under pressure: ask the eviction policy for a victim and let
		// admission decide whether the candidate is hot enough to evict
		// for.
		for attempts := 0; attempts < 4 && err != nil && errors.Is(err, arena.ErrOOM); attempts++ {
			victims := tp.eviction.SelectVictims(int64(len(it.Value)))
			if len(victims) == 0 {
				break
			}
			v := victims[0]
			if !tp.admission.OnAdmit(candidate, &v) {
				c.telemetry.IncRefusal(it.Tenant)
				return res
			}
			c.evictOne(it.Tenant, tp, v)
			handle, cellSize, err = c.arena.Allocate(it.Tenant, it.Value)
		}
		// The requesting tenant has no more victims of its own, but the
		// cache as a whole may still be over a watermark with bytes sitting
		// in the shared pool of a lower-priority tenant. Try preempting
		// those before refusing outright.
		if err != nil && errors.Is(err, arena.ErrOOM) {
			handle, cellSize, err = c.preemptAcrossTenants(it, candidate)
		}
		if err != nil {
			c.telemetry.IncRefusal(it.Tenant)
			return res
		}
	} else if !tp.admission.OnAdmit(candidate, nil) {
		c.arena.Retire(it.Tenant, handle)
		c.telemetry.IncRefusal(it.Tenant)
		return res
	}

	e := &entry{
		fingerprint: fp,
		key:         append([]byte(nil), it.Key...),
		tenant:      it.Tenant,
		handle:      handle,
		sizeBytes:   cellSize,
		version:     it.Version,
		insertedAt:  time.Now(),
	}
	if it.TTL > 0 {
		e.expiresAt = e.insertedAt.Add(it.TTL)
	}
	old, replaced := c.idx.Insert(fp, e.key, e)
	if replaced {
		c.arena.Retire(it.Tenant, old.handle)
		tp.eviction.OnRemove(viewOf(old))
	}
	tp.eviction.OnInsert(viewOf(e))
	c.ledger.RecordAdmission(it.Key, it.Version)
	c.telemetry.IncAdmission(it.Tenant)
	if stats, err := c.gov.Stats(it.Tenant); err == nil {
		c.telemetry.SetBytesInUse(it.Tenant, stats.UsedBytes)
	}

	res.Accepted = true
	return res
}

// evictExpired removes e once its TTL deadline has passed, either
// discovered inline by Read or swept in bulk by maintain.
func (c *Cache) evictExpired(tenant string, tp *tenantPolicies, e *entry) {
	if old, removed := c.idx.Remove(e.fingerprint, e.key); removed {
		c.arena.Retire(tenant, old.handle)
		tp.eviction.OnRemove(viewOf(old))
		c.telemetry.IncEviction(tenant, telemetry.EvictTTL)
		c.events.Publish(events.Event{Kind: events.KindEvicted, Tenant: tenant, Key: e.key, Reason: "ttl", Timestamp: time.Now()})
	}
}

// evictStale removes e once its bounded-staleness deadline has passed so
// a later read doesn't fall through to a plain HIT of the old version
// after the ledger's (much longer) tombstone grace clears.
func (c *Cache) evictStale(tenant string, tp *tenantPolicies, e *entry) {
	if old, removed := c.idx.Remove(e.fingerprint, e.key); removed {
		c.arena.Retire(tenant, old.handle)
		tp.eviction.OnRemove(viewOf(old))
		c.telemetry.IncEviction(tenant, telemetry.EvictInvalidation)
		c.events.Publish(events.Event{Kind: events.KindEvicted, Tenant: tenant, Key: e.key, Reason: "bounded_staleness", Timestamp: time.Now()})
	}
}

// sweepExpired scans every resident entry for a passed TTL deadline and
// evicts it. Run periodically from maintain rather than the read path, so
// a key that is never read again is still reclaimed.
func (c *Cache) sweepExpired(now time.Time) {
	var expired []*entry
	c.idx.Range(func(fp uint64, key []byte, e *entry) bool {
		if e.expired(now) {
			expired = append(expired, e)
		}
		return true
	})
	for _, e := range expired {
		if tp, ok := c.tenantPolicy(e.tenant); ok {
			c.evictExpired(e.tenant, tp, e)
		}
	}
}

// preemptAcrossTenants is the cross-tenant fallback once the requesting
// tenant's own eviction policy has no victims left to offer: it ranks
// every other tenant whose Priority is lower than the requester's (ties
// broken by largest current usage) via c.tenantSched, skipping any tenant
// at or below its min guarantee,
// and evicts one entry from each ranked tenant in turn until it.Value
// fits or the ranking is exhausted.
func (c *Cache) preemptAcrossTenants(it promotion.Item, candidate policy.EntryView) (arena.Handle, int64, error) {
	usages := make([]tenant.Usage, 0)
	self, _ := c.gov.Stats(it.Tenant)
	for _, ts := range c.gov.AllTenantStats() {
		if ts.Tenant == it.Tenant || ts.Priority >= self.Priority {
			continue
		}
		usages = append(usages, tenant.Usage{
			Tenant:            ts.Tenant,
			UsedBytes:         ts.UsedBytes,
			MinGuaranteeBytes: ts.MinGuaranteeBytes,
			Weight:            ts.Weight,
			Priority:          ts.Priority,
		})
	}
	ranked := c.tenantSched.Rank(usages)

	for _, victimTenant := range ranked {
		vtp, ok := c.tenantPolicy(victimTenant)
		if !ok {
			continue
		}
		victims := vtp.eviction.SelectVictims(int64(len(it.Value)))
		if len(victims) == 0 {
			continue
		}
		v := victims[0]
		if !vtp.admission.OnAdmit(candidate, &v) {
			continue
		}
		c.evictOne(victimTenant, vtp, v)
		if handle, cellSize, err := c.arena.Allocate(it.Tenant, it.Value); err == nil {
			return handle, cellSize, nil
		}
	}
	return arena.NilHandle, 0, arena.ErrOOM
}

func (c *Cache) evictOne(tenant string, tp *tenantPolicies, v policy.EntryView) {
	if old, removed := c.idx.Remove(v.Fingerprint, v.Key); removed {
		c.arena.Retire(tenant, old.handle)
	}
	tp.eviction.OnEvict(v)
	c.telemetry.IncEviction(tenant, telemetry.EvictPressure)
	c.events.Publish(events.Event{Kind: events.KindEvicted, Tenant: tenant, Key: v.Key, Reason: "pressure", Timestamp: time.Now()})
}

// Purge serves a PURGE command: removes a single tenant's resident
// entries, or every tenant's when global is true.
func (c *Cache) Purge(ctx context.Context, tenant string, global bool) (int, error) {
	if global {
		c.mu.RLock()
		names := make([]string, 0, len(c.tenants))
		for t := range c.tenants {
			names = append(names, t)
		}
		c.mu.RUnlock()

		total := 0
		for _, t := range names {
			n, err := c.purgeTenant(t)
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	}
	return c.purgeTenant(tenant)
}

func (c *Cache) purgeTenant(tenant string) (int, error) {
	tp, ok := c.tenantPolicy(tenant)
	if !ok {
		return 0, ErrUnknownTenant
	}

	var victims []policy.EntryView
	c.idx.Range(func(fp uint64, key []byte, e *entry) bool {
		if e.tenant == tenant {
			victims = append(victims, viewOf(e))
		}
		return true
	})

	for _, v := range victims {
		if old, removed := c.idx.Remove(v.Fingerprint, v.Key); removed {
			c.arena.Retire(tenant, old.handle)
			tp.eviction.OnRemove(v)
		}
		c.telemetry.IncEviction(tenant, telemetry.EvictAdmin)
	}
	if stats, err := c.gov.Stats(tenant); err == nil {
		c.telemetry.SetBytesInUse(tenant, stats.UsedBytes)
	}
	return len(victims), nil
}

// Stats serves a STATS command. An empty tenant returns the global
// aggregate without a governor snapshot (the governor has no notion of a
// global budget beyond the sum of tenants).
func (c *Cache) Stats(tenant string) (StatsSnapshot, error) {
	if tenant == "" {
		return StatsSnapshot{Counters: c.telemetry.Snapshot("")}, nil
	}
	if _, ok := c.tenantPolicy(tenant); !ok {
		return StatsSnapshot{}, ErrUnknownTenant
	}
	govStats, err := c.gov.Stats(tenant)
	if err != nil {
		return StatsSnapshot{}, err
	}
	return StatsSnapshot{
		Tenant:   tenant,
		Counters: c.telemetry.Snapshot(tenant),
		Governor: govStats,
	}, nil
}

// Events returns a subscription to the cache's event bus.
func (c *Cache) Events() <-chan events.Event { return c.events.Subscribe() }

// UnsubscribeEvents releases a subscription obtained from Events.
func (c *Cache) UnsubscribeEvents(ch <-chan events.Event) { c.events.Unsubscribe(ch) }

// Run drives the promotion manager's periodic cycle and background epoch
// reclamation/tombstone expiry until ctx is cancelled. Callers typically
// run it in its own goroutine and cancel ctx at shutdown before calling
// Close.
func (c *Cache) Run(ctx context.Context) {
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.promotion.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.maintain(ctx)
	}()
}

func (c *Cache) maintain(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.recl.Tick()
			c.ledger.ExpireTombstones(now)
			c.sweepExpired(now)
		}
	}
}

// Close waits for Run's background goroutines to exit (ctx must already
// be cancelled) and closes the authoritative store.
func (c *Cache) Close() error {
	c.wg.Wait()
	return c.store.Close()
}
