package hotcache

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hybridkv/hotcache/internal/promotion"
	"github.com/hybridkv/hotcache/internal/wire"
	"github.com/hybridkv/hotcache/pkg/storeiface"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]storeiface.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]storeiface.Record)}
}

func storeKey(tenant string, key []byte) string { return tenant + "\x00" + string(key) }

func (s *fakeStore) Get(ctx context.Context, tenant string, key []byte) (storeiface.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[storeKey(tenant, key)]
	if !ok {
		return storeiface.Record{}, storeiface.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) Put(ctx context.Context, tenant string, key, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storeKey(tenant, key)
	r := s.records[k]
	r.Version++
	r.Value = append([]byte(nil), value...)
	s.records[k] = r
	return r.Version, nil
}

func (s *fakeStore) Delete(ctx context.Context, tenant string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, storeKey(tenant, key))
	return nil
}

func (s *fakeStore) Close() error { return nil }

func newTestCache(t *testing.T) (*Cache, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	c, err := New(WithStore(store), WithTotalBytes(1<<20))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.RegisterTenant("tenant1", TenantOptions{HardCapBytes: 1 << 20, Weight: 1}); err != nil {
		t.Fatalf("RegisterTenant() error = %v", err)
	}
	return c, store
}

func TestBatchPromoteThenReadHits(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	results := c.BatchPromote(ctx, []promotion.Item{{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1}})
	if len(results) != 1 || !results[0].Accepted {
		t.Fatalf("BatchPromote results = %+v, want one accepted item", results)
	}

	got, err := c.Read(ctx, "tenant1", []byte("k1"), nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Outcome != OutcomeHit || string(got.Value) != "v1" {
		t.Fatalf("Read() = %+v, want hit v1", got)
	}
}

func TestReadMissUnknownKey(t *testing.T) {
	c, _ := newTestCache(t)
	got, err := c.Read(context.Background(), "tenant1", []byte("missing"), nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Outcome != OutcomeMiss {
		t.Fatalf("Read() outcome = %v, want miss", got.Outcome)
	}
}

func TestReadUnknownTenantErrors(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Read(context.Background(), "ghost", []byte("k1"), nil); !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("Read() error = %v, want ErrUnknownTenant", err)
	}
}

func TestReadRejectsEmptyKey(t *testing.T) {
	c, _ := newTestCache(t)
	if _, err := c.Read(context.Background(), "tenant1", nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Read() error = %v, want ErrInvalidInput", err)
	}
}

func TestInvalidateStrictRemovesEntry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.BatchPromote(ctx, []promotion.Item{{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1}})

	if err := c.Invalidate(ctx, "tenant1", []byte("k1"), 2); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	got, err := c.Read(ctx, "tenant1", []byte("k1"), nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Outcome != OutcomeMiss {
		t.Fatalf("Read() after strict invalidate = %v, want miss", got.Outcome)
	}
}

func TestInvalidateRejectsVersionRegression(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	if err := c.Invalidate(ctx, "tenant1", []byte("k1"), 5); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if err := c.Invalidate(ctx, "tenant1", []byte("k1"), 1); err == nil {
		t.Fatal("Invalidate() with older version succeeded, want error")
	}
}

func TestPurgeRemovesTenantEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.BatchPromote(ctx, []promotion.Item{
		{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1},
		{Tenant: "tenant1", Key: []byte("k2"), Value: []byte("v2"), Version: 1},
	})

	n, err := c.Purge(ctx, "tenant1", false)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Purge() removed %d entries, want 2", n)
	}

	got, _ := c.Read(ctx, "tenant1", []byte("k1"), nil)
	if got.Outcome != OutcomeMiss {
		t.Fatalf("Read() after purge = %v, want miss", got.Outcome)
	}
}

func TestStatsReportsAdmissionsAndHits(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.BatchPromote(ctx, []promotion.Item{{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1}})
	c.Read(ctx, "tenant1", []byte("k1"), nil)

	snap, err := c.Stats("tenant1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if snap.Counters.Admissions != 1 || snap.Counters.Hits != 1 {
		t.Fatalf("Stats() = %+v, want 1 admission and 1 hit", snap.Counters)
	}
}

func TestConfigureSwapsPolicyAndKeepsResidentEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.BatchPromote(ctx, []promotion.Item{{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1}})

	if err := c.Configure("tenant1", TenantOptions{HardCapBytes: 1 << 20, Weight: 1, Eviction: "lfu"}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	got, err := c.Read(ctx, "tenant1", []byte("k1"), nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Outcome != OutcomeHit || string(got.Value) != "v1" {
		t.Fatalf("Read() after Configure = %+v, want hit v1 (entries survive a policy swap)", got)
	}
}

func TestHigherPriorityTenantPreemptsSharedPool(t *testing.T) {
	store := newFakeStore()
	// Single-byte values fall into the arena's smallest size class (64 B,
	// from arena.DefaultClassSizes()); total_bytes is sized to that real
	// class so four low-tenant entries exactly saturate the shared pool.
	const totalBytes = 4 * 64
	c, err := New(WithStore(store), WithTotalBytes(totalBytes))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := c.RegisterTenant("low", TenantOptions{HardCapBytes: totalBytes, Weight: 1, Priority: 0, Eviction: "fifo", Admission: "threshold"}); err != nil {
		t.Fatalf("RegisterTenant(low) error = %v", err)
	}
	if err := c.RegisterTenant("high", TenantOptions{HardCapBytes: totalBytes, Weight: 1, Priority: 3, Eviction: "fifo", Admission: "threshold"}); err != nil {
		t.Fatalf("RegisterTenant(high) error = %v", err)
	}

	// Fill the whole shared pool with "low" tenant entries.
	for i := 0; i < 4; i++ {
		key := []byte{'k', byte('0' + i)}
		res := c.BatchPromote(ctx, []promotion.Item{{Tenant: "low", Key: key, Value: []byte("v"), Version: 1}})
		if !res[0].Accepted {
			t.Fatalf("BatchPromote(low, %s) not accepted: %+v", key, res)
		}
	}

	// "high" has no room of its own left in the shared pool; it must
	// preempt one of "low"'s entries rather than being refused outright.
	res := c.BatchPromote(ctx, []promotion.Item{{Tenant: "high", Key: []byte("hot"), Value: []byte("v"), Version: 1}})
	if !res[0].Accepted {
		t.Fatalf("BatchPromote(high) = %+v, want accepted via cross-tenant preemption", res[0])
	}

	snap, err := c.Stats("low")
	if err != nil {
		t.Fatalf("Stats(low) error = %v", err)
	}
	if snap.Counters.EvictedPressure == 0 {
		t.Fatalf("Stats(low).EvictedPressure = %d, want at least 1 entry preempted", snap.Counters.EvictedPressure)
	}
}

func TestReadMissesAfterTTLExpiry(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.BatchPromote(ctx, []promotion.Item{{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1, TTL: time.Millisecond}})

	got, err := c.Read(ctx, "tenant1", []byte("k1"), nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Outcome != OutcomeHit {
		t.Fatalf("Read() immediately after promote = %v, want hit", got.Outcome)
	}

	time.Sleep(5 * time.Millisecond)
	got, err = c.Read(ctx, "tenant1", []byte("k1"), nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Outcome != OutcomeMiss {
		t.Fatalf("Read() after TTL expiry = %v, want miss", got.Outcome)
	}

	snap, err := c.Stats("tenant1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if snap.Counters.EvictedTTL != 1 {
		t.Fatalf("Stats().EvictedTTL = %d, want 1", snap.Counters.EvictedTTL)
	}
}

func TestServeConnRoundTripsRead(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.BatchPromote(ctx, []promotion.Item{{Tenant: "tenant1", Key: []byte("k1"), Value: []byte("v1"), Version: 1}})
	id, ok := c.TenantID("tenant1")
	if !ok {
		t.Fatal("tenant id missing")
	}

	serverConn, clientConn := net.Pipe()
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.ServeConn(serveCtx, serverConn) }()

	req := wire.Request{Opcode: wire.OpRead, TenantID: id, Payload: wire.EncodeReadPayload([]byte("k1"))}
	if _, err := clientConn.Write(wire.EncodeRequest(req)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	resp, err := wire.DecodeResponse(clientConn)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Status != wire.StatusOK || string(resp.Payload) != "v1" {
		t.Fatalf("response = %+v, want OK v1", resp)
	}

	cancel()
	clientConn.Close()
	serverConn.Close()
	<-done
}
