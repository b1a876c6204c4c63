// Package bench provides reproducible micro-benchmarks for pkg/hotcache.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks use a single key/value shape so results are comparable
// across versions:
//   • Key   – decimal string built from a uint64 (matches the wire protocol's
//     []byte key shape)
//   • Value – 64-byte payload
//
// We measure:
//   1. BatchPromote – admission-path write-only workload
//   2. Read         – read-only workload (after warm-up)
//   3. ReadParallel – highly concurrent reads (b.RunParallel)
//   4. ReadAsyncRefresh – 90% hits, 10% misses under the async_refresh
//      consistency mode (a miss returns without calling the store)
//
// Results are printed in ns/op + alloc/op so CI can diff via benchstat.
//
// NOTE: unit tests live in pkg/hotcache; this file is only for performance.
package bench

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hybridkv/hotcache/internal/promotion"
	"github.com/hybridkv/hotcache/pkg/hotcache"
	"github.com/hybridkv/hotcache/pkg/storeiface"
)

const (
	capBytes = 64 << 20 // 64 MiB total arena cap
	keys     = 1 << 20  // 1M keys for dataset
	tenant   = "bench"
)

type value64 struct {
	_ [64]byte
}

var value64Bytes = make([]byte, 64)

// benchStore is a trivial in-memory storeiface.Store; hotcache.New requires
// one, and none of these benchmarks reaches a code path that calls it.
type benchStore struct {
	mu      sync.Mutex
	records map[string]storeiface.Record
}

func newBenchStore() *benchStore { return &benchStore{records: make(map[string]storeiface.Record)} }

func (s *benchStore) Get(ctx context.Context, tenant string, key []byte) (storeiface.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[string(key)]
	if !ok {
		return storeiface.Record{}, storeiface.ErrNotFound
	}
	return r, nil
}

func (s *benchStore) Put(ctx context.Context, tenant string, key, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[string(key)]
	r.Version++
	r.Value = value
	s.records[string(key)] = r
	return r.Version, nil
}

func (s *benchStore) Delete(ctx context.Context, tenant string, key []byte) error { return nil }
func (s *benchStore) Close() error                                               { return nil }

func newTestCache(b *testing.B) *hotcache.Cache {
	c, err := hotcache.New(hotcache.WithStore(newBenchStore()), hotcache.WithTotalBytes(capBytes))
	if err != nil {
		b.Fatalf("hotcache.New: %v", err)
	}
	if err := c.RegisterTenant(tenant, hotcache.TenantOptions{HardCapBytes: capBytes, Weight: 1}); err != nil {
		b.Fatalf("RegisterTenant: %v", err)
	}
	return c
}

// ds is the dataset reused across benches to avoid reallocating large
// slices; a fixed seed keeps it reproducible.
var ds = func() [][]byte {
	rng := rand.New(rand.NewSource(42))
	arr := make([][]byte, keys)
	for i := range arr {
		arr[i] = []byte(strconv.FormatUint(rng.Uint64(), 10))
	}
	return arr
}()

func init() { runtime.GOMAXPROCS(runtime.NumCPU()) }

func BenchmarkBatchPromote(b *testing.B) {
	c := newTestCache(b)
	defer c.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := ds[i&(keys-1)]
		c.BatchPromote(context.Background(), []promotion.Item{{Tenant: tenant, Key: key, Value: value64Bytes, Version: 1}})
	}
}

func BenchmarkRead(b *testing.B) {
	c := newTestCache(b)
	defer c.Close()
	for _, k := range ds {
		c.BatchPromote(context.Background(), []promotion.Item{{Tenant: tenant, Key: k, Value: value64Bytes, Version: 1}})
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		c.Read(context.Background(), tenant, k, nil)
	}
}

func BenchmarkReadParallel(b *testing.B) {
	c := newTestCache(b)
	defer c.Close()
	for _, k := range ds {
		c.BatchPromote(context.Background(), []promotion.Item{{Tenant: tenant, Key: k, Value: value64Bytes, Version: 1}})
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		idx := rand.Intn(keys)
		for pb.Next() {
			idx = (idx + 1) & (keys - 1)
			c.Read(context.Background(), tenant, ds[idx], nil)
		}
	})
}

func BenchmarkReadAsyncRefresh(b *testing.B) {
	c := newTestCache(b)
	defer c.Close()
	c.RegisterTenant(tenant, hotcache.TenantOptions{HardCapBytes: capBytes, Weight: 1, Consistency: "async_refresh"})
	// Preload 90% of keys to simulate mixed hit/miss.
	for i, k := range ds {
		if i%10 != 0 {
			c.BatchPromote(context.Background(), []promotion.Item{{Tenant: tenant, Key: k, Value: value64Bytes, Version: 1}})
		}
	}
	var misses atomic.Uint64
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := ds[i&(keys-1)]
		res, _ := c.Read(context.Background(), tenant, k, nil)
		if res.Outcome == hotcache.OutcomeMiss {
			misses.Add(1)
		}
	}
	b.ReportMetric(float64(misses.Load())/float64(b.N)*100, "miss-%")
}
