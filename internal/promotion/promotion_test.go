package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/hybridkv/hotcache/internal/tracker"
	"github.com/hybridkv/hotcache/pkg/storeiface"
)

type fakeHeadroom struct{ room map[string]int64 }

func (f fakeHeadroom) Headroom(tenant string) (int64, error) { return f.room[tenant], nil }

type fakeStore struct{ records map[string]storeiface.Record }

func storeKey(tenant string, key []byte) string { return tenant + "/" + string(key) }

func (s fakeStore) Get(_ context.Context, tenant string, key []byte) (storeiface.Record, error) {
	r, ok := s.records[storeKey(tenant, key)]
	if !ok {
		return storeiface.Record{}, storeiface.ErrNotFound
	}
	return r, nil
}
func (s fakeStore) Put(context.Context, string, []byte, []byte) (uint64, error) { return 0, nil }
func (s fakeStore) Delete(context.Context, string, []byte) error               { return nil }
func (s fakeStore) Close() error                                               { return nil }

type fakePromoter struct {
	calls   int
	results []Result
}

func (p *fakePromoter) BatchPromote(_ context.Context, items []Item) []Result {
	p.calls++
	if p.results != nil {
		return p.results
	}
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{Tenant: it.Tenant, Key: it.Key, Accepted: true}
	}
	return out
}

func TestRunOnceSubmitsCandidatesWithinHeadroom(t *testing.T) {
	tr := tracker.New(nil, tracker.DefaultThresholds(1024))
	for i := 0; i < 200; i++ {
		tr.RecordRead("t1", 1, []byte("hot"), 64)
	}
	store := fakeStore{records: map[string]storeiface.Record{
		storeKey("t1", []byte("hot")): {Value: []byte("v"), Version: 3},
	}}
	headroom := fakeHeadroom{room: map[string]int64{"t1": 1 << 20}}
	promoter := &fakePromoter{}

	m := New(tr, store, headroom, promoter, 10, time.Second)
	n, err := m.RunOnce(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("accepted = %d, want 1", n)
	}
	if promoter.calls != 1 {
		t.Fatalf("BatchPromote calls = %d, want 1", promoter.calls)
	}
}

func TestRunOnceSkipsTenantWithNoHeadroom(t *testing.T) {
	tr := tracker.New(nil, tracker.DefaultThresholds(1024))
	for i := 0; i < 200; i++ {
		tr.RecordRead("t1", 1, []byte("hot"), 64)
	}
	store := fakeStore{records: map[string]storeiface.Record{
		storeKey("t1", []byte("hot")): {Value: []byte("v"), Version: 1},
	}}
	headroom := fakeHeadroom{room: map[string]int64{"t1": 0}}
	promoter := &fakePromoter{}

	m := New(tr, store, headroom, promoter, 10, time.Second)
	n, err := m.RunOnce(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 || promoter.calls != 0 {
		t.Fatalf("expected no submissions, got n=%d calls=%d", n, promoter.calls)
	}
}

func TestRejectedCandidateWeightDecays(t *testing.T) {
	tr := tracker.New(nil, tracker.DefaultThresholds(1024))
	for i := 0; i < 200; i++ {
		tr.RecordRead("t1", 1, []byte("hot"), 64)
	}
	store := fakeStore{records: map[string]storeiface.Record{
		storeKey("t1", []byte("hot")): {Value: []byte("v"), Version: 1},
	}}
	headroom := fakeHeadroom{room: map[string]int64{"t1": 1 << 20}}
	promoter := &fakePromoter{results: []Result{{Tenant: "t1", Key: []byte("hot"), Accepted: false}}}

	m := New(tr, store, headroom, promoter, 10, time.Second)
	m.RunOnce(context.Background(), time.Now())

	if w := m.weightFor("t1", []byte("hot")); w >= 1.0 {
		t.Fatalf("expected weight to decay below 1.0 after rejection, got %f", w)
	}
}
