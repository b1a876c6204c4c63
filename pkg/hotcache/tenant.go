package hotcache

import (
	"errors"
	"time"

	"github.com/hybridkv/hotcache/internal/policy"
	"github.com/hybridkv/hotcache/internal/policy/admission"
	"github.com/hybridkv/hotcache/internal/policy/eviction"
	"github.com/hybridkv/hotcache/internal/policy/hotness"
	"github.com/hybridkv/hotcache/internal/sketch"
)

// Consistency mirrors the tenant.<id>.consistency configuration option.
type Consistency int

const (
	ConsistencyStrict Consistency = iota
	ConsistencyBounded
	ConsistencyVersion
	ConsistencyAsyncRefresh
)

func parseConsistency(s string) (Consistency, error) {
	switch s {
	case "", "strict":
		return ConsistencyStrict, nil
	case "bounded":
		return ConsistencyBounded, nil
	case "version":
		return ConsistencyVersion, nil
	case "async_refresh":
		return ConsistencyAsyncRefresh, nil
	default:
		return 0, errUnknownConsistency
	}
}

var errUnknownConsistency = errors.New("hotcache: unknown consistency mode")
var errUnknownEviction = errors.New("hotcache: unknown eviction policy")
var errUnknownAdmission = errors.New("hotcache: unknown admission policy")

// TenantOptions is the subset of tenant.<id>.* configuration options a
// caller supplies through RegisterTenant or CONFIGURE.
type TenantOptions struct {
	HardCapBytes           int64
	MinGuaranteeBytes      int64
	Weight                 float64
	Priority               int
	Eviction               string // lru|lfu|slru|twoq|fifo
	Admission              string // threshold|tinylfu|size_aware
	Consistency            string // strict|bounded|version|async_refresh
	BoundedStalenessMillis int64
}

// tenantPolicies bundles the per-tenant instances selected from
// TenantOptions; pkg/hotcache's Cache owns one of these per registered
// tenant and never lets the arena, index, or governor's internal state
// leak into it — policies only ever see the EntryView abstraction.
type tenantPolicies struct {
	eviction          policy.Eviction
	admission         policy.Admission
	hotness           policy.Hotness
	consistency       Consistency
	boundedStaleness  time.Duration
}

func newTenantPolicies(opts TenantOptions, sk *sketch.Sketch) (*tenantPolicies, error) {
	consistency, err := parseConsistency(opts.Consistency)
	if err != nil {
		return nil, err
	}

	ev, err := newEvictionPolicy(opts.Eviction)
	if err != nil {
		return nil, err
	}

	hot := hotness.NewCMS(sk)
	adm, err := newAdmissionPolicy(opts.Admission, hot, sk, opts.HardCapBytes)
	if err != nil {
		return nil, err
	}

	return &tenantPolicies{
		eviction:         ev,
		admission:        adm,
		hotness:          hot,
		consistency:      consistency,
		boundedStaleness: time.Duration(opts.BoundedStalenessMillis) * time.Millisecond,
	}, nil
}

func newEvictionPolicy(name string) (policy.Eviction, error) {
	switch name {
	case "", "lru":
		return eviction.NewLRU(), nil
	case "lfu":
		return eviction.NewLFU(), nil
	case "slru":
		return eviction.NewSLRU(1 << 20), nil
	case "twoq":
		return eviction.NewTwoQ(1<<20, 4096), nil
	case "fifo":
		return eviction.NewFIFO(), nil
	default:
		return nil, errUnknownEviction
	}
}

func newAdmissionPolicy(name string, hot policy.Hotness, sk *sketch.Sketch, hardCap int64) (policy.Admission, error) {
	maxValue := hardCap
	if maxValue <= 0 {
		maxValue = DefaultTotalBytes
	}
	switch name {
	case "", "threshold":
		return admission.NewThreshold(hot, 1), nil
	case "tinylfu":
		return admission.NewTinyLFU(sk), nil
	case "size_aware":
		return admission.NewSizeAware(maxValue, admission.NewThreshold(hot, 1)), nil
	default:
		return nil, errUnknownAdmission
	}
}
