// config.go defines Cache's functional options: a plain config struct
// filled in by Option funcs, defaulted before options are applied and
// validated once in New. Knobs cover the total byte budget, watermarks,
// size ceilings, promotion cadence, and the authoritative store
// collaborator every cache instance needs.
package hotcache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hybridkv/hotcache/pkg/storeiface"
)

// Defaults for every cache-wide configuration option.
const (
	DefaultTotalBytes       = 256 << 20
	DefaultValueSizeMax     = 1024
	DefaultKeySizeMax       = 256
	DefaultSoftWatermark    = 0.80
	DefaultHardWatermark    = 1.00
	DefaultPromoteInterval  = 5 * time.Second
	DefaultHotRateMin       = 100.0
	DefaultReadRatioMin     = 0.90
	DefaultStaleGrace       = 5 * time.Second
	DefaultEventBufferSize  = 256
)

// config bundles every knob that influences Cache behaviour. Unexported:
// callers only ever shape it through Option.
type config struct {
	totalBytes      int64
	valueSizeMax    int64
	keySizeMax      int64
	softWatermark   float64
	hardWatermark   float64
	promoteInterval time.Duration
	hotRateMin      float64
	readRatioMin    float64
	staleGrace      time.Duration
	eventBufferSize int

	store    storeiface.Store
	logger   *zap.Logger
	registry *prometheus.Registry
	promoteTopK int
}

func defaultConfig() *config {
	return &config{
		totalBytes:      DefaultTotalBytes,
		valueSizeMax:    DefaultValueSizeMax,
		keySizeMax:      DefaultKeySizeMax,
		softWatermark:   DefaultSoftWatermark,
		hardWatermark:   DefaultHardWatermark,
		promoteInterval: DefaultPromoteInterval,
		hotRateMin:      DefaultHotRateMin,
		readRatioMin:    DefaultReadRatioMin,
		staleGrace:      DefaultStaleGrace,
		eventBufferSize: DefaultEventBufferSize,
		logger:          zap.NewNop(),
		promoteTopK:     64,
	}
}

// Option configures a Cache at construction time.
type Option func(*config)

// WithStore supplies the authoritative store collaborator. Required:
// New returns an error without one.
func WithStore(store storeiface.Store) Option {
	return func(c *config) { c.store = store }
}

// WithLogger plugs an external zap.Logger. The Cache stores it, but no
// code path of the cache writes to it.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil
// disables metrics (default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

// WithTotalBytes overrides cache.total_bytes.
func WithTotalBytes(n int64) Option {
	return func(c *config) { c.totalBytes = n }
}

// WithSizeCeilings overrides cache.key_size_max and cache.value_size_max.
func WithSizeCeilings(keyMax, valueMax int64) Option {
	return func(c *config) {
		c.keySizeMax = keyMax
		c.valueSizeMax = valueMax
	}
}

// WithWatermarks overrides cache.soft_watermark and cache.hard_watermark.
func WithWatermarks(soft, hard float64) Option {
	return func(c *config) {
		c.softWatermark = soft
		c.hardWatermark = hard
	}
}

// WithPromotionInterval overrides cache.promote_interval_ms and the
// number of candidates considered per promotion cycle.
func WithPromotionInterval(d time.Duration, topK int) Option {
	return func(c *config) {
		c.promoteInterval = d
		if topK > 0 {
			c.promoteTopK = topK
		}
	}
}

// WithHotKeyThresholds overrides cache.hot_rate_min and
// cache.read_ratio_min.
func WithHotKeyThresholds(minRate, minReadRatio float64) Option {
	return func(c *config) {
		c.hotRateMin = minRate
		c.readRatioMin = minReadRatio
	}
}

// WithStaleGrace overrides cache.stale_grace_ms.
func WithStaleGrace(d time.Duration) Option {
	return func(c *config) { c.staleGrace = d }
}

// WithEventBufferSize overrides the per-subscriber event channel buffer.
func WithEventBufferSize(n int) Option {
	return func(c *config) { c.eventBufferSize = n }
}
