// config.go: configuration for strata
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Config holds the construction-time parameters for a Cache[K, V]. It is a
// frozen record, not a builder: set fields directly and call Validate (or
// let New do it) before use.
type Config[K comparable, V any] struct {
	// MaxSize is the maximum number of entries the cache can hold. Must be
	// >= 0. If 0, it defaults to DefaultMaxSize, unless MaxWeight > 0, in
	// which case it stays 0 and the entry count is not bounded.
	MaxSize int

	// MaxWeight, if > 0, bounds the cache by the sum of Weigher-assigned
	// weights instead of entry count. Requires Weigher to be set.
	MaxWeight int

	// Weigher assigns a weight to each entry. Required if MaxWeight > 0.
	Weigher Weigher[K, V]

	// EvictionPolicy selects the {lru, fifo, lfu, window_tiny_lfu} strategy
	// used once MaxSize/MaxWeight is reached. Zero value is PolicyLRU;
	// DefaultConfig sets PolicyWindowTinyLFU.
	EvictionPolicy EvictionPolicy

	// Strategy selects the fast/strict concurrency trade-off (spec §4.H).
	// Default: StrategyFast.
	Strategy Strategy

	// WindowRatio is the ratio of the admission window to total capacity,
	// used only by PolicyWindowTinyLFU. Must be between 0.0 and 1.0.
	// Default: DefaultWindowRatio.
	WindowRatio float64

	// ProtectedRatio is the share of the main (non-window) segment reserved
	// for the protected sub-segment, used only by PolicyWindowTinyLFU.
	// Default: DefaultProtectedRatio.
	ProtectedRatio float64

	// CounterBits is normalized by Validate (DefaultCounterBits if outside
	// 1..8) but has no effect: the frequency sketch always uses 4-bit
	// counters.
	CounterBits int

	// ExpireAfterWrite is the fixed time-to-live measured from insertion.
	// If 0, entries don't expire by write age. Default: 0.
	ExpireAfterWrite time.Duration

	// ExpireAfterAccess is the fixed time-to-live measured from the last
	// read. If 0, entries don't expire by idle time. Default: 0.
	ExpireAfterAccess time.Duration

	// Expiry, if set, overrides ExpireAfterWrite/ExpireAfterAccess with a
	// per-entry computed expiration (spec §4.D).
	Expiry Expiry[K, V]

	// RefreshAfterWrite, if > 0, enables the background refresh scheduler
	// with a fixed interval (spec §4.G). When RefreshPolicy is also set, it
	// is the sweep period and the fallback interval for entries whose
	// policy call panics or returns a negative interval.
	RefreshAfterWrite time.Duration

	// RefreshPolicy, if set, overrides RefreshAfterWrite with a per-entry
	// computed refresh interval, optionally time-windowed.
	RefreshPolicy RefreshPolicy[K, V]

	// Loader, if set, backs Get/GetAll/Refresh with single-flight loading
	// (spec §4.F). Optional: GetIfPresent/Put/GetOrCompute work without it.
	Loader Loader[K, V]

	// NegativeCacheTTL caches a loader error for this duration, bounding
	// repeated calls against a consistently failing key. If 0, loader
	// errors are never cached. Default: 0.
	NegativeCacheTTL time.Duration

	// CleanupInterval is how often the background sweeper scans for
	// expired entries. Only used if an expiration dimension is configured.
	// Default: defaultCleanupInterval.
	CleanupInterval time.Duration

	// RemovalListener, if set, is notified synchronously whenever an entry
	// leaves the cache (spec §4.A/§5).
	RemovalListener RemovalListener[K, V]

	// PutListener, if set, is notified synchronously on every successful
	// insert/update.
	PutListener PutListener[K, V]

	// Writer, if set, is invoked synchronously on put/remove as a
	// write-through collaborator (spec §6).
	Writer Writer[K, V]

	// RecordStats enables the atomic hit/miss/load counters backing
	// Metrics(). Disabling it skips the associated atomic increments on the
	// hot path. Zero value is false (disabled); DefaultConfig sets it true.
	RecordStats bool

	// Logger is used to report swallowed user-callback failures. If nil,
	// NoOpLogger is used. Default: NoOpLogger.
	Logger Logger

	// TimeProvider supplies the current time for TTL/refresh calculations.
	// If nil, a cached-clock implementation is used. Default: system time.
	TimeProvider TimeProvider

	// MetricsCollector receives a push notification per operation, in
	// addition to the atomic counters behind Metrics(). If nil,
	// NoOpMetricsCollector is used (zero overhead). Default: NoOpMetricsCollector.
	MetricsCollector MetricsCollector

	// ShardCount overrides the number of lock shards used in strict mode.
	// Rounded up to a power of two. If <= 0, a default based on GOMAXPROCS
	// is used.
	ShardCount int
}

// Validate normalizes c in place, applying defaults, and returns an error
// only for settings that cannot be silently defaulted.
//
// Default values applied:
//   - MaxSize: DefaultMaxSize if 0 and MaxWeight <= 0
//   - WindowRatio: DefaultWindowRatio if <= 0 or >= 1
//   - ProtectedRatio: DefaultProtectedRatio if <= 0 or >= 1
//   - CounterBits: DefaultCounterBits if < 1 or > 8
//   - CleanupInterval: defaultCleanupInterval if an expiration dimension is
//     configured and CleanupInterval <= 0
//   - Logger: NoOpLogger{} if nil
//   - TimeProvider: systemTimeProvider{} if nil
//   - MetricsCollector: NoOpMetricsCollector{} if nil
//   - ShardCount: next power of two >= 2*GOMAXPROCS, minimum 16, if <= 0
func (c *Config[K, V]) Validate() error {
	if c.MaxWeight > 0 && c.Weigher == nil {
		return NewErrMissingWeigher()
	}

	if c.MaxSize < 0 {
		return NewErrInvalidMaxSize(c.MaxSize)
	}

	if c.MaxWeight <= 0 && c.MaxSize == 0 {
		c.MaxSize = DefaultMaxSize
	}

	if c.ExpireAfterWrite < 0 {
		return NewErrInvalidTTL(c.ExpireAfterWrite)
	}
	if c.ExpireAfterAccess < 0 {
		return NewErrInvalidTTL(c.ExpireAfterAccess)
	}

	if c.WindowRatio <= 0 || c.WindowRatio >= 1 {
		c.WindowRatio = DefaultWindowRatio
	}

	if c.ProtectedRatio <= 0 || c.ProtectedRatio >= 1 {
		c.ProtectedRatio = DefaultProtectedRatio
	}

	if c.CounterBits < 1 || c.CounterBits > 8 {
		c.CounterBits = DefaultCounterBits
	}

	hasExpiry := c.ExpireAfterWrite > 0 || c.ExpireAfterAccess > 0 || c.Expiry != nil
	if hasExpiry && c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Duration(defaultCleanupInterval)
	}

	if c.RefreshAfterWrite < 0 {
		return NewErrInvalidTTL(c.RefreshAfterWrite)
	}

	// A caller may build a TimeWindowRefreshPolicy by struct literal instead
	// of NewTimeWindowRefreshPolicy; re-validate its windows here so
	// overlapping windows are always caught at construction (spec §4.G).
	if tw, ok := c.RefreshPolicy.(*TimeWindowRefreshPolicy[K, V]); ok {
		if err := validateWindows(tw.Windows); err != nil {
			return err
		}
	}

	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}

	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}

	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}

	if c.ShardCount <= 0 {
		c.ShardCount = defaultShardCount()
	} else {
		c.ShardCount = nextPowerOf2(c.ShardCount)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults: bounded to
// DefaultMaxSize entries, W-TinyLFU eviction, fast strategy, stats on, no
// expiration and no loader.
func DefaultConfig[K comparable, V any]() Config[K, V] {
	return Config[K, V]{
		MaxSize:          DefaultMaxSize,
		EvictionPolicy:   PolicyWindowTinyLFU,
		Strategy:         StrategyFast,
		WindowRatio:      DefaultWindowRatio,
		ProtectedRatio:   DefaultProtectedRatio,
		CounterBits:      DefaultCounterBits,
		RecordStats:      true,
		Logger:           NoOpLogger{},
		TimeProvider:     &systemTimeProvider{},
		MetricsCollector: NoOpMetricsCollector{},
		ShardCount:       defaultShardCount(),
	}
}

// systemTimeProvider is the default time provider, backed by go-timecache's
// cached monotonic clock rather than a raw time.Now() call on every access.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}
