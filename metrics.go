// metrics.go: cache statistics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import "sync/atomic"

// metricsState holds the atomic counters backing Metrics(), generalized
// from the teacher's CacheStats fields (cache.go) with load-success,
// load-failure and total-load-time counters the teacher does not track.
type metricsState struct {
	hits         atomic.Int64
	misses       atomic.Int64
	loadSuccess  atomic.Int64
	loadFailure  atomic.Int64
	loadNanos    atomic.Int64
	evictions    atomic.Int64
	evictExplicit atomic.Int64
	evictReplaced atomic.Int64
	evictSize     atomic.Int64
	evictExpired  atomic.Int64
}

func newMetricsState() *metricsState { return &metricsState{} }

func (m *metricsState) recordHit()    { m.hits.Add(1) }
func (m *metricsState) recordMiss()   { m.misses.Add(1) }

func (m *metricsState) recordLoad(nanos int64, success bool) {
	m.loadNanos.Add(nanos)
	if success {
		m.loadSuccess.Add(1)
	} else {
		m.loadFailure.Add(1)
	}
}

func (m *metricsState) recordEviction(cause RemovalCause) {
	m.evictions.Add(1)
	switch cause {
	case CauseExplicit:
		m.evictExplicit.Add(1)
	case CauseReplaced:
		m.evictReplaced.Add(1)
	case CauseSize:
		m.evictSize.Add(1)
	case CauseExpired:
		m.evictExpired.Add(1)
	}
}

// MetricsSnapshot is a read-only, point-in-time view of a cache's
// statistics (spec §4.I), with derived fields computed at snapshot time
// rather than maintained incrementally.
type MetricsSnapshot struct {
	Hits          int64
	Misses        int64
	LoadSuccesses int64
	LoadFailures  int64
	TotalLoadTime int64 // nanoseconds, summed across all loads
	Evictions     int64

	EvictionsExplicit int64
	EvictionsReplaced int64
	EvictionsBySize   int64
	EvictionsExpired  int64

	Size int

	// IdleEntries is the count of entries not read within
	// defaultIdleThreshold, a fixed 5 minutes (derived view, spec §4.I).
	IdleEntries int

	// ExpiryHistogram buckets live entries by remaining time-to-live:
	// "<1m", "<5m", "<15m", "<1h", "<24h", ">=24h", "never".
	ExpiryHistogram map[string]int

	// EstimatedByteCost is a rough memory-cost estimate, not a precise
	// measurement (spec §9 Design Notes: "only a hook need exist").
	EstimatedByteCost int64
}

// HitRate returns Hits / (Hits + Misses), or 1.0 if there have been no
// lookups yet (spec §4.I).
func (s MetricsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 1.0
	}
	return float64(s.Hits) / float64(total)
}

// MissRate returns Misses / (Hits + Misses), or 0 if there have been no
// lookups yet.
func (s MetricsSnapshot) MissRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Misses) / float64(total)
}

// AverageLoadPenalty returns the average nanoseconds spent per load call
// (success or failure), or 0 if no loads have occurred.
func (s MetricsSnapshot) AverageLoadPenalty() float64 {
	total := s.LoadSuccesses + s.LoadFailures
	if total == 0 {
		return 0
	}
	return float64(s.TotalLoadTime) / float64(total)
}
