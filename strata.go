// strata.go: package-level constants
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

const (
	// Version of the strata cache library.
	Version = "v0.1.0-dev"

	// DefaultMaxSize is the default maximum number of entries.
	DefaultMaxSize = 10_000

	// DefaultWindowRatio is the default ratio of the admission window to
	// total capacity in the WindowTinyLFU policy.
	DefaultWindowRatio = 0.01 // 1%

	// DefaultProtectedRatio is the default share of the main cache (capacity
	// minus the window) reserved for the protected segment.
	DefaultProtectedRatio = 0.80 // 80%

	// DefaultCounterBits is the number of bits per counter in the frequency
	// sketch. Fixed at 4, matching the count-min sketch design in spec §3.
	DefaultCounterBits = 4

	// strictMinEvictionAge is the minimum entry age, in strict mode, before
	// it becomes eligible for size/weight eviction (spec §3, open question).
	strictMinEvictionAge = int64(1_000_000_000) // 1s in nanoseconds

	// fastMinEvictionAge is the fast-mode equivalent: zero, per spec §9.
	fastMinEvictionAge = int64(0)

	// evictionSampleSize is how many candidates fast mode samples before
	// picking the lowest-frequency victim (spec §4.C rationale).
	evictionSampleSize = 20

	// evictionMaxRetries bounds how many times a strict-mode eviction pass
	// retries when the policy's victim is too young to evict. The victim is
	// not re-queued, so each retry asks the policy for the same candidate;
	// no other candidate is tried before the pass gives up.
	evictionMaxRetries = 10

	// deferredEvictionBatch is how many fast-mode inserts occur between
	// eviction-loop invocations (spec §4.E).
	deferredEvictionBatch = 100

	// softOvershootRatio bounds how far fast mode may exceed its limit
	// between eviction passes (spec §4.E, §8 invariant).
	softOvershootRatio = 1.05

	// defaultCleanupInterval is how often the background sweeper scans for
	// expired entries when TTL is configured but no explicit interval is set.
	defaultCleanupInterval = int64(30 * 1_000_000_000) // 30s

	// defaultRefreshInterval mirrors spec §4.G's "default every 30s".
	defaultRefreshInterval = int64(30 * 1_000_000_000)

	// defaultIdleThreshold is the "idle entry" cutoff used by the metrics
	// snapshot's derived views (spec §4.I).
	defaultIdleThreshold = int64(5 * 60 * 1_000_000_000) // 5 minutes

	// readLockTimeout bounds how long a strict-mode read waits on a shard
	// lock before degrading to a miss (spec §5, Cancellation/timeouts).
	readLockTimeout = int64(1_000_000_000) // 1s
)
