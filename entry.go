// entry.go: per-key cache record
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import "sync/atomic"

// entry holds one cached value plus the bookkeeping the eviction policies
// and expiration logic need. value is stored behind atomic.Value. Every
// replacement (Put, loader success, refresh) allocates a new *entry rather
// than mutating this one's value field, keeping weight immutable for the
// lifetime of the struct (the weight accounting in cache.go subtracts
// exactly the weight it added).
type entry[V any] struct {
	value atomic.Value // holds V

	keyHash uint64 // cached hash(key), read by the sketch and eviction sampler

	writeTime       atomic.Int64 // nanos at insert
	expireAt        atomic.Int64 // nanos; 0 means no expiration
	accessTime      atomic.Int64 // nanos at last read
	lastRefreshTime atomic.Int64 // nanos when the scheduler last started a refresh of this entry

	accessCount atomic.Int64 // frequency, bumped on every read

	weight int32 // immutable after construction
}

// newEntry builds an entry carrying value, stamped at now.
func newEntry[V any](value V, keyHash uint64, now int64, weight int32) *entry[V] {
	e := &entry[V]{keyHash: keyHash, weight: weight}
	e.value.Store(value)
	e.writeTime.Store(now)
	e.accessTime.Store(now)
	return e
}

// load returns the current value.
func (e *entry[V]) load() V {
	return e.value.Load().(V)
}

// touch records a read at now, bumping the access counter and timestamp.
func (e *entry[V]) touch(now int64) {
	e.accessTime.Store(now)
	e.accessCount.Add(1)
}

// isExpired reports whether e's expiration deadline has passed as of now.
// A zero deadline means "never expires".
func (e *entry[V]) isExpired(now int64) bool {
	deadline := e.expireAt.Load()
	return deadline != 0 && now >= deadline
}

// isEligibleForEviction reports whether e is old enough to be a size/weight
// eviction candidate. minAge guards against evicting an entry that was just
// inserted a moment ago, which would otherwise thrash under bursty writes
// (spec §3, §9 open question; see strictMinEvictionAge/fastMinEvictionAge).
func (e *entry[V]) isEligibleForEviction(now, minAge int64) bool {
	return now-e.writeTime.Load() >= minAge
}
