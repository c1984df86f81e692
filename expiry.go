// expiry.go: expiration-deadline computation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import "sync/atomic"

// expirationCalculator computes the absolute nanosecond deadline for an
// entry, combining the cache-wide fixed TTL dimensions with an optional
// per-entry Expiry hook (spec §4.D). A non-positive duration from the hook
// means "never". A panic raised by the Expiry implementation is not
// recovered: it propagates to the Put or GetIfPresent call that invoked it.
//
// The two fixed dimensions are held in atomic.Int64 rather than plain int64
// so HotConfig (hotreload.go) can swap them on a live cache without
// reconstruction (spec §6).
type expirationCalculator[K comparable, V any] struct {
	expireAfterWrite  atomic.Int64 // nanoseconds, 0 means unset
	expireAfterAccess atomic.Int64
	expiry            Expiry[K, V]
}

func newExpirationCalculator[K comparable, V any](expireAfterWrite, expireAfterAccess int64, expiry Expiry[K, V]) *expirationCalculator[K, V] {
	c := &expirationCalculator[K, V]{expiry: expiry}
	c.expireAfterWrite.Store(expireAfterWrite)
	c.expireAfterAccess.Store(expireAfterAccess)
	return c
}

// active reports whether any expiration dimension is configured.
func (c *expirationCalculator[K, V]) active() bool {
	return c.expireAfterWrite.Load() > 0 || c.expireAfterAccess.Load() > 0 || c.expiry != nil
}

// onCreate returns the deadline (absolute nanos, 0 = never) for a newly
// inserted entry.
func (c *expirationCalculator[K, V]) onCreate(key K, value V, now int64) int64 {
	if c.expiry != nil {
		if d := c.expiry.ExpireAfterCreate(key, value, now); d > 0 {
			return now + d
		}
		return 0
	}
	deadline := int64(0)
	if w := c.expireAfterWrite.Load(); w > 0 {
		deadline = now + w
	}
	if a := c.expireAfterAccess.Load(); a > 0 && (deadline == 0 || now+a < deadline) {
		deadline = now + a
	}
	return deadline
}

// onUpdate returns the deadline for an entry replaced by Put or a loader.
func (c *expirationCalculator[K, V]) onUpdate(key K, value V, now, currentDeadline int64) int64 {
	if c.expiry != nil {
		var currentDuration int64
		if currentDeadline > 0 {
			currentDuration = currentDeadline - now
		}
		if d := c.expiry.ExpireAfterUpdate(key, value, now, currentDuration); d > 0 {
			return now + d
		}
		return 0
	}
	// Without an Expiry hook an update starts the fixed dimensions afresh,
	// exactly as an insert does.
	return c.onCreate(key, value, now)
}

// onRead returns the (possibly unchanged) deadline after a read, applying
// ExpireAfterAccess / the Expiry hook's read-driven extension.
func (c *expirationCalculator[K, V]) onRead(key K, value V, now, currentDeadline int64) int64 {
	if c.expiry != nil {
		var currentDuration int64
		if currentDeadline > 0 {
			currentDuration = currentDeadline - now
		}
		if d := c.expiry.ExpireAfterRead(key, value, now, currentDuration); d > 0 {
			return now + d
		}
		return currentDeadline
	}
	if a := c.expireAfterAccess.Load(); a > 0 {
		return now + a
	}
	return currentDeadline
}
