// ttl_test.go: expire-after-write / expire-after-access lifecycle
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"testing"
	"time"
)

// TestScenario_ExpireAfterWrite is spec §8 scenario 2: a TTL-governed entry
// is present before the deadline and gone at/after it, with no access in
// between resetting the clock.
func TestScenario_ExpireAfterWrite(t *testing.T) {
	tp := newMockTimeProvider(0)
	c, err := New[string, int](Config[string, int]{
		MaxSize:          100,
		Strategy:         StrategyStrict,
		ExpireAfterWrite: 10 * time.Second,
		TimeProvider:     tp,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	c.Put("a", 1)

	tp.Advance(9 * time.Second.Nanoseconds())
	if _, found := c.GetIfPresent("a"); !found {
		t.Fatal("expected entry present just before expiration")
	}

	tp.Advance(2 * time.Second.Nanoseconds()) // total 11s, past the 10s TTL
	if _, found := c.GetIfPresent("a"); found {
		t.Fatal("expected entry expired after its write TTL elapsed")
	}
}

func TestExpireAfterAccess_ReadExtendsDeadline(t *testing.T) {
	tp := newMockTimeProvider(0)
	c, err := New[string, int](Config[string, int]{
		MaxSize:           100,
		Strategy:          StrategyStrict,
		ExpireAfterAccess: 10 * time.Second,
		TimeProvider:      tp,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	c.Put("a", 1)

	tp.Advance(9 * time.Second.Nanoseconds())
	if _, found := c.GetIfPresent("a"); !found {
		t.Fatal("expected entry present before the access TTL elapses")
	}

	// The read above should have pushed the deadline forward another 10s.
	tp.Advance(9 * time.Second.Nanoseconds())
	if _, found := c.GetIfPresent("a"); !found {
		t.Fatal("expected the read to have extended the expiration deadline")
	}

	tp.Advance(11 * time.Second.Nanoseconds())
	if _, found := c.GetIfPresent("a"); found {
		t.Fatal("expected entry expired after a full access TTL with no further reads")
	}
}

// TestExpiry_OverridesFixedTTLs exercises the per-entry Expiry hook taking
// precedence over ExpireAfterWrite when both are configured.
func TestExpiry_OverridesFixedTTLs(t *testing.T) {
	tp := newMockTimeProvider(0)
	expiry := fixedExpiry{createNanos: int64(5 * time.Second)}
	c, err := New[string, int](Config[string, int]{
		MaxSize:          100,
		Strategy:         StrategyStrict,
		ExpireAfterWrite: 100 * time.Second, // would otherwise keep it alive far longer
		Expiry:           expiry,
		TimeProvider:     tp,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	c.Put("a", 1)
	tp.Advance(6 * time.Second.Nanoseconds())

	if _, found := c.GetIfPresent("a"); found {
		t.Fatal("expected the Expiry hook's 5s create deadline to override the 100s write TTL")
	}
}

func TestTTL_ZeroMeansNeverExpires(t *testing.T) {
	tp := newMockTimeProvider(0)
	c, err := New[string, int](Config[string, int]{
		MaxSize:      100,
		Strategy:     StrategyStrict,
		TimeProvider: tp,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	c.Put("a", 1)
	tp.Advance(365 * 24 * int64(time.Hour))
	if _, found := c.GetIfPresent("a"); !found {
		t.Error("expected entry with no TTL configured to never expire")
	}
}
