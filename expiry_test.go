// expiry_test.go: expiration deadline computation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import "testing"

type fixedExpiry struct {
	createNanos, updateNanos, readNanos int64
}

func (f fixedExpiry) ExpireAfterCreate(_ string, _ int, _ int64) int64 { return f.createNanos }
func (f fixedExpiry) ExpireAfterUpdate(_ string, _ int, _ int64, _ int64) int64 {
	return f.updateNanos
}
func (f fixedExpiry) ExpireAfterRead(_ string, _ int, _ int64, _ int64) int64 { return f.readNanos }

func TestExpirationCalculator_FixedWriteTTL(t *testing.T) {
	c := newExpirationCalculator[string, int](int64(1000), 0, nil)
	if !c.active() {
		t.Fatal("expected active() true when expire-after-write is set")
	}
	deadline := c.onCreate("k", 1, 500)
	if deadline != 1500 {
		t.Errorf("expected deadline 1500, got %d", deadline)
	}
}

func TestExpirationCalculator_NoDimensionsInactive(t *testing.T) {
	c := newExpirationCalculator[string, int](0, 0, nil)
	if c.active() {
		t.Fatal("expected active() false with nothing configured")
	}
	if d := c.onCreate("k", 1, 500); d != 0 {
		t.Errorf("expected never-expire (0), got %d", d)
	}
}

func TestExpirationCalculator_CustomExpiryOverridesFixed(t *testing.T) {
	expiry := fixedExpiry{createNanos: 5000, updateNanos: 6000, readNanos: 7000}
	c := newExpirationCalculator[string, int](int64(1000), 0, expiry)

	if d := c.onCreate("k", 1, 0); d != 5000 {
		t.Errorf("expected custom create deadline 5000, got %d", d)
	}
	if d := c.onUpdate("k", 1, 0, 5000); d != 6000 {
		t.Errorf("expected custom update deadline 6000, got %d", d)
	}
	if d := c.onRead("k", 1, 0, 6000); d != 7000 {
		t.Errorf("expected custom read deadline 7000, got %d", d)
	}
}

func TestExpirationCalculator_CustomExpiryZeroMeansNever(t *testing.T) {
	expiry := fixedExpiry{createNanos: 0}
	c := newExpirationCalculator[string, int](int64(1000), 0, expiry)
	if d := c.onCreate("k", 1, 0); d != 0 {
		t.Errorf("expected a non-positive custom duration to mean never-expire, got %d", d)
	}
}

func TestExpirationCalculator_ExpireAfterAccessOnRead(t *testing.T) {
	c := newExpirationCalculator[string, int](0, int64(2000), nil)
	d := c.onRead("k", 1, 1000, 0)
	if d != 3000 {
		t.Errorf("expected read-driven deadline 3000, got %d", d)
	}
}

func TestExpirationCalculator_onUpdateFallsBackToWrite(t *testing.T) {
	c := newExpirationCalculator[string, int](int64(1000), 0, nil)
	d := c.onUpdate("k", 1, 5000, 4000)
	if d != 6000 {
		t.Errorf("expected update deadline to use expire-after-write, got %d", d)
	}
}
