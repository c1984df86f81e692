// loading_test.go: Get/GetAll/GetOrCompute single-flight loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGet_NoLoaderConfigured_ReturnsUnsupported(t *testing.T) {
	c, err := New[string, string](Config[string, string]{MaxSize: 10, Strategy: StrategyStrict})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	_, err = c.Get(context.Background(), "a")
	if !IsUnsupportedOperation(err) {
		t.Fatalf("expected an unsupported-operation error, got %v", err)
	}
}

func TestGet_LoadsOnMissThenHitsCache(t *testing.T) {
	loader := &countingLoader{value: "loaded"}
	c, err := New[string, string](Config[string, string]{
		MaxSize:  10,
		Strategy: StrategyStrict,
		Loader:   loader,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	v, err := c.Get(context.Background(), "a")
	if err != nil || v != "loaded" {
		t.Fatalf("expected (loaded, nil), got (%q, %v)", v, err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected 1 loader call, got %d", loader.calls.Load())
	}

	v, err = c.Get(context.Background(), "a")
	if err != nil || v != "loaded" {
		t.Fatalf("expected cached (loaded, nil) on second call, got (%q, %v)", v, err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected the second Get to hit the cache, not the loader; calls=%d", loader.calls.Load())
	}
}

// TestScenario_SingleFlightDeduplicatesConcurrentLoads is spec §8 scenario
// 3: 16 goroutines calling Get for the same missing key concurrently must
// result in exactly one loader invocation, with every caller observing the
// same loaded value.
func TestScenario_SingleFlightDeduplicatesConcurrentLoads(t *testing.T) {
	start := make(chan struct{})
	loader := &countingLoader{
		value: "shared",
		delayFn: func() {
			<-start
			time.Sleep(20 * time.Millisecond)
		},
	}
	c, err := New[string, string](Config[string, string]{
		MaxSize:  10,
		Strategy: StrategyStrict,
		Loader:   loader,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	const goroutines = 16
	var wg sync.WaitGroup
	results := make([]string, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "shared-key")
		}(i)
	}

	close(start) // release every goroutine's Load call (or wait) at once
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected the loader to be invoked exactly once under contention, got %d calls", loader.calls.Load())
	}
	for i := 0; i < goroutines; i++ {
		if errs[i] != nil || results[i] != "shared" {
			t.Errorf("goroutine %d: expected (shared, nil), got (%q, %v)", i, results[i], errs[i])
		}
	}
}

func TestGet_NegativeCaching(t *testing.T) {
	tp := newMockTimeProvider(0)
	loadErr := errors.New("upstream unavailable")
	loader := &countingLoader{err: loadErr}
	c, err := New[string, string](Config[string, string]{
		MaxSize:          10,
		Strategy:         StrategyStrict,
		Loader:           loader,
		NegativeCacheTTL: 5 * time.Second,
		TimeProvider:     tp,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if _, err := c.Get(context.Background(), "a"); err == nil {
		t.Fatal("expected the loader's failure to propagate")
	}
	if _, err := c.Get(context.Background(), "a"); err == nil {
		t.Fatal("expected the negative cache to replay the failure")
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected the loader to be called once while the negative entry is live, got %d", loader.calls.Load())
	}

	tp.Advance(6 * time.Second.Nanoseconds())
	if _, err := c.Get(context.Background(), "a"); err == nil {
		t.Fatal("expected the failure to still propagate past the negative TTL")
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected the loader to be retried once the negative entry expired, got %d calls", loader.calls.Load())
	}
}

type bulkLoader struct {
	countingLoader
	bulkCalls atomic.Int64
}

func (l *bulkLoader) LoadAll(_ context.Context, keys []string) (map[string]string, error) {
	l.bulkCalls.Add(1)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = "bulk-" + k
	}
	return out, nil
}

func TestGetAll_PrefersBulkLoaderWhenImplemented(t *testing.T) {
	loader := &bulkLoader{}
	c, err := New[string, string](Config[string, string]{
		MaxSize:  10,
		Strategy: StrategyStrict,
		Loader:   loader,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	got, err := c.GetAll(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 3 || got["a"] != "bulk-a" || got["b"] != "bulk-b" || got["c"] != "bulk-c" {
		t.Errorf("unexpected GetAll result: %+v", got)
	}
	if loader.bulkCalls.Load() != 1 {
		t.Errorf("expected exactly one bulk load call, got %d", loader.bulkCalls.Load())
	}
	if loader.calls.Load() != 0 {
		t.Errorf("expected the per-key Load path to be bypassed when BulkLoader is available, got %d calls", loader.calls.Load())
	}
}

func TestGetAll_FallsBackToParallelPerKeyLoads(t *testing.T) {
	loader := &countingLoader{value: "v"}
	c, err := New[string, string](Config[string, string]{
		MaxSize:  10,
		Strategy: StrategyStrict,
		Loader:   loader,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	got, err := c.GetAll(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 keys resolved, got %+v", got)
	}
	if loader.calls.Load() != 3 {
		t.Errorf("expected 3 independent loader calls, got %d", loader.calls.Load())
	}
}

func TestGetOrCompute_ComputesOnceAndCaches(t *testing.T) {
	c, err := New[string, string](Config[string, string]{MaxSize: 10, Strategy: StrategyStrict})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	var calls int
	compute := func() (string, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrCompute("a", compute)
	if err != nil || v != "computed" {
		t.Fatalf("expected (computed, nil), got (%q, %v)", v, err)
	}
	v, err = c.GetOrCompute("a", compute)
	if err != nil || v != "computed" {
		t.Fatalf("expected cached (computed, nil), got (%q, %v)", v, err)
	}
	if calls != 1 {
		t.Errorf("expected f to run exactly once, got %d", calls)
	}
}

func TestGetOrCompute_PanicBecomesError(t *testing.T) {
	c, err := New[string, string](Config[string, string]{MaxSize: 10, Strategy: StrategyStrict})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	_, err = c.GetOrCompute("a", func() (string, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected a panicking compute function to surface as an error")
	}
	if _, found := c.GetIfPresent("a"); found {
		t.Error("expected nothing cached for a compute that panicked")
	}
}
