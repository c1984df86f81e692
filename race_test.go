// race_test.go: concurrent correctness, meant to be run with -race
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestConcurrent_PutGetInvalidate(t *testing.T) {
	names := map[Strategy]string{StrategyFast: "fast", StrategyStrict: "strict"}
	for _, mode := range []Strategy{StrategyFast, StrategyStrict} {
		t.Run(names[mode], func(t *testing.T) {
			c, err := New[int, int](Config[int, int]{MaxSize: 200, Strategy: mode})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer c.Close()

			const goroutines = 32
			const opsPerGoroutine = 200

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < opsPerGoroutine; i++ {
						key := (g*opsPerGoroutine + i) % 500
						switch i % 4 {
						case 0:
							c.Put(key, key)
						case 1:
							c.GetIfPresent(key)
						case 2:
							c.Invalidate(key)
						case 3:
							c.Size()
						}
					}
				}(g)
			}
			wg.Wait()
		})
	}
}

func TestConcurrent_SingleFlightLoaderUnderContention(t *testing.T) {
	loader := &countingLoader{value: "v"}
	c, err := New[string, string](Config[string, string]{MaxSize: 100, Strategy: StrategyStrict, Loader: loader})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	const goroutines = 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", g%10)
			_, _ = c.Get(context.Background(), key)
		}(g)
	}
	wg.Wait()

	if loader.calls.Load() > 10 {
		t.Errorf("expected at most one loader call per distinct key (10), got %d", loader.calls.Load())
	}
}

func TestConcurrent_MetricsSnapshotDuringWrites(t *testing.T) {
	c, err := New[int, int](Config[int, int]{MaxSize: 100, Strategy: StrategyStrict, RecordStats: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Metrics()
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		c.Put(i%50, i)
		c.GetIfPresent(i % 50)
	}
	close(stop)
	wg.Wait()
}
