// loading.go: single-flight loading for cache misses
//
// This file implements Get/GetAll/GetOrCompute/Refresh, providing
// cache-aside loading with automatic deduplication of concurrent loads for
// the same key (spec §4.F).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package strata

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// inflightCall represents an in-flight loader call. done is closed when the
// loader completes, broadcasting to every waiter without spawning a
// goroutine per waiter. Kept per-cache (never global) to avoid leaking
// entries across unrelated Cache instances.
type inflightCall[V any] struct {
	wg   sync.WaitGroup
	val  atomic.Value // stores *resultWrapper[V]
	err  atomic.Value // stores *errorWrapper
	done chan struct{}
}

type resultWrapper[V any] struct{ value V }
type errorWrapper struct{ err error }

// negativeEntry caches a loader failure for NegativeCacheTTL, bounding
// repeated calls against a consistently failing key.
type negativeEntry struct {
	err      error
	expireAt int64
}

// Get returns the cached value for key, loading it through cfg.Loader on a
// miss. Concurrent misses for the same key share one loader execution.
func (e *engine[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	if e.cfg.Loader == nil {
		return zero, NewErrUnsupportedOperation("Get")
	}

	if value, found := e.GetIfPresent(key); found {
		return value, nil
	}

	if e.negativeTTL > 0 {
		if v, found := e.negativeCache.Load(key); found {
			neg := v.(negativeEntry)
			if e.now() <= neg.expireAt {
				return zero, neg.err
			}
			e.negativeCache.Delete(key)
		}
	}

	if err := ctx.Err(); err != nil {
		return zero, NewErrLoaderCancelled(key, err)
	}

	newFlight := &inflightCall[V]{done: make(chan struct{})}
	newFlight.wg.Add(1)

	actual, loaded := e.inflight.LoadOrStore(key, newFlight)
	flight := actual.(*inflightCall[V])

	if loaded {
		select {
		case <-flight.done:
			return e.flightResult(flight)
		case <-ctx.Done():
			return zero, NewErrLoaderCancelled(key, ctx.Err())
		}
	}

	defer func() {
		close(flight.done)
		flight.wg.Done()
		e.inflight.Delete(key)
	}()

	loadStart := e.now()
	loaderVal, loaderErr := e.runLoader(ctx, key)
	loadNanos := e.now() - loadStart
	if e.cfg.RecordStats {
		e.metrics.recordLoad(loadNanos, loaderErr == nil)
	}
	e.cfg.MetricsCollector.RecordLoad(loadNanos, loaderErr == nil)

	flight.val.Store(&resultWrapper[V]{value: loaderVal})
	flight.err.Store(&errorWrapper{err: loaderErr})

	if loaderErr == nil {
		e.Put(key, loaderVal)
	} else if e.negativeTTL > 0 {
		e.negativeCache.Store(key, negativeEntry{err: loaderErr, expireAt: e.now() + e.negativeTTL})
	}

	return loaderVal, loaderErr
}

func (e *engine[K, V]) flightResult(flight *inflightCall[V]) (V, error) {
	var zero V
	v, _ := flight.val.Load().(*resultWrapper[V])
	errW, _ := flight.err.Load().(*errorWrapper)
	if v != nil && errW != nil {
		return v.value, errW.err
	}
	return zero, nil
}

// runLoader invokes cfg.Loader with panic recovery.
func (e *engine[K, V]) runLoader(ctx context.Context, key K) (loaderVal V, loaderErr error) {
	defer func() {
		if r := recover(); r != nil {
			loaderErr = NewErrPanicRecovered("Get", r)
			e.cfg.Logger.Error("loader panicked", "key", key, "panic", r)
		}
	}()
	loaderVal, loaderErr = e.cfg.Loader.Load(ctx, key)
	switch {
	case loaderErr != nil:
		loaderErr = NewErrLoaderFailed(key, loaderErr)
	case isNilValue(loaderVal):
		loaderErr = NewErrLoaderReturnedNull(key)
	}
	return loaderVal, loaderErr
}

// isNilValue reports whether a loader's returned value is a literal nil for
// a reference-kind V (pointer, interface, slice, map, channel, func); value
// types (int, string, structs, ...) have no "null" to distinguish from a
// legitimate zero value, so they never trigger LoaderReturnedNull.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// GetAll resolves every key, loading any that are missing. If cfg.Loader
// also implements BulkLoader, the missing keys are loaded in one call;
// otherwise each missing key is loaded independently (sharing the same
// single-flight path as Get). Per-key loader failures are skipped.
func (e *engine[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	result := make(map[K]V, len(keys))
	var missing []K

	for _, k := range keys {
		if v, found := e.GetIfPresent(k); found {
			result[k] = v
		} else {
			missing = append(missing, k)
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	if e.cfg.Loader == nil {
		return result, NewErrUnsupportedOperation("GetAll")
	}

	if bulk, ok := e.cfg.Loader.(BulkLoader[K, V]); ok {
		loadStart := e.now()
		loaded, err := e.runBulkLoader(ctx, bulk, missing)
		loadNanos := e.now() - loadStart
		if e.cfg.RecordStats {
			e.metrics.recordLoad(loadNanos, err == nil)
		}
		e.cfg.MetricsCollector.RecordLoad(loadNanos, err == nil)
		if err != nil {
			return result, err
		}
		for k, v := range loaded {
			e.Put(k, v)
			result[k] = v
		}
		return result, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, k := range missing {
		wg.Add(1)
		go func(k K) {
			defer wg.Done()
			v, err := e.Get(ctx, k)
			if err == nil {
				mu.Lock()
				result[k] = v
				mu.Unlock()
			}
		}(k)
	}
	wg.Wait()

	return result, nil
}

func (e *engine[K, V]) runBulkLoader(ctx context.Context, bulk BulkLoader[K, V], keys []K) (loaded map[K]V, loaderErr error) {
	defer func() {
		if r := recover(); r != nil {
			loaderErr = NewErrPanicRecovered("GetAll", r)
			e.cfg.Logger.Error("bulk loader panicked", "panic", r)
		}
	}()
	loaded, loaderErr = bulk.LoadAll(ctx, keys)
	if loaderErr != nil {
		loaderErr = NewErrLoaderFailed(keys, loaderErr)
	}
	return loaded, loaderErr
}

// GetOrCompute returns the cached value for key, computing and storing it
// via f if absent. f is supplied per call, unlike the cache-wide Loader.
func (e *engine[K, V]) GetOrCompute(key K, f func() (V, error)) (V, error) {
	var zero V
	if f == nil {
		return zero, NewErrInvalidLoader()
	}
	if value, found := e.GetIfPresent(key); found {
		return value, nil
	}

	newFlight := &inflightCall[V]{done: make(chan struct{})}
	newFlight.wg.Add(1)

	actual, loaded := e.inflight.LoadOrStore(key, newFlight)
	flight := actual.(*inflightCall[V])

	if loaded {
		<-flight.done
		return e.flightResult(flight)
	}

	defer func() {
		close(flight.done)
		flight.wg.Done()
		e.inflight.Delete(key)
	}()

	var val V
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = NewErrPanicRecovered("GetOrCompute", r)
			}
		}()
		val, err = f()
	}()

	flight.val.Store(&resultWrapper[V]{value: val})
	flight.err.Store(&errorWrapper{err: err})

	if err == nil {
		e.Put(key, val)
		return val, nil
	}
	return zero, err
}

// Refresh asynchronously reloads key through cfg.Loader (using its Reload
// hook if present), replacing the cached value on success and retaining the
// prior value, logged, on failure (spec §4.G). The entry held for key at
// schedule time is captured here and carried through to refreshOne, which
// only commits the reloaded value if that entry is still current — a
// concurrent Put or competing refresh that has since replaced it wins, and
// the stale reload is discarded.
func (e *engine[K, V]) Refresh(key K) {
	if e.cfg.Loader == nil {
		return
	}
	hash := e.hashOf(key)
	scheduledEnt, _ := e.load(key, hash)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.refreshOne(key, hash, scheduledEnt)
	}()
}

func (e *engine[K, V]) refreshOne(key K, hash uint64, scheduledEnt *entry[V]) {
	ctx := context.Background()
	old, hadOld := e.GetIfPresent(key)

	var newVal V
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = NewErrPanicRecovered("Refresh", r)
			}
		}()
		if reloader, ok := e.cfg.Loader.(Reloader[K, V]); ok && hadOld {
			newVal, err = reloader.Reload(ctx, key, old)
		} else {
			newVal, err = e.cfg.Loader.Load(ctx, key)
		}
	}()

	if err != nil {
		e.cfg.Logger.Warn("refresh failed", "key", key, "error", err)
		if e.cfg.RefreshPolicy != nil {
			e.safeRefreshFailure(key, err)
		}
		return
	}

	if !e.putGuarded(key, newVal, true, scheduledEnt) {
		e.cfg.Logger.Warn("refresh discarded: entry changed since scheduling", "key", key)
		return
	}
	if e.cfg.RefreshPolicy != nil {
		e.safeRefreshSuccess(key, old, newVal)
	}
}

func (e *engine[K, V]) safeRefreshSuccess(key K, old, updated V) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("RefreshPolicy.OnRefreshSuccess panicked", "key", key, "panic", r)
		}
	}()
	e.cfg.RefreshPolicy.OnRefreshSuccess(key, old, updated)
}

func (e *engine[K, V]) safeRefreshFailure(key K, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("RefreshPolicy.OnRefreshFailure panicked", "key", key, "panic", r)
		}
	}()
	e.cfg.RefreshPolicy.OnRefreshFailure(key, err)
}
