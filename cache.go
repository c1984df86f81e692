// cache.go: the cache engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package strata

import (
	"context"
	"hash/maphash"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// engine is the concrete Cache[K, V] implementation. It runs in one of two
// modes (spec §4.H): fast mode stores entries in a sync.Map and evicts by
// sampling, trading eviction precision for wait-free reads; strict mode
// stores entries in a fixed table of RWMutex-guarded shards and evicts via
// the configured policy precisely, trading some throughput for exact
// ordering and bounded-wait reads that degrade to a miss under contention.
type engine[K comparable, V any] struct {
	cfg     Config[K, V]
	seed    maphash.Seed
	expiry  *expirationCalculator[K, V]
	metrics *metricsState

	negativeTTL   int64
	inflight      sync.Map // K -> *inflightCall[V]
	negativeCache sync.Map // K -> negativeEntry

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	refresher *refreshScheduler[K, V]

	// fast mode
	fastIndex  sync.Map // K -> *entry[V]
	fastCount  atomic.Int64
	fastWeight atomic.Int64
	fastSketch *frequencySketch
	fastPuts   atomic.Int64 // puts since the last eviction pass

	// strict mode
	shards    []*shard[K, V]
	shardMask uint64
	policyMu  sync.Mutex
	policy    evictionPolicy[K]

	maxSize   int
	maxWeight int
}

// shard is one partition of the strict-mode index: an RWMutex-guarded map,
// the sanctioned equivalent of a per-key lock (spec Design Notes §9).
type shard[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]*entry[V]
}

// New constructs a Cache[K, V] from cfg, normalizing it with Validate first.
func New[K comparable, V any](cfg Config[K, V]) (Cache[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine[K, V]{
		cfg:       cfg,
		seed:      maphash.MakeSeed(),
		metrics:   newMetricsState(),
		stopCh:    make(chan struct{}),
		maxSize:   cfg.MaxSize,
		maxWeight: cfg.MaxWeight,
	}

	e.expiry = newExpirationCalculator[K, V](int64(cfg.ExpireAfterWrite), int64(cfg.ExpireAfterAccess), cfg.Expiry)
	e.negativeTTL = int64(cfg.NegativeCacheTTL)

	if cfg.Strategy == StrategyStrict {
		e.shards = make([]*shard[K, V], cfg.ShardCount)
		for i := range e.shards {
			e.shards[i] = &shard[K, V]{data: make(map[K]*entry[V])}
		}
		e.shardMask = uint64(cfg.ShardCount - 1)
		e.policy = newEvictionPolicyFor(cfg)
	} else {
		e.fastSketch = newFrequencySketch(maxInt(cfg.MaxSize, 64))
	}

	if cfg.RefreshAfterWrite > 0 || cfg.RefreshPolicy != nil {
		e.refresher = newRefreshScheduler[K, V](int64(cfg.RefreshAfterWrite), cfg.RefreshPolicy)
		e.wg.Add(1)
		go e.refresher.run(e)
	}

	if e.expiry.active() {
		e.wg.Add(1)
		go e.cleanupLoop(durationOrDefault(cfg.CleanupInterval, defaultCleanupInterval))
	}

	return e, nil
}

// newEvictionPolicyFor builds the strict-mode eviction policy matching
// cfg.EvictionPolicy (spec §4.C).
func newEvictionPolicyFor[K comparable, V any](cfg Config[K, V]) evictionPolicy[K] {
	switch cfg.EvictionPolicy {
	case PolicyFIFO:
		return newFIFOPolicy[K]()
	case PolicyLFU:
		sketch := newFrequencySketch(maxInt(cfg.MaxSize, 64))
		return newLFUPolicyWithSketch[K](sketch)
	case PolicyWindowTinyLFU:
		return newWindowTinyLFUPolicy[K](maxInt(cfg.MaxSize, 1), cfg.WindowRatio, cfg.ProtectedRatio, cfg.CounterBits)
	default:
		return newLRUPolicy[K]()
	}
}

func durationOrDefault(d time.Duration, fallbackNanos int64) time.Duration {
	if d > 0 {
		return d
	}
	return time.Duration(fallbackNanos)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func defaultShardCount() int {
	n := nextPowerOf2(2 * runtime.GOMAXPROCS(0))
	if n < 16 {
		n = 16
	}
	return n
}

func (e *engine[K, V]) now() int64 { return e.cfg.TimeProvider.Now() }

func (e *engine[K, V]) hashOf(key K) uint64 { return maphash.Comparable(e.seed, key) }

func (e *engine[K, V]) shardFor(hash uint64) *shard[K, V] {
	return e.shards[hash&e.shardMask]
}

// GetIfPresent returns the value for key without invoking a loader.
func (e *engine[K, V]) GetIfPresent(key K) (V, bool) {
	var zero V
	hash := e.hashOf(key)
	now := e.now()

	ent, ok := e.load(key, hash)
	if !ok {
		e.recordGet(false)
		return zero, false
	}

	if ent.isExpired(now) {
		e.removeEntry(key, hash, ent, CauseExpired)
		e.recordGet(false)
		return zero, false
	}

	ent.touch(now)
	if e.expiry.active() {
		newDeadline := e.expiry.onRead(key, ent.load(), now, ent.expireAt.Load())
		ent.expireAt.Store(newDeadline)
	}

	if e.cfg.Strategy == StrategyStrict {
		e.policyMu.Lock()
		e.policy.access(key, hash)
		e.policyMu.Unlock()
	} else {
		e.fastSketch.increment(hash)
	}

	e.recordGet(true)
	return ent.load(), true
}

func (e *engine[K, V]) recordGet(hit bool) {
	if e.cfg.RecordStats {
		if hit {
			e.metrics.recordHit()
		} else {
			e.metrics.recordMiss()
		}
	}
	e.cfg.MetricsCollector.RecordGet(0, hit)
}

// GetAllPresent returns the subset of keys currently cached.
func (e *engine[K, V]) GetAllPresent(keys []K) map[K]V {
	result := make(map[K]V, len(keys))
	for _, k := range keys {
		if v, found := e.GetIfPresent(k); found {
			result[k] = v
		}
	}
	return result
}

// load fetches the raw entry for key, honoring strict mode's bounded-wait
// read (spec §5): if the shard lock can't be acquired within
// readLockTimeout, the read degrades to a miss rather than blocking.
func (e *engine[K, V]) load(key K, hash uint64) (*entry[V], bool) {
	if e.cfg.Strategy == StrategyStrict {
		s := e.shardFor(hash)
		if !tryRLockWithTimeout(&s.mu, time.Duration(readLockTimeout)) {
			e.cfg.Logger.Warn("strict read lock timed out", "error", NewErrInterruptedWait(key))
			return nil, false
		}
		defer s.mu.RUnlock()
		ent, ok := s.data[key]
		return ent, ok
	}

	v, ok := e.fastIndex.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*entry[V]), true
}

// tryRLockWithTimeout attempts mu.TryRLock in a short spin/backoff loop,
// bounded by timeout.
func tryRLockWithTimeout(mu *sync.RWMutex, timeout time.Duration) bool {
	if mu.TryRLock() {
		return true
	}
	deadline := time.Now().Add(timeout)
	backoff := time.Microsecond
	for time.Now().Before(deadline) {
		if mu.TryRLock() {
			return true
		}
		time.Sleep(backoff)
		if backoff < time.Millisecond {
			backoff *= 2
		}
	}
	return false
}

// Put stores value under key, replacing any prior value.
func (e *engine[K, V]) Put(key K, value V) {
	e.putGuarded(key, value, false, nil)
}

// putGuarded is Put's full implementation, optionally gated by a
// compare-and-swap against expectEnt. When requireMatch is true and
// expectEnt is non-nil, the store only commits if the entry currently held
// for key is still identical (by pointer) to expectEnt; otherwise it is
// refused and putGuarded returns false without touching the cache. This is
// the hook refreshOne uses to implement spec §4.G's refresh guard: a
// refresh scheduled against a given entry must not clobber a newer
// Put/refresh that has since replaced it.
func (e *engine[K, V]) putGuarded(key K, value V, requireMatch bool, expectEnt *entry[V]) bool {
	hash := e.hashOf(key)
	now := e.now()

	weight := int32(1)
	if e.cfg.Weigher != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.cfg.Logger.Error("Weigher panicked", "key", key, "panic", r)
					weight = 1
				}
			}()
			weight = int32(e.cfg.Weigher.Weigh(key, value))
		}()
	}

	ne := newEntry[V](value, hash, now, weight)

	var cause PutCause
	var replaced *entry[V]

	if e.cfg.Strategy == StrategyStrict {
		s := e.shardFor(hash)
		s.mu.Lock()
		old, existed := s.data[key]
		if requireMatch && expectEnt != nil && old != expectEnt {
			s.mu.Unlock()
			return false
		}
		s.data[key] = ne
		s.mu.Unlock()

		if existed {
			cause, replaced = CauseUpdate, old
		} else {
			cause = CauseInsert
		}

		e.policyMu.Lock()
		if existed {
			e.policy.access(key, hash)
		} else {
			e.policy.add(key, hash)
		}
		e.policyMu.Unlock()
	} else {
		if requireMatch && expectEnt != nil {
			if !e.fastIndex.CompareAndSwap(key, expectEnt, ne) {
				return false
			}
			cause, replaced = CauseUpdate, expectEnt
		} else {
			old, existed := e.fastIndex.Swap(key, ne)
			if existed {
				cause, replaced = CauseUpdate, old.(*entry[V])
			} else {
				cause = CauseInsert
				e.fastCount.Add(1)
			}
		}
		e.fastSketch.increment(hash)
	}

	if replaced != nil {
		deadline := e.expiry.onUpdate(key, value, now, replaced.expireAt.Load())
		ne.expireAt.Store(deadline)
		e.fireRemoval(key, replaced.load(), CauseReplaced)
		if e.cfg.Weigher != nil {
			e.addWeight(-int64(replaced.weight))
		}
	} else {
		deadline := e.expiry.onCreate(key, value, now)
		ne.expireAt.Store(deadline)
	}

	if e.cfg.Weigher != nil {
		e.addWeight(int64(weight))
	}

	e.firePut(key, value, cause)
	e.writeThrough(key, value)

	e.recordPut()
	e.enforceCapacity(key, hash)
	return true
}

func (e *engine[K, V]) addWeight(delta int64) {
	e.fastWeight.Add(delta)
}

func (e *engine[K, V]) recordPut() {
	e.cfg.MetricsCollector.RecordPut(0)
}

func (e *engine[K, V]) writeThrough(key K, value V) {
	if e.cfg.Writer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("Writer.Write panicked", "key", key, "panic", r)
		}
	}()
	if err := e.cfg.Writer.Write(context.Background(), key, value); err != nil {
		e.cfg.Logger.Warn("write-through failed", "key", key, "error", err)
	}
}

// PutAll stores every entry in values, as repeated calls to Put.
func (e *engine[K, V]) PutAll(values map[K]V) {
	for k, v := range values {
		e.Put(k, v)
	}
}

// Invalidate removes key, firing CauseExplicit if it was present.
func (e *engine[K, V]) Invalidate(key K) {
	hash := e.hashOf(key)
	if ent, ok := e.load(key, hash); ok {
		e.removeEntry(key, hash, ent, CauseExplicit)
		e.recordInvalidate()
	}
}

// InvalidateAll removes every key in keys.
func (e *engine[K, V]) InvalidateAll(keys []K) {
	for _, k := range keys {
		e.Invalidate(k)
	}
}

// InvalidateAllEntries removes every entry currently in the cache.
func (e *engine[K, V]) InvalidateAllEntries() {
	if e.cfg.Strategy == StrategyStrict {
		for _, s := range e.shards {
			s.mu.Lock()
			old := s.data
			s.data = make(map[K]*entry[V])
			s.mu.Unlock()
			for k, ent := range old {
				e.fireRemoval(k, ent.load(), CauseExplicit)
				e.recordInvalidate()
			}
		}
		e.policyMu.Lock()
		e.policy = newEvictionPolicyFor(e.cfg)
		e.policyMu.Unlock()
	} else {
		e.fastIndex.Range(func(k, v interface{}) bool {
			e.fastIndex.Delete(k)
			e.fireRemoval(k.(K), v.(*entry[V]).load(), CauseExplicit)
			e.recordInvalidate()
			return true
		})
		e.fastCount.Store(0)
		e.fastWeight.Store(0)
	}
}

func (e *engine[K, V]) recordInvalidate() {
	e.cfg.MetricsCollector.RecordInvalidate(0)
}

// removeEntry deletes key's entry from the index/policy and fires the
// removal listener with cause.
func (e *engine[K, V]) removeEntry(key K, hash uint64, ent *entry[V], cause RemovalCause) {
	if e.cfg.Strategy == StrategyStrict {
		s := e.shardFor(hash)
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()

		e.policyMu.Lock()
		e.policy.remove(key)
		e.policyMu.Unlock()
	} else {
		e.fastIndex.Delete(key)
		e.fastCount.Add(-1)
	}

	if e.cfg.Weigher != nil {
		e.addWeight(-int64(ent.weight))
	}

	if cause != CauseReplaced {
		e.fireRemoval(key, ent.load(), cause)
		e.deleteThrough(key, ent.load(), cause)
	}

	if e.cfg.RecordStats {
		e.metrics.recordEviction(cause)
	}
	e.cfg.MetricsCollector.RecordEviction(cause)
}

func (e *engine[K, V]) deleteThrough(key K, value V, cause RemovalCause) {
	if e.cfg.Writer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("Writer.Delete panicked", "key", key, "panic", r)
		}
	}()
	if err := e.cfg.Writer.Delete(context.Background(), key, value, cause); err != nil {
		e.cfg.Logger.Warn("delete-through failed", "key", key, "error", err)
	}
}

func (e *engine[K, V]) fireRemoval(key K, value V, cause RemovalCause) {
	if e.cfg.RemovalListener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("RemovalListener panicked", "key", key, "panic", r)
		}
	}()
	e.cfg.RemovalListener.OnRemoval(key, value, cause)
}

func (e *engine[K, V]) firePut(key K, value V, cause PutCause) {
	if e.cfg.PutListener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("PutListener panicked", "key", key, "panic", r)
		}
	}()
	e.cfg.PutListener.OnPut(key, value, cause)
}

// Size returns the current number of entries.
func (e *engine[K, V]) Size() int {
	if e.cfg.Strategy == StrategyStrict {
		total := 0
		for _, s := range e.shards {
			s.mu.RLock()
			total += len(s.data)
			s.mu.RUnlock()
		}
		return total
	}
	return int(e.fastCount.Load())
}

// AsMap returns a point-in-time snapshot of all non-expired entries.
func (e *engine[K, V]) AsMap() map[K]V {
	now := e.now()
	out := make(map[K]V)
	e.forEachEntry(func(k K, ent *entry[V]) {
		if !ent.isExpired(now) {
			out[k] = ent.load()
		}
	})
	return out
}

// forEachEntry visits every entry currently in the index. Used by AsMap,
// CleanUp, the refresh scheduler, and Metrics' derived views.
func (e *engine[K, V]) forEachEntry(f func(K, *entry[V])) {
	if e.cfg.Strategy == StrategyStrict {
		for _, s := range e.shards {
			s.mu.RLock()
			type kv struct {
				k K
				e *entry[V]
			}
			snapshot := make([]kv, 0, len(s.data))
			for k, ent := range s.data {
				snapshot = append(snapshot, kv{k, ent})
			}
			s.mu.RUnlock()
			for _, item := range snapshot {
				f(item.k, item.e)
			}
		}
		return
	}

	e.fastIndex.Range(func(k, v interface{}) bool {
		f(k.(K), v.(*entry[V]))
		return true
	})
}

// CleanUp forces an expiration sweep of the index.
func (e *engine[K, V]) CleanUp() {
	now := e.now()
	var expired []K
	e.forEachEntry(func(k K, ent *entry[V]) {
		if ent.isExpired(now) {
			expired = append(expired, k)
		}
	})
	for _, k := range expired {
		hash := e.hashOf(k)
		if ent, ok := e.load(k, hash); ok && ent.isExpired(now) {
			e.removeEntry(k, hash, ent, CauseExpired)
		}
	}
}

func (e *engine[K, V]) cleanupLoop(interval time.Duration) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.CleanUp()
		}
	}
}

// enforceCapacity evicts entries until the configured size/weight bound is
// satisfied (spec §4.E). Fast mode samples a bounded number of candidates
// from the index and evicts the coldest (by sketch frequency); strict mode
// asks the configured policy for its precise victim.
func (e *engine[K, V]) enforceCapacity(candidateKey K, candidateHash uint64) {
	if e.cfg.Strategy == StrategyStrict {
		e.enforceCapacityStrict(candidateKey, candidateHash)
		return
	}

	// Fast mode reconciles eviction every deferredEvictionBatch inserts
	// instead of on every Put, trading a bounded overshoot for fewer
	// index scans on the hot path (spec §4.E).
	if e.fastPuts.Add(1)%deferredEvictionBatch != 0 && !e.overCapacity() {
		return
	}
	e.enforceCapacityFast()
}

func (e *engine[K, V]) overCapacity() bool {
	if e.maxWeight > 0 {
		return e.fastWeight.Load() > int64(e.maxWeight)
	}
	return e.Size() > e.maxSize
}

func (e *engine[K, V]) enforceCapacityStrict(candidateKey K, candidateHash uint64) {
	minAge := strictMinEvictionAge
	retries := 0
	for e.overCapacity() && retries < evictionMaxRetries {
		e.policyMu.Lock()
		victim, ok := e.policy.victim()
		prober, proberOK := e.policy.(admissionProber)
		e.policyMu.Unlock()
		if !ok {
			return
		}
		hash := e.hashOf(victim)

		if proberOK && victim != candidateKey && prober.estimate(candidateHash) <= prober.estimate(hash) {
			// TinyLFU admission filter: the candidate is colder than the
			// probation victim it would have displaced, so it is evicted
			// in the victim's place and the victim is left untouched.
			if candEnt, found := e.load(candidateKey, candidateHash); found {
				e.removeEntry(candidateKey, candidateHash, candEnt, CauseSize)
			}
			return
		}

		ent, found := e.load(victim, hash)
		if !found {
			e.policyMu.Lock()
			e.policy.remove(victim)
			e.policyMu.Unlock()
			continue
		}
		if !ent.isEligibleForEviction(e.now(), minAge) {
			retries++
			continue
		}
		e.removeEntry(victim, hash, ent, CauseSize)
	}
}

// enforceCapacityFast samples evictionSampleSize candidates from the index
// and evicts the one with the lowest frequency-sketch estimate, trading
// precise LRU/LFU ordering for a lock-free hot path (spec §4.H). It
// tolerates exceeding the configured bound by up to softOvershootRatio
// between passes.
func (e *engine[K, V]) enforceCapacityFast() {
	limit := int64(e.maxSize)
	if e.maxWeight > 0 {
		limit = int64(e.maxWeight)
	}
	softLimit := int64(float64(limit) * softOvershootRatio)

	current := e.fastCount.Load()
	if e.maxWeight > 0 {
		current = e.fastWeight.Load()
	}
	if current <= softLimit {
		return
	}

	minAge := fastMinEvictionAge
	now := e.now()

	type candidate struct {
		key  K
		hash uint64
		ent  *entry[V]
	}
	var sample []candidate

	e.fastIndex.Range(func(k, v interface{}) bool {
		ent := v.(*entry[V])
		sample = append(sample, candidate{key: k.(K), hash: ent.keyHash, ent: ent})
		return len(sample) < evictionSampleSize
	})

	var worst *candidate
	var worstFreq uint64
	for i := range sample {
		c := &sample[i]
		if !c.ent.isEligibleForEviction(now, minAge) {
			continue
		}
		f := e.fastSketch.estimate(c.hash)
		if worst == nil || f < worstFreq {
			worst, worstFreq = c, f
		}
	}

	if worst != nil {
		e.removeEntry(worst.key, worst.hash, worst.ent, CauseSize)
	}
}

// Metrics returns a read-only snapshot of the cache's statistics.
func (e *engine[K, V]) Metrics() MetricsSnapshot {
	now := e.now()
	snap := MetricsSnapshot{
		Hits:              e.metrics.hits.Load(),
		Misses:            e.metrics.misses.Load(),
		LoadSuccesses:     e.metrics.loadSuccess.Load(),
		LoadFailures:      e.metrics.loadFailure.Load(),
		TotalLoadTime:     e.metrics.loadNanos.Load(),
		Evictions:         e.metrics.evictions.Load(),
		EvictionsExplicit: e.metrics.evictExplicit.Load(),
		EvictionsReplaced: e.metrics.evictReplaced.Load(),
		EvictionsBySize:   e.metrics.evictSize.Load(),
		EvictionsExpired:  e.metrics.evictExpired.Load(),
		ExpiryHistogram:   map[string]int{"<1m": 0, "<5m": 0, "<15m": 0, "<1h": 0, "<24h": 0, ">=24h": 0, "never": 0},
	}

	var idle, size int
	var byteCost int64
	e.forEachEntry(func(k K, ent *entry[V]) {
		size++
		if now-ent.accessTime.Load() >= defaultIdleThreshold {
			idle++
		}
		bucketExpiry(snap.ExpiryHistogram, ent.expireAt.Load(), now)
		byteCost += estimatedEntryBytes(ent)
	})
	snap.Size = size
	snap.IdleEntries = idle
	snap.EstimatedByteCost = byteCost

	return snap
}

func bucketExpiry(hist map[string]int, deadline, now int64) {
	if deadline == 0 {
		hist["never"]++
		return
	}
	remaining := deadline - now
	switch {
	case remaining < int64(time.Minute):
		hist["<1m"]++
	case remaining < int64(5*time.Minute):
		hist["<5m"]++
	case remaining < int64(15*time.Minute):
		hist["<15m"]++
	case remaining < int64(time.Hour):
		hist["<1h"]++
	case remaining < int64(24*time.Hour):
		hist["<24h"]++
	default:
		hist[">=24h"]++
	}
}

// estimatedEntryBytes is a rough, deliberately inexact per-entry memory
// cost estimate (spec §9: "only a hook need exist"): fixed bookkeeping
// overhead plus a constant average-value-size assumption, since the actual
// size of V is not knowable through reflection-free generic code.
const estimatedBookkeepingBytes = 64
const estimatedAverageValueBytes = 64

func estimatedEntryBytes[V any](_ *entry[V]) int64 {
	return estimatedBookkeepingBytes + estimatedAverageValueBytes
}

// Close shuts down background workers and releases their resources.
func (e *engine[K, V]) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.stopCh)
	if e.refresher != nil {
		e.refresher.stop()
	}
	e.wg.Wait()
	return nil
}
