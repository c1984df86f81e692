// Package strata provides a generic, thread-safe, in-process cache with
// time/size/weight/access-pattern eviction, single-flight loading, and
// background refresh.
//
// # Overview
//
// strata is a bounded key-value cache for one process: it trades the
// precision of reference-counted collections for a bounded hit/miss
// contract under concurrent access. It supports four eviction strategies
// (LRU, FIFO, LFU, and Window-TinyLFU) and two concurrency modes (fast and
// strict) so callers can pick the right precision/throughput trade-off for
// their workload.
//
// # Features
//
//   - Generic API: Cache[K comparable, V any], no interface{} boxing
//   - Four eviction policies: LRU, FIFO, LFU, Window-TinyLFU
//   - Fast mode: a sync.Map index with sampled, deferred eviction
//   - Strict mode: sharded locking with precise eviction ordering and
//     bounded-wait reads that degrade to a miss under contention
//   - Single-flight loading: GetOrLoad-style Get/GetAll with cache
//     stampede prevention, optional negative caching
//   - Background refresh: fixed-interval, custom-policy, or
//     time-windowed refresh without stalling readers
//   - Lifecycle hooks: RemovalListener, PutListener, Writer (write-through)
//   - Structured errors: rich error context with stable error codes
//   - Metrics: atomic counters plus a derived-view snapshot
//   - Hot reload: HotConfig can swap TTL/refresh settings on a live cache
//
// # Quick start
//
//	import "github.com/strata-cache/strata"
//
//	type User struct {
//		ID   int
//		Name string
//	}
//
//	func main() {
//		cache, err := strata.New(strata.Config[string, User]{
//			MaxSize:          10_000,
//			EvictionPolicy:   strata.PolicyWindowTinyLFU,
//			ExpireAfterWrite: time.Hour,
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer cache.Close()
//
//		cache.Put("user:123", User{ID: 123, Name: "Alice"})
//
//		if user, found := cache.GetIfPresent("user:123"); found {
//			fmt.Printf("User: %s\n", user.Name)
//		}
//
//		stats := cache.Metrics()
//		fmt.Printf("Hit rate: %.2f%%\n", stats.HitRate()*100)
//	}
//
// # Cache stampede prevention
//
// Get loads a missing key through the configured Loader. Multiple
// concurrent Get calls for the same missing key execute the loader only
// once:
//
//	cache, _ := strata.New(strata.Config[string, User]{
//		MaxSize: 10_000,
//		Loader: strata.LoaderFunc[string, User](func(ctx context.Context, key string) (User, error) {
//			return fetchUserFromDB(ctx, key) // runs once even under concurrent callers
//		}),
//	})
//
//	user, err := cache.Get(ctx, "user:123")
//
// # Fast mode vs strict mode
//
// Fast mode (the default) keeps the index in a sync.Map: reads never
// block, and size/weight eviction is reconciled periodically by sampling a
// bounded number of candidates rather than maintaining an exact queue.
// Strict mode partitions the index into a fixed table of RWMutex-guarded
// shards and maintains the configured eviction policy's exact order; reads
// that can't acquire their shard's lock within a short bound degrade to a
// miss instead of blocking indefinitely.
//
// Choose strict mode when eviction order must match the configured policy
// exactly (for example, a test asserting LRU order); choose fast mode
// otherwise.
//
// # Expiration
//
// ExpireAfterWrite and ExpireAfterAccess configure fixed TTL dimensions.
// An Expiry implementation overrides both with a per-entry computed
// deadline. A background sweeper (CleanupInterval) removes expired
// entries; CleanUp forces an immediate sweep.
//
// # Thread safety
//
// Every exported method is safe for concurrent use by any number of
// goroutines. User-supplied callbacks (RemovalListener, PutListener,
// Writer, RefreshPolicy, Weigher, Loader) are invoked with panic
// recovery: a panic is logged through Config.Logger and the operation
// falls back to a safe default rather than crashing the caller. A panic
// from an Expiry implementation is not recovered.
package strata
