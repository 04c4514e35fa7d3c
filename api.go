package relaycache

import (
	"context"
	"math"
	"time"

	c "github.com/unkn0wn-root/relaycache/codec"
	pr "github.com/unkn0wn-root/relaycache/provider"
)

// NoExpiry stores an entry without a TTL. Any other non-positive TTL means
// "expire immediately" - the asymmetry is deliberate so forgetting a TTL can
// never silently cache forever.
const NoExpiry time.Duration = math.MaxInt64

// LoaderFunc computes the value for a missing key. The ctx is the flight's
// context: it is cancelled only when every coalesced waiter has cancelled.
type LoaderFunc[V any] func(ctx context.Context) (V, error)

// SetCostFunc lets cost-aware providers (Ristretto) weigh entries.
type SetCostFunc func(key string, raw []byte) int64

// Cache is the high-level cache-aside API. V is the caller's value type;
// serialization is handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Get returns the cached value, or ok=false on miss or expiry. Expiry is
	// checked at read time; an expired entry is never returned as a hit. A
	// read-side store failure reports ok=false with the error wrapped as
	// ErrStoreUnavailable.
	Get(ctx context.Context, key string) (v V, ok bool, err error)

	// Set overwrites unconditionally (last-writer-wins) and, when an
	// Invalidator is attached, broadcasts a stamped invalidation.
	// ttl semantics: >0 expires after ttl; NoExpiry never expires;
	// any other <=0 value expires immediately (equivalent to Delete).
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes the key and broadcasts an invalidation. Deleting an
	// absent key is a no-op, not an error.
	Delete(ctx context.Context, key string) error

	// GetOrLoad is the coalescing entry point: a fresh entry is returned
	// directly; otherwise concurrent callers for the same key share one
	// loader invocation and all receive the identical result or the
	// identical error. Failed loads are not cached, so the next caller
	// retries. When loading succeeded but caching failed, the value is
	// returned together with a *WriteError (errors.Is(err, ErrCacheWrite)).
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader LoaderFunc[V]) (V, error)

	// Load is GetOrLoad with the cache's default TTL.
	Load(ctx context.Context, key string, loader LoaderFunc[V]) (V, error)
}

// Options tune the behavior of the cache.
// Only Namespace, Provider and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "profile", "order"
	Provider  pr.Provider
	Codec     c.Codec[V]

	Logger         Logger        // if nil, NopLogger is used
	Hooks          Hooks         // if nil, NopHooks is used
	DefaultTTL     time.Duration // used by Load; 0 => 10m
	Invalidator    *Invalidator  // nil => no invalidation broadcast
	ComputeSetCost SetCostFunc   // default 1 per entry
	Disabled       bool          // default false (enabled)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
