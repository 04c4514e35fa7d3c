package relaycache

import (
	"context"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/relaycache/codec"
	"github.com/unkn0wn-root/relaycache/internal/util"
	"github.com/unkn0wn-root/relaycache/internal/wire"
	pr "github.com/unkn0wn-root/relaycache/provider"
)

const (
	entryKind  = "entry"
	defaultTTL = 10 * time.Minute
)

type cache[V any] struct {
	ns             string
	provider       pr.Provider
	codec          c.Codec[V]
	log            Logger
	hooks          Hooks
	enabled        bool
	defaultTTL     time.Duration
	computeSetCost SetCostFunc
	inv            *Invalidator
	flights        *flightGroup[V]
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("relaycache: provider is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("relaycache: codec is required")
	}
	if opts.Namespace == "" {
		return nil, fmt.Errorf("relaycache: namespace is required")
	}

	cc := &cache[V]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		enabled:  !opts.Disabled,
		inv:      opts.Invalidator,
		flights:  newFlightGroup[V](),
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)

	if opts.ComputeSetCost != nil {
		cc.computeSetCost = opts.ComputeSetCost
	} else {
		cc.computeSetCost = func(_ string, _ []byte) int64 { return 1 }
	}

	if cc.inv != nil {
		cc.inv.attach(cc)
	}

	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

// Close releases the provider. A shared Invalidator is not closed here; its
// lifecycle belongs to whoever constructed it.
func (c *cache[V]) Close(ctx context.Context) error {
	if c.inv != nil {
		c.inv.detach(c)
	}
	return c.provider.Close(ctx)
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	k := c.storageKey(key)
	raw, ok, err := c.provider.Get(ctx, k)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return zero, false, nil
	}
	_, expiresAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		_ = c.provider.Del(ctx, k) // self-heal corrupt
		c.hooks.SelfHeal(k, "corrupt")
		return zero, false, nil
	}
	// expiry is enforced here, not by provider sweeps
	if expiresAt != 0 && uint64(time.Now().UnixNano()) > expiresAt {
		_ = c.provider.Del(ctx, k)
		c.hooks.EntryExpired(k)
		return zero, false, nil
	}
	v, err := c.codec.Decode(payload)
	if err != nil {
		_ = c.provider.Del(ctx, k) // self-heal
		c.hooks.SelfHeal(k, "value_decode")
		return zero, false, nil
	}
	return v, true, nil
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	if ttl != NoExpiry && ttl <= 0 {
		// expire immediately rather than cache forever
		return c.Delete(ctx, key)
	}
	return c.store(ctx, key, value, ttl, true)
}

func (c *cache[V]) Delete(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.storageKey(key)
	delErr := c.provider.Del(ctx, k)

	var pubErr error
	if c.inv != nil {
		st := c.inv.stampWrite(k)
		pubErr = c.inv.publish(ctx, k, st)
	}
	if delErr == nil && pubErr == nil {
		return nil
	}
	if delErr != nil {
		delErr = fmt.Errorf("%w: %v", ErrStoreUnavailable, delErr)
	}
	return &InvalidateError{Key: key, DelErr: delErr, PublishErr: pubErr}
}

func (c *cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader LoaderFunc[V]) (V, error) {
	if !c.enabled {
		return loader(ctx)
	}

	v, ok, err := c.Get(ctx, key)
	if ok {
		return v, nil
	}
	if err != nil {
		// read-side unavailability is a forced miss; fall through to loader
		c.hooks.ReadUnavailable(c.storageKey(key), err)
		c.log.Warn("read failed; treating as miss", Fields{"key": key, "err": err})
	}

	return c.flights.do(ctx, key, func(fctx context.Context) (V, error) {
		val, err := loader(fctx)
		if err != nil {
			var zero V
			return zero, err
		}
		// store without broadcasting: repopulating after a miss is not a
		// mutation of the source of truth
		if werr := c.store(fctx, key, val, ttl, false); werr != nil {
			c.hooks.CacheWriteFailed(key, werr)
			return val, &WriteError{Key: key, Err: werr}
		}
		return val, nil
	})
}

func (c *cache[V]) Load(ctx context.Context, key string, loader LoaderFunc[V]) (V, error) {
	return c.GetOrLoad(ctx, key, c.defaultTTL, loader)
}

// store encodes, frames and writes one entry. broadcast selects whether an
// invalidation is published (explicit Set) or not (load repopulation).
func (c *cache[V]) store(ctx context.Context, key string, value V, ttl time.Duration, broadcast bool) error {
	k := c.storageKey(key)

	payload, err := c.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	var st uint64
	if c.inv != nil {
		st = c.inv.stampWrite(k)
	} else {
		st = uint64(time.Now().UnixNano())
	}

	var expiresAt uint64
	if ttl != NoExpiry {
		expiresAt = uint64(time.Now().Add(ttl).UnixNano())
	}

	frame := wire.EncodeEntry(st, expiresAt, payload)
	ok, err := c.provider.Set(ctx, k, frame, c.computeSetCost(k, frame), providerTTL(ttl))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		c.hooks.ProviderSetRejected(k)
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": key})
	}

	if broadcast && c.inv != nil {
		if perr := c.inv.publish(ctx, k, st); perr != nil {
			return &InvalidateError{Key: key, PublishErr: perr}
		}
	}
	return nil
}

// evictStorage deletes one storage key without re-publishing; called by the
// Invalidator on message receipt. Keys outside this cache's namespace are
// ignored.
func (c *cache[V]) evictStorage(ctx context.Context, storageKey string) error {
	if !util.InNamespace(storageKey, entryKind, c.ns) {
		return nil
	}
	return c.provider.Del(ctx, storageKey)
}

func (c *cache[V]) storageKey(userKey string) string {
	// isolate by namespace
	return util.StorageKey(entryKind, c.ns, userKey)
}

// providerTTL maps API TTL semantics onto the provider contract, where <= 0
// means "no expiry". The exact deadline still rides in the entry frame.
func providerTTL(ttl time.Duration) time.Duration {
	if ttl == NoExpiry {
		return 0
	}
	return ttl
}
