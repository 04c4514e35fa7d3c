package relaycache

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/relaycache/internal/stamp"
	"github.com/unkn0wn-root/relaycache/internal/wire"
	"github.com/unkn0wn-root/relaycache/pubsub"
)

const (
	// DefaultInvalidationChannel carries invalidation frames between nodes.
	DefaultInvalidationChannel = "invalidate"

	defaultStampSweep     = time.Hour
	defaultStampRetention = 24 * time.Hour
)

// evictor is one attached cache; the Invalidator fans received invalidations
// out to every attached cache, which ignores foreign namespaces.
type evictor interface {
	evictStorage(ctx context.Context, storageKey string) error
}

// InvalidatorOptions tune a coordinator. Only Bus is required.
type InvalidatorOptions struct {
	// Required
	Bus pubsub.Bus

	Channel  string // "" => DefaultInvalidationChannel
	Logger   Logger // nil => NopLogger
	Hooks    Hooks  // nil => NopHooks
	QueueLen int    // subscription queue bound; 0 => pubsub.DefaultQueueLen

	// StampSweep/StampRetention control pruning of per-key write stamps;
	// 0 => 1h / 24h.
	StampSweep     time.Duration
	StampRetention time.Duration
}

// Invalidator coordinates cache coherence across nodes sharing a bus. Every
// Set/Delete on an attached cache publishes a stamped invalidation; on
// receipt the entry is evicted unless a newer local write exists
// (last-writer-wins: evict iff lastWrite <= message stamp). Delivery is
// fire-and-forget; nothing is replayed after a restart.
type Invalidator struct {
	bus     pubsub.Bus
	channel string
	log     Logger
	hooks   Hooks
	stamps  *stamp.Store
	qlen    int

	mu      sync.Mutex
	targets []evictor
	sub     *pubsub.Subscription
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInvalidator(opts InvalidatorOptions) (*Invalidator, error) {
	if opts.Bus == nil {
		return nil, errNilBus
	}
	inv := &Invalidator{
		bus:     opts.Bus,
		channel: coalesce(opts.Channel, DefaultInvalidationChannel),
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:   coalesce[Hooks](opts.Hooks, NopHooks{}),
		qlen:    opts.QueueLen,
		stamps: stamp.NewStore(
			coalesce(opts.StampSweep, defaultStampSweep),
			coalesce(opts.StampRetention, defaultStampRetention),
		),
	}
	return inv, nil
}

// Start subscribes to the invalidation channel and begins applying received
// invalidations to attached caches. Must be called once before evictions
// from other nodes are observed; local writes publish regardless.
func (inv *Invalidator) Start(ctx context.Context) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.started {
		return nil
	}

	var opts []pubsub.SubscribeOption
	if inv.qlen > 0 {
		opts = append(opts, pubsub.WithQueueLen(inv.qlen))
	}
	sub, err := inv.bus.Subscribe(ctx, inv.channel, opts...)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(context.Background())
	inv.sub = sub
	inv.cancel = cancel
	inv.started = true

	inv.wg.Add(1)
	go inv.run(rctx, sub)
	return nil
}

// Close stops the receive loop and releases the subscription and stamp
// store. The bus itself is not closed; it may be shared.
func (inv *Invalidator) Close(context.Context) error {
	inv.mu.Lock()
	sub := inv.sub
	cancel := inv.cancel
	inv.sub = nil
	inv.cancel = nil
	started := inv.started
	inv.started = false
	inv.mu.Unlock()

	if started {
		cancel()
		sub.Close()
		inv.wg.Wait()
	}
	inv.stamps.Close()
	return nil
}

func (inv *Invalidator) run(ctx context.Context, sub *pubsub.Subscription) {
	defer inv.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			inv.apply(ctx, msg)
		}
	}
}

func (inv *Invalidator) apply(ctx context.Context, msg pubsub.Message) {
	st, key, err := wire.DecodeInvalidation(msg.Payload)
	if err != nil {
		inv.log.Warn("dropping malformed invalidation", Fields{"channel": msg.Channel, "err": err})
		return
	}

	// a newer local write outranks this invalidation; evicting now would
	// resurrect the older deletion
	if last := inv.stamps.Last(key); last > st {
		inv.hooks.StaleInvalidationDropped(key, st, last)
		inv.log.Debug("stale invalidation ignored", Fields{"key": key, "msg": st, "last": last})
		return
	}

	inv.mu.Lock()
	targets := make([]evictor, len(inv.targets))
	copy(targets, inv.targets)
	inv.mu.Unlock()

	for _, t := range targets {
		if err := t.evictStorage(ctx, key); err != nil {
			inv.log.Error("evict failed", Fields{"key": key, "err": err})
			continue
		}
	}
	inv.hooks.EvictApplied(key, st)
}

// stampWrite records a write stamp for the storage key and returns it.
func (inv *Invalidator) stampWrite(storageKey string) uint64 {
	return inv.stamps.Record(storageKey)
}

// publish broadcasts one stamped invalidation frame.
func (inv *Invalidator) publish(ctx context.Context, storageKey string, st uint64) error {
	frame, err := wire.EncodeInvalidation(st, storageKey)
	if err != nil {
		inv.hooks.PublishFailed(inv.channel, err)
		return err
	}
	if err := inv.bus.Publish(ctx, inv.channel, frame); err != nil {
		inv.hooks.PublishFailed(inv.channel, err)
		return err
	}
	return nil
}

func (inv *Invalidator) attach(e evictor) {
	inv.mu.Lock()
	inv.targets = append(inv.targets, e)
	inv.mu.Unlock()
}

func (inv *Invalidator) detach(e evictor) {
	inv.mu.Lock()
	for i, t := range inv.targets {
		if t == e {
			inv.targets = append(inv.targets[:i], inv.targets[i+1:]...)
			break
		}
	}
	inv.mu.Unlock()
}
