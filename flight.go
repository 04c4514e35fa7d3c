package relaycache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightGroup coalesces concurrent loads per key. Deduplication rides on
// x/sync/singleflight; the registry on top tracks waiters so that a single
// waiter cancelling detaches without disturbing the rest, while the loader's
// context is cancelled only once every waiter has gone.
type flightGroup[V any] struct {
	sf singleflight.Group

	mu     sync.Mutex
	active map[string]*flightRef
}

type flightRef struct {
	waiters int
	ctx     context.Context
	cancel  context.CancelFunc
	done    bool
}

func newFlightGroup[V any]() *flightGroup[V] {
	return &flightGroup[V]{active: make(map[string]*flightRef)}
}

// do attaches the caller as a waiter on key's flight, creating the flight if
// none exists. fn runs at most once per flight; every waiter receives its
// result. On fn error the flight is forgotten so the next caller retries.
func (g *flightGroup[V]) do(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	g.mu.Lock()
	ref, ok := g.active[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.Background())
		ref = &flightRef{ctx: fctx, cancel: cancel}
		g.active[key] = ref
	}
	ref.waiters++
	g.mu.Unlock()

	ch := g.sf.DoChan(key, func() (any, error) {
		// ref can be torn down between the caller's registry lookup and its
		// DoChan: the previous flight finishes, cancels ref.ctx and drops the
		// singleflight key, making this a fresh call holding a dead context.
		// Run under a new one so the loader never starts cancelled.
		g.mu.Lock()
		fctx, cancel := ref.ctx, ref.cancel
		if ref.done {
			fctx, cancel = context.WithCancel(context.Background())
		}
		g.mu.Unlock()

		v, err := fn(fctx)

		// flight over: unregister before results fan out so a later miss
		// starts a fresh flight
		g.mu.Lock()
		ref.done = true
		if g.active[key] == ref {
			delete(g.active, key)
		}
		g.mu.Unlock()
		cancel()

		return v, err
	})

	select {
	case res := <-ch:
		g.detach(key, ref)
		v, _ := res.Val.(V)
		return v, res.Err

	case <-ctx.Done():
		g.detach(key, ref)
		var zero V
		return zero, ctx.Err()
	}
}

// detach drops one waiter; the last one out cancels a still-running loader.
func (g *flightGroup[V]) detach(key string, ref *flightRef) {
	g.mu.Lock()
	ref.waiters--
	last := ref.waiters == 0 && !ref.done
	if last && g.active[key] == ref {
		delete(g.active, key)
		g.sf.Forget(key)
	}
	g.mu.Unlock()
	if last {
		ref.cancel()
	}
}
