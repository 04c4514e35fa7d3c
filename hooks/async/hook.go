// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/relaycache"
//	"github.com/unkn0wn-root/relaycache/codec"
//	"github.com/unkn0wn-root/relaycache/hooks/async"
//	"github.com/unkn0wn-root/relaycache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	    ExpiredEvery:  10,
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := relaycache.New[User](relaycache.Options[User]{
//	    Namespace: "app:prod:user",
//	    Provider:  provider,
//	    Codec:     codec.JSON[User]{},
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/relaycache"
)

type Hooks struct {
	inner relaycache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ relaycache.Hooks = (*Hooks)(nil)

func New(inner relaycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)         { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) EntryExpired(k string)        { h.try(func() { h.inner.EntryExpired(k) }) }
func (h *Hooks) ProviderSetRejected(k string) { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) ReadUnavailable(k string, err error) {
	h.try(func() { h.inner.ReadUnavailable(k, err) })
}
func (h *Hooks) CacheWriteFailed(k string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(k, err) })
}
func (h *Hooks) PublishFailed(ch string, err error) {
	h.try(func() { h.inner.PublishFailed(ch, err) })
}
func (h *Hooks) StaleInvalidationDropped(k string, msgStamp, lastWrite uint64) {
	h.try(func() { h.inner.StaleInvalidationDropped(k, msgStamp, lastWrite) })
}
func (h *Hooks) EvictApplied(k string, stamp uint64) {
	h.try(func() { h.inner.EvictApplied(k, stamp) })
}
