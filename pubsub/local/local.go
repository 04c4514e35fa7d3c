// Package local implements an in-process pubsub.Bus. Fan-out happens inline
// on Publish; per-subscriber bounded queues keep a slow subscriber from
// affecting anyone else.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/relaycache/pubsub"
)

type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*pubsub.Subscription]struct{}
	closed bool
}

var _ pubsub.Bus = (*Bus)(nil)

func New() *Bus {
	return &Bus{subs: make(map[string]map[*pubsub.Subscription]struct{})}
}

func (b *Bus) Subscribe(_ context.Context, channel string, opts ...pubsub.SubscribeOption) (*pubsub.Subscription, error) {
	cfg := pubsub.ApplySubscribeOptions(opts)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, pubsub.ErrBusClosed
	}

	sub := pubsub.NewSubscription(channel, cfg.QueueLen, b.remove)
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*pubsub.Subscription]struct{})
		b.subs[channel] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return pubsub.ErrBusClosed
	}
	// snapshot so Push runs outside the registry lock
	var targets []*pubsub.Subscription
	if set := b.subs[channel]; len(set) > 0 {
		targets = make([]*pubsub.Subscription, 0, len(set))
		for s := range set {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	msg := pubsub.Message{
		Channel:     channel,
		Payload:     payload,
		PublishedAt: time.Now(),
	}
	for _, s := range targets {
		s.Push(msg)
	}
	return nil
}

func (b *Bus) Close(context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*pubsub.Subscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.subs = make(map[string]map[*pubsub.Subscription]struct{})
	b.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	return nil
}

func (b *Bus) remove(s *pubsub.Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[s.Channel()]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.Channel())
		}
	}
	b.mu.Unlock()
}
