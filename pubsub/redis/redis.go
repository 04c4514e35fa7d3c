// Package redis implements pubsub.Bus over Redis PUBLISH/SUBSCRIBE using
// go-redis. The bounded-queue, drop-oldest delivery contract is the same as
// the local bus; a pump goroutine per subscription drains the go-redis
// channel into the subscription queue.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/relaycache/pubsub"
)

var ErrNilClient = errors.New("redis bus: nil client")

const (
	defaultMaxAttempts = 3
	defaultRetryBase   = 50 * time.Millisecond
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this bus exclusively owns the client

	// MaxAttempts bounds Publish retries; 0 => 3.
	MaxAttempts int
	// RetryBase is the first retry delay, doubled per attempt; 0 => 50ms.
	RetryBase time.Duration
}

type Bus struct {
	rdb         goredis.UniversalClient
	closeClient bool
	maxAttempts int
	retryBase   time.Duration

	mu     sync.Mutex
	pumps  map[*pubsub.Subscription]*goredis.PubSub
	closed bool
	wg     sync.WaitGroup
}

var _ pubsub.Bus = (*Bus)(nil)

func New(cfg Config) (*Bus, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	return &Bus{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		pumps:       make(map[*pubsub.Subscription]*goredis.PubSub),
	}, nil
}

// Publish retries transient failures with doubling backoff, then reports
// pubsub.ErrPublishFailed carrying the last cause.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	var last error
	delay := b.retryBase
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		err := b.rdb.Publish(ctx, channel, payload).Err()
		if err == nil {
			return nil
		}
		last = err
		if attempt == b.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v (interrupted: %v)", pubsub.ErrPublishFailed, last, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w after %d attempts: %v", pubsub.ErrPublishFailed, b.maxAttempts, last)
}

func (b *Bus) Subscribe(ctx context.Context, channel string, opts ...pubsub.SubscribeOption) (*pubsub.Subscription, error) {
	cfg := pubsub.ApplySubscribeOptions(opts)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, pubsub.ErrBusClosed
	}
	b.mu.Unlock()

	ps := b.rdb.Subscribe(ctx, channel)
	// confirm the SUBSCRIBE before handing the subscription out, so no
	// message published after return can be missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := pubsub.NewSubscription(channel, cfg.QueueLen, b.detach)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return nil, pubsub.ErrBusClosed
	}
	b.pumps[sub] = ps
	b.wg.Add(1)
	b.mu.Unlock()

	go b.pump(sub, ps)
	return sub, nil
}

func (b *Bus) pump(sub *pubsub.Subscription, ps *goredis.PubSub) {
	defer b.wg.Done()
	ch := ps.Channel()
	for m := range ch {
		sub.Push(pubsub.Message{
			Channel:     m.Channel,
			Payload:     []byte(m.Payload),
			PublishedAt: time.Now(),
		})
	}
}

func (b *Bus) detach(sub *pubsub.Subscription) {
	b.mu.Lock()
	ps, ok := b.pumps[sub]
	delete(b.pumps, sub)
	b.mu.Unlock()
	if ok {
		_ = ps.Close() // ends the pump goroutine
	}
}

func (b *Bus) Close(context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*pubsub.Subscription, 0, len(b.pumps))
	for s := range b.pumps {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close() // detaches and closes the go-redis PubSub
	}
	b.wg.Wait()

	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
