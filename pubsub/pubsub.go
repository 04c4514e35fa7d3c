// Package pubsub defines the fan-out bus used to relay invalidation and
// real-time update messages. Delivery is at-least-once to every subscription
// live at publish time; there is no replay for late subscribers.
//
// Each Subscription owns a bounded FIFO queue drained by the subscriber's
// own control flow. When the queue is full the oldest queued message is
// dropped and counted, so a slow subscriber never blocks Publish and never
// delays other subscribers.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPublishFailed is returned after a publish exhausted its bounded
	// retry budget (remote buses only).
	ErrPublishFailed = errors.New("pubsub: publish failed")

	ErrBusClosed = errors.New("pubsub: bus closed")
)

// Message is one published payload. Immutable once constructed.
type Message struct {
	Channel     string
	Payload     []byte
	PublishedAt time.Time
}

// Bus is the publish/subscribe contract. Implementations: local.Bus
// (in-process) and redis.Bus (go-redis backed).
type Bus interface {
	// Subscribe registers a new subscription on channel. Messages published
	// before Subscribe returns are not delivered.
	Subscribe(ctx context.Context, channel string, opts ...SubscribeOption) (*Subscription, error)

	// Publish fans payload out to every live subscription on channel.
	// It never blocks on a slow subscriber.
	Publish(ctx context.Context, channel string, payload []byte) error

	Close(ctx context.Context) error
}

// DefaultQueueLen bounds a subscription's delivery queue unless overridden.
const DefaultQueueLen = 64

type SubscribeConfig struct {
	QueueLen int
}

type SubscribeOption func(*SubscribeConfig)

// WithQueueLen overrides the delivery queue bound for one subscription.
func WithQueueLen(n int) SubscribeOption {
	return func(c *SubscribeConfig) {
		if n > 0 {
			c.QueueLen = n
		}
	}
}

func ApplySubscribeOptions(opts []SubscribeOption) SubscribeConfig {
	cfg := SubscribeConfig{QueueLen: DefaultQueueLen}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Subscription is one subscriber's bounded delivery queue. Created by a
// Bus, owned by the subscribing caller, destroyed by Close or bus shutdown.
type Subscription struct {
	channel string
	q       chan Message
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
	unsub  func(*Subscription)
}

// NewSubscription is used by Bus implementations; callers get subscriptions
// from Bus.Subscribe. unsub detaches the subscription from its bus and may
// be nil.
func NewSubscription(channel string, queueLen int, unsub func(*Subscription)) *Subscription {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &Subscription{
		channel: channel,
		q:       make(chan Message, queueLen),
		unsub:   unsub,
	}
}

func (s *Subscription) Channel() string { return s.channel }

// C is the delivery queue. It is closed when the subscription closes, so
// ranging over it terminates cleanly.
func (s *Subscription) C() <-chan Message { return s.q }

// Dropped reports how many messages were discarded because the queue was
// full. Drops are counted, never raised as errors.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Push enqueues m, evicting the oldest queued message when full. Returns
// false once the subscription is closed. Safe for concurrent publishers.
func (s *Subscription) Push(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.q <- m:
			return true
		default:
		}
		// full: drop the oldest and retry; the consumer may have raced us,
		// in which case the drain misses and the retry succeeds
		select {
		case <-s.q:
			s.dropped.Add(1)
		default:
		}
	}
}

// Close detaches from the bus and closes the delivery queue. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.mu.Unlock()

	if unsub != nil {
		unsub(s)
	}
	close(s.q)
}
