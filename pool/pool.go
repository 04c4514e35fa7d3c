// Package pool implements a bounded connection pool with exclusive-lease
// discipline: Acquire hands a connection to exactly one caller, Release
// returns it, Discard drops a connection that errored during use. Total open
// connections never exceed MaxSize.
//
// Internally the pool is a slot channel of capacity MaxSize. Each buffered
// element is either an idle connection or a nil placeholder for one that may
// be dialed. The channel always holds exactly MaxSize minus the number of
// leased connections, so blocking on Acquire is blocking on a slot.
package pool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolExhausted is returned when Acquire times out waiting for a slot
	// while every connection is leased.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrConnectFailed wraps dial errors. The slot is returned, so a later
	// Acquire may retry the dial.
	ErrConnectFailed = errors.New("pool: connect failed")

	ErrClosed = errors.New("pool: closed")
)

// Dialer opens one physical connection. The ctx carries the connect timeout.
type Dialer func(ctx context.Context) (net.Conn, error)

const (
	DefaultMaxSize        = 10
	DefaultIdleTimeout    = 300 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

type Config struct {
	// Dial is required.
	Dial Dialer

	MaxSize        int           // 0 => 10
	IdleTimeout    time.Duration // 0 => 300s; idle connections past this are closed
	ConnectTimeout time.Duration // 0 => 5s; cap on each dial
}

// Conn is a leased connection. It embeds the net.Conn so callers use it
// directly, then hand it back via Release or Discard.
//
// Reader and Writer are buffered views bound to the connection for its whole
// pooled lifetime, so bytes buffered past one protocol exchange are still
// there for the next lease instead of being dropped with a throwaway reader.
type Conn struct {
	net.Conn
	br         *bufio.Reader
	bw         *bufio.Writer
	returnedAt time.Time
}

func (c *Conn) Reader() *bufio.Reader {
	if c.br == nil {
		c.br = bufio.NewReader(c.Conn)
	}
	return c.br
}

// Writer returns the connection's buffered writer. Callers flush before the
// lease ends.
func (c *Conn) Writer() *bufio.Writer {
	if c.bw == nil {
		c.bw = bufio.NewWriter(c.Conn)
	}
	return c.bw
}

type Pool struct {
	cfg   Config
	slots chan *Conn

	done     chan struct{}
	closeOne sync.Once
	wg       sync.WaitGroup

	leased   atomic.Int64
	discards atomic.Uint64
}

func New(cfg Config) (*Pool, error) {
	if cfg.Dial == nil {
		return nil, errors.New("pool: dialer is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	p := &Pool{
		cfg:   cfg,
		slots: make(chan *Conn, cfg.MaxSize),
		done:  make(chan struct{}),
	}
	for i := 0; i < cfg.MaxSize; i++ {
		p.slots <- nil // placeholder: nothing dialed yet
	}

	p.wg.Add(1)
	go p.reap()

	return p, nil
}

// Acquire leases a connection, dialing one if no idle connection is
// available. It blocks while all MaxSize connections are leased; if ctx
// expires first, the caller gets ErrPoolExhausted. A timed-out Acquire holds
// no resources.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	select {
	case pc := <-p.slots:
		if pc != nil && !p.stale(pc) {
			p.leased.Add(1)
			return pc, nil
		}
		if pc != nil {
			_ = pc.Conn.Close() // idle too long
		}

		dctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		nc, err := p.cfg.Dial(dctx)
		cancel()
		if err != nil {
			p.slots <- nil // give the slot back
			return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
		}
		p.leased.Add(1)
		return &Conn{Conn: nc}, nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, ctx.Err())
		}
		return nil, ctx.Err()

	case <-p.done:
		return nil, ErrClosed
	}
}

// Release returns a healthy connection to the idle set.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	p.leased.Add(-1)
	select {
	case <-p.done:
		_ = c.Conn.Close()
		return
	default:
	}
	c.returnedAt = time.Now()
	p.slots <- c // never blocks: the lease held this slot
}

// Discard closes a connection that errored during use and frees its slot so
// the pool can dial a replacement on demand.
func (p *Pool) Discard(c *Conn) {
	if c == nil {
		return
	}
	p.leased.Add(-1)
	p.discards.Add(1)
	_ = c.Conn.Close()
	select {
	case <-p.done:
		return
	default:
	}
	p.slots <- nil
}

// With runs fn on a leased connection with guaranteed return on every exit
// path: Release on success, Discard when fn errors or panics.
func (p *Pool) With(ctx context.Context, fn func(*Conn) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if ok {
			p.Release(c)
		} else {
			p.Discard(c)
		}
	}()
	if err := fn(c); err != nil {
		return err
	}
	ok = true
	return nil
}

// Stats is a point-in-time snapshot for observability.
type Stats struct {
	MaxSize  int
	Leased   int
	Idle     int
	Discards uint64
}

func (p *Pool) Stats() Stats {
	idle := 0
	// approximate: counts buffered slots currently holding a connection
	for i := 0; i < len(p.slots); i++ {
		select {
		case pc := <-p.slots:
			if pc != nil {
				idle++
			}
			p.slots <- pc
		default:
		}
	}
	return Stats{
		MaxSize:  p.cfg.MaxSize,
		Leased:   int(p.leased.Load()),
		Idle:     idle,
		Discards: p.discards.Load(),
	}
}

// Close stops the reaper and closes every idle connection. Leased
// connections are closed as they come back through Release or Discard.
func (p *Pool) Close() {
	p.closeOne.Do(func() {
		close(p.done)
		p.wg.Wait()
		for {
			select {
			case pc := <-p.slots:
				if pc != nil {
					_ = pc.Conn.Close()
				}
			default:
				return
			}
		}
	})
}

func (p *Pool) stale(c *Conn) bool {
	return !c.returnedAt.IsZero() && time.Since(c.returnedAt) > p.cfg.IdleTimeout
}

// reap periodically closes idle connections past IdleTimeout, replacing them
// with placeholders so capacity is unchanged.
func (p *Pool) reap() {
	defer p.wg.Done()
	interval := p.cfg.IdleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			for i := 0; i < p.cfg.MaxSize; i++ {
				select {
				case pc := <-p.slots:
					if pc != nil && p.stale(pc) {
						_ = pc.Conn.Close()
						pc = nil
					}
					p.slots <- pc
				default:
				}
			}
		}
	}
}
