package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// pipeDialer dials net.Pipe pairs and counts dials. The far ends are kept so
// reads/writes would not error immediately.
type pipeDialer struct {
	dials atomic.Int64
	fail  atomic.Bool
}

func (d *pipeDialer) dial(_ context.Context) (net.Conn, error) {
	if d.fail.Load() {
		return nil, errors.New("refused")
	}
	d.dials.Add(1)
	client, server := net.Pipe()
	_ = server // held open by the runtime until GC; enough for pool tests
	return client, nil
}

func newTestPool(t *testing.T, cfg Config, d *pipeDialer) *Pool {
	t.Helper()
	cfg.Dial = d.dial
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestAcquireReleaseReuse(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 2}, d)

	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(c1)

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	p.Release(c2)

	if n := d.dials.Load(); n != 1 {
		t.Fatalf("expected 1 dial (reuse), got %d", n)
	}
}

// With MaxSize=1 a second Acquire must block until the first Release, then
// succeed.
func TestAcquireBlocksUntilRelease(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1}, d)

	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	got := make(chan error, 1)
	go func() {
		actx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		c2, err := p.Acquire(actx)
		if err == nil {
			p.Release(c2)
		}
		got <- err
	}()

	// second Acquire should still be waiting
	select {
	case err := <-got:
		t.Fatalf("second Acquire returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	p.Release(c1)
	if err := <-got; err != nil {
		t.Fatalf("second Acquire after release: %v", err)
	}
}

func TestAcquireTimeoutIsPoolExhausted(t *testing.T) {
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1}, d)

	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release(c1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}

func TestAcquireCancelIsNotExhausted(t *testing.T) {
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1}, d)

	c1, _ := p.Acquire(context.Background())
	defer p.Release(c1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := p.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("plain cancellation must not read as exhaustion")
	}
}

func TestDialFailureReturnsSlot(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	d.fail.Store(true)
	p := newTestPool(t, Config{MaxSize: 1}, d)

	if _, err := p.Acquire(ctx); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}

	// slot was returned; a later Acquire succeeds once dialing recovers
	d.fail.Store(false)
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after recovery: %v", err)
	}
	p.Release(c)
}

func TestDiscardOpensReplacement(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1}, d)

	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Discard(c1)

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after discard: %v", err)
	}
	p.Release(c2)

	if n := d.dials.Load(); n != 2 {
		t.Fatalf("expected replacement dial, got %d dials", n)
	}
	if s := p.Stats(); s.Discards != 1 {
		t.Fatalf("expected 1 discard, got %d", s.Discards)
	}
}

func TestIdleTimeoutClosesStaleConn(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1, IdleTimeout: 20 * time.Millisecond}, d)

	c1, _ := p.Acquire(ctx)
	p.Release(c1)
	time.Sleep(50 * time.Millisecond)

	// stale idle conn must not be handed out; a fresh one is dialed
	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(c2)
	if n := d.dials.Load(); n != 2 {
		t.Fatalf("expected stale conn replaced, got %d dials", n)
	}
}

func TestWithReleasesOnSuccessDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1}, d)

	if err := p.With(ctx, func(*Conn) error { return nil }); err != nil {
		t.Fatalf("With: %v", err)
	}
	if s := p.Stats(); s.Leased != 0 || s.Discards != 0 {
		t.Fatalf("clean With should release: %+v", s)
	}

	boom := fmt.Errorf("boom")
	if err := p.With(ctx, func(*Conn) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("With should surface fn error, got %v", err)
	}
	if s := p.Stats(); s.Leased != 0 || s.Discards != 1 {
		t.Fatalf("failed With should discard: %+v", s)
	}
}

// The buffered reader is bound to the connection, not to a lease: bytes it
// buffered past one exchange must still be readable on the next lease.
func TestReaderBufferSurvivesLeases(t *testing.T) {
	ctx := context.Background()

	client, server := net.Pipe()
	p, err := New(Config{
		MaxSize: 1,
		Dial:    func(context.Context) (net.Conn, error) { return client, nil },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Close)

	go func() {
		// both replies land in one segment; a per-lease reader would buffer
		// "b" while delivering "a", then throw it away
		_, _ = server.Write([]byte("ab"))
	}()

	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	first, err := c1.Reader().ReadByte()
	if err != nil || first != 'a' {
		t.Fatalf("first lease read %q, %v", first, err)
	}
	p.Release(c1)

	c2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire 2: %v", err)
	}
	defer p.Release(c2)
	second, err := c2.Reader().ReadByte()
	if err != nil || second != 'b' {
		t.Fatalf("second lease read %q, %v; buffered byte was lost", second, err)
	}
}

func TestAcquireAfterClose(t *testing.T) {
	d := &pipeDialer{}
	p := newTestPool(t, Config{MaxSize: 1}, d)
	p.Close()
	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
