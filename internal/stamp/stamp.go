// Package stamp tracks per-key last-write logical timestamps for
// last-writer-wins invalidation. Stamps are node-local: unix-nano floored,
// with a +1 guard so two writes in the same nanosecond stay strictly ordered.
package stamp

import (
	"sync"
	"time"
)

type stampEntry struct {
	Stamp     uint64
	UpdatedAt time.Time
}

// Store keeps last-write stamps in-process.
// Optional cleanup loop to prune long-inactive entries.
type Store struct {
	mu     sync.Mutex
	last   map[string]stampEntry
	prev   uint64
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	retention time.Duration
}

func NewStore(cleanupInterval, retention time.Duration) *Store {
	s := &Store{
		last:      make(map[string]stampEntry),
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Record issues the next write stamp and records it as the key's last write.
func (s *Store) Record(k string) uint64 {
	now := time.Now()
	s.mu.Lock()
	ts := uint64(now.UnixNano())
	if ts <= s.prev {
		ts = s.prev + 1
	}
	s.prev = ts
	s.last[k] = stampEntry{Stamp: ts, UpdatedAt: now}
	s.mu.Unlock()
	return ts
}

// Last returns the key's last recorded write stamp; missing => 0.
func (s *Store) Last(k string) uint64 {
	s.mu.Lock()
	e := s.last[k]
	s.mu.Unlock()
	return e.Stamp
}

func (s *Store) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.last {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.last, k)
		}
	}
	s.mu.Unlock()
}

func (s *Store) Close() {
	if s.stopCh != nil {
		close(s.stopCh)
		if s.ticker != nil {
			s.ticker.Stop() // stop ticker before waiting
		}
		s.wg.Wait()
	}
}
