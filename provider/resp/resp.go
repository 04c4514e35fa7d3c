// Package resp implements provider.Provider against any backend speaking
// the minimal RESP command surface (GET / SET key value [EX seconds] / DEL)
// over pooled connections. One command per lease; a connection that errors
// mid-command is discarded by the pool, never returned.
package resp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/unkn0wn-root/relaycache/internal/resp"
	"github.com/unkn0wn-root/relaycache/pool"
	pr "github.com/unkn0wn-root/relaycache/provider"
)

var ErrNilPool = errors.New("resp provider: nil pool")

type Store struct {
	pool     *pool.Pool
	ownsPool bool
}

var _ pr.Provider = (*Store)(nil)

type Config struct {
	Pool      *pool.Pool
	ClosePool bool // set true only if this provider exclusively owns the pool
}

func New(cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, ErrNilPool
	}
	return &Store{pool: cfg.Pool, ownsPool: cfg.ClosePool}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := s.pool.With(ctx, func(pc *pool.Conn) error {
		rep, err := s.roundTrip(ctx, pc, []byte("GET"), []byte(key))
		if err != nil {
			return err
		}
		switch rep.Kind {
		case resp.KindNil:
			return nil // miss
		case resp.KindBulk:
			val, found = rep.Bulk, true
			return nil
		default:
			return fmt.Errorf("%w: unexpected GET reply kind %q", resp.ErrProtocol, rep.Kind)
		}
	})
	if err != nil {
		return nil, false, err
	}
	return val, found, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	args := [][]byte{[]byte("SET"), []byte(key), value}
	if ttl > 0 {
		secs := int64(math.Ceil(ttl.Seconds()))
		if secs < 1 {
			secs = 1
		}
		args = append(args, []byte("EX"), []byte(strconv.FormatInt(secs, 10)))
	}

	err := s.pool.With(ctx, func(pc *pool.Conn) error {
		rep, err := s.roundTrip(ctx, pc, args...)
		if err != nil {
			return err
		}
		if rep.Kind != resp.KindStatus || rep.Str != "OK" {
			return fmt.Errorf("%w: unexpected SET reply %+v", resp.ErrProtocol, rep)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.pool.With(ctx, func(pc *pool.Conn) error {
		rep, err := s.roundTrip(ctx, pc, []byte("DEL"), []byte(key))
		if err != nil {
			return err
		}
		if rep.Kind != resp.KindInt {
			return fmt.Errorf("%w: unexpected DEL reply %+v", resp.ErrProtocol, rep)
		}
		return nil
	})
}

func (s *Store) Close(context.Context) error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// roundTrip writes one command and reads its single reply through the
// connection's own buffered reader/writer, so bytes buffered past this reply
// stay with the connection. Server-side error lines surface as Go errors so
// the pool discards the lease's connection conservatively.
func (s *Store) roundTrip(ctx context.Context, pc *pool.Conn, args ...[]byte) (resp.Reply, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := pc.SetDeadline(dl); err != nil {
			return resp.Reply{}, err
		}
		defer pc.SetDeadline(time.Time{})
	}

	bw := pc.Writer()
	if err := resp.WriteCommand(bw, args...); err != nil {
		return resp.Reply{}, err
	}
	if err := bw.Flush(); err != nil {
		return resp.Reply{}, err
	}

	rep, err := resp.ReadReply(pc.Reader())
	if err != nil {
		return resp.Reply{}, err
	}
	if rep.IsError() {
		return resp.Reply{}, fmt.Errorf("resp provider: server error: %s", rep.Str)
	}
	return rep, nil
}
