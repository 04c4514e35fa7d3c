package relaycache

import (
	"fmt"
	"os"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/unkn0wn-root/relaycache/pool"
)

// Config is the deployment-level knob surface. Zero values fall back to the
// documented defaults; DefaultTTL of 0 means "no default" and callers of
// Load get the library default instead.
type Config struct {
	PoolMaxSize    int           // 0 => 10
	IdleTimeout    time.Duration // 0 => 300s
	ConnectTimeout time.Duration // 0 => 5s
	DefaultTTL     time.Duration // optional
}

func DefaultConfig() Config {
	return Config{
		PoolMaxSize:    pool.DefaultMaxSize,
		IdleTimeout:    pool.DefaultIdleTimeout,
		ConnectTimeout: pool.DefaultConnectTimeout,
	}
}

// Environment variables recognized by ConfigFromEnv. Durations accept both
// Go syntax ("5m30s") and day/week units ("1d12h") via str2duration.
const (
	EnvPoolMaxSize    = "RELAYCACHE_POOL_MAX_SIZE"
	EnvIdleTimeout    = "RELAYCACHE_IDLE_TIMEOUT"
	EnvConnectTimeout = "RELAYCACHE_CONNECT_TIMEOUT"
	EnvDefaultTTL     = "RELAYCACHE_DEFAULT_TTL"
)

// ConfigFromEnv builds a Config from the environment, using defaults for
// unset variables and failing on unparseable ones.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv(EnvPoolMaxSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("relaycache: bad %s=%q", EnvPoolMaxSize, v)
		}
		cfg.PoolMaxSize = n
	}
	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{EnvIdleTimeout, &cfg.IdleTimeout},
		{EnvConnectTimeout, &cfg.ConnectTimeout},
		{EnvDefaultTTL, &cfg.DefaultTTL},
	} {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		dur, err := str2duration.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("relaycache: bad %s=%q: %w", d.env, v, err)
		}
		*d.dst = dur
	}
	return cfg, nil
}

// PoolConfig maps this Config onto a pool.Config for the given dialer.
func (c Config) PoolConfig(dial pool.Dialer) pool.Config {
	return pool.Config{
		Dial:           dial,
		MaxSize:        c.PoolMaxSize,
		IdleTimeout:    c.IdleTimeout,
		ConnectTimeout: c.ConnectTimeout,
	}
}
