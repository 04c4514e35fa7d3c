package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/relaycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	ExpiredEvery  uint64
	StaleEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	expiredCtr  atomic.Uint64
	staleCtr    atomic.Uint64
}

var _ relaycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("relaycache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) EntryExpired(storageKey string) {
	if h.l == nil || !sample(h.opts.ExpiredEvery, &h.expiredCtr) {
		return
	}
	h.l.Debug("relaycache.entry_expired",
		"key", h.redact(storageKey))
}

func (h *Hooks) ReadUnavailable(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("relaycache.read_unavailable",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) CacheWriteFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("relaycache.cache_write_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("relaycache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) PublishFailed(channel string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("relaycache.publish_failed",
		"channel", channel,
		"err", err)
}

func (h *Hooks) StaleInvalidationDropped(storageKey string, msgStamp, lastWrite uint64) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("relaycache.stale_invalidation_dropped",
		"key", h.redact(storageKey),
		"msg_stamp", msgStamp,
		"last_write", lastWrite)
}

func (h *Hooks) EvictApplied(storageKey string, stamp uint64) {
	if h.l == nil {
		return
	}
	h.l.Debug("relaycache.evict_applied",
		"key", h.redact(storageKey),
		"stamp", stamp)
}
