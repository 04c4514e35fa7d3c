// Package relaycache implements a cache-aside layer with TTL expiry,
// single-flight request coalescing, and pub/sub-relayed invalidation.
//
// Components:
//   - Provider: byte store with TTL (pooled RESP store, Redis, Ristretto, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - pubsub.Bus: fan-out channel with bounded per-subscriber queues. Local
//     (in-process) by default, optional Redis implementation for multi-node.
//   - Invalidator: publishes a stamped invalidation on every Set/Delete and
//     evicts on receipt, last-writer-wins by logical write stamp.
//
// Keys:
//
//	entry:<ns>:<key> - cached entries (stamped wire frames)
//
// Expiry is enforced at read time against the deadline embedded in each
// entry's frame; provider TTLs are best-effort cleanup on top of that, so a
// hit never returns an expired value regardless of sweep timing.
//
// Coalescing pattern:
//
//	v, err := cache.GetOrLoad(ctx, k, time.Minute, loadFromDB)
//	// concurrent misses on k share one loadFromDB call; a *WriteError means
//	// v is valid but caching it failed.
package relaycache
