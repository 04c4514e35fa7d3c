package relaycache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A single entry was deleted on read.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// An entry was found past its embedded deadline and removed on read.
	EntryExpired(storageKey string)

	// A read-side store failure was converted into a forced miss.
	ReadUnavailable(storageKey string, err error)

	// A loaded value could not be cached; the caller still got the value.
	CacheWriteFailed(key string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// An invalidation broadcast exhausted its retries.
	PublishFailed(channel string, err error)

	// A received invalidation was older than the local last write and
	// was dropped instead of evicting.
	StaleInvalidationDropped(storageKey string, msgStamp, lastWrite uint64)

	// A received invalidation evicted the entry on this node.
	EvictApplied(storageKey string, stamp uint64)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)                         {}
func (NopHooks) EntryExpired(string)                             {}
func (NopHooks) ReadUnavailable(string, error)                   {}
func (NopHooks) CacheWriteFailed(string, error)                  {}
func (NopHooks) ProviderSetRejected(string)                      {}
func (NopHooks) PublishFailed(string, error)                     {}
func (NopHooks) StaleInvalidationDropped(string, uint64, uint64) {}
func (NopHooks) EvictApplied(string, uint64)                     {}
