package cache

import (
	"time"

	"github.com/inkfold/bcache/pkg/utils"
)

// Option configures a BoundedCache at construction time.
type Option[K comparable, V any] func(*BoundedCache[K, V])

// WithMaxBytes bounds the sum of the byte sizes of all sized entries. A budget of zero is valid
// and evicts every sized entry immediately; unsized entries are unaffected by the budget.
func WithMaxBytes[K comparable, V any](maxBytes int64) Option[K, V] {
	return func(c *BoundedCache[K, V]) {
		if maxBytes < 0 {
			utils.RaiseInvariant("cache", "negative_byte_budget",
				"A negative byte budget has been given to a bounded cache.", "maxBytes", maxBytes)
			maxBytes = noByteBudget
		}
		c.maxBytes = maxBytes
	}
}

// WithTTL sets the maximum age of an entry, measured from its last Set or promoting Get. Expiry is
// lazy: an entry past its TTL is removed when Get or Has lands on it, not by a background sweeper.
// A zero or negative duration means entries never expire by age.
func WithTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *BoundedCache[K, V]) {
		c.ttl = ttl
	}
}

// WithSizer supplies a function that computes the byte-size contribution of a value, so plain Set
// calls participate in the byte budget without every caller computing sizes by hand.
func WithSizer[K comparable, V any](sizer func(V) int64) Option[K, V] {
	return func(c *BoundedCache[K, V]) {
		c.sizer = sizer
	}
}

// WithEvictionCallback registers a side effect that runs exactly once per capacity-evicted entry,
// after the entry is fully unlinked. Expiry and explicit Delete never trigger it; Clear does.
// NOTE: the callback runs under the cache lock and must not call back into the cache.
func WithEvictionCallback[K comparable, V any](onEvict func(K, V)) Option[K, V] {
	return func(c *BoundedCache[K, V]) {
		c.onEvict = onEvict
	}
}
