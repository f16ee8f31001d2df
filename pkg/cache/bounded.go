// This module implements the bounded associative store at the center of the library.
//
// Eviction policy (LRU with budgets):
// Entries are indexed by a map for O(1) lookup and threaded through a doubly linked list in strict
// recency order. Every Set and every hitting Get moves the touched entry to the front of the list.
// After each Set the cache evicts from the back of the list until both the entry-count bound and
// the optional byte budget hold again.
//
// Expiration policy (lazy TTL):
// There is no background sweeper. An entry older than the configured TTL is removed the next time
// Get or Has lands on it and is reported as absent. Expiry is not an eviction: it never runs the
// eviction callback and is not counted in the eviction statistics.

package cache

import (
	"sync"
	"time"

	"github.com/inkfold/bcache/pkg/utils"
)

// noByteBudget disables byte accounting; a configured budget of zero is a valid (always-over)
// budget, so absence is encoded as a negative value.
const noByteBudget = int64(-1)

// unsized marks entries that carry no byte-size contribution. They never count toward the budget.
const unsized = int64(-1)

// entry is a single cache record. It is owned by the cache: the index references it exactly once
// and the recency list at most twice (as a neighbor's prev/next).
type entry[K comparable, V any] struct {
	key       K
	value     V
	size      int64     // Byte contribution toward the budget, or unsized.
	touchedAt time.Time // Refreshed on every Set and on every promoting Get.
}

// BoundedCache is a thread-safe in-memory cache bounded by an entry count and an optional byte
// budget, with lazy TTL expiry and hit/miss/eviction accounting. All operations are O(1) except
// Clear, Keys, Values and Entries, which are linear in the number of live entries.
type BoundedCache[K comparable, V any] struct { // Implements Layer.
	maxCount int
	maxBytes int64         // Negative means no byte budget.
	ttl      time.Duration // Zero or negative means entries never expire.
	sizer    func(V) int64 // Optional; computes an entry size on plain Set.
	onEvict  func(K, V)

	// A single mutex guards the index and the recency list as one critical section; the eviction
	// pass mutates both together and readers must observe them consistently.
	mux      sync.Mutex
	index    map[K]*linkedListNode[*entry[K, V]]
	recency  linkedList[*entry[K, V]]
	curBytes int64 // Running sum of the sizes of all sized entries.

	hits, misses, evictions uint64
}

var _ Layer[int, int] = (*BoundedCache[int, int])(nil)

// NewBounded is the constructor for BoundedCache. maxCount of zero is a valid configuration that
// degenerates to "caching disabled": every inserted entry is evicted immediately.
// NOTE: an eviction callback configured via WithEvictionCallback runs while the cache lock is
// held, so it must not call back into the cache or it will deadlock.
func NewBounded[K comparable, V any](maxCount int, opts ...Option[K, V]) *BoundedCache[K, V] {
	if maxCount < 0 {
		utils.RaiseInvariant("cache", "negative_cache_capacity",
			"A negative entry bound has been given to a bounded cache.", "maxCount", maxCount)
		maxCount = 0
	}
	boundedCache := &BoundedCache[K, V]{
		maxCount: maxCount,
		maxBytes: noByteBudget,
		index:    make(map[K]*linkedListNode[*entry[K, V]]),
	}
	for _, opt := range opts {
		opt(boundedCache)
	}
	return boundedCache
}

// expired reports whether an entry has outlived the configured TTL.
func (c *BoundedCache[K, V]) expired(e *entry[K, V]) bool {
	return c.ttl > 0 && time.Since(e.touchedAt) > c.ttl
}

// unlink removes a node from the index, the recency list and the byte accounting in one step.
// Both structures must stay consistent inside every critical section; this is the only place a
// live entry is taken apart.
func (c *BoundedCache[K, V]) unlink(node *linkedListNode[*entry[K, V]]) {
	e := node.Value
	delete(c.index, e.key)
	c.recency.Remove(node)
	if e.size != unsized {
		c.curBytes -= e.size
	}
}

// Get returns the cached value for key and whether it was found. A hit refreshes the entry's
// timestamp and promotes it to most-recently-used. An expired entry is removed on the spot and
// counted as a miss; expiry does not run the eviction callback.
func (c *BoundedCache[K, V]) Get(key K) (V, bool /*found*/) {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, found := c.index[key]
	if !found {
		c.misses++
		return *new(V), false
	}
	if c.expired(node.Value) {
		c.unlink(node)
		c.misses++
		return *new(V), false
	}
	c.hits++
	node.Value.touchedAt = time.Now()
	c.recency.MoveToFront(node)
	return node.Value.value, true
}

// Set inserts or updates a key-value pair. When the cache was built with a sizer, the entry's
// byte contribution is computed from the value; otherwise the entry does not count toward the
// byte budget.
func (c *BoundedCache[K, V]) Set(key K, value V) {
	size := unsized
	if c.sizer != nil {
		size = c.sizer(value)
	}
	c.set(key, value, size)
}

// SetSized is Set with an explicit byte-size contribution toward the byte budget.
func (c *BoundedCache[K, V]) SetSized(key K, value V, size int64) {
	c.set(key, value, size)
}

func (c *BoundedCache[K, V]) set(key K, value V, size int64) {
	if size < 0 {
		// Sizes are caller-computed and trusted, but a negative one would corrupt the byte
		// accounting. Flag it and store the entry as unsized.
		if size != unsized {
			utils.RaiseInvariant("cache", "negative_entry_size",
				"A negative byte size has been given to a cache entry.", "size", size)
		}
		size = unsized
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	now := time.Now()
	if node, found := c.index[key]; found {
		// Update the existing entry in place rather than recreating it.
		e := node.Value
		if e.size != unsized {
			c.curBytes -= e.size
		}
		e.value = value
		e.size = size
		e.touchedAt = now
		if size != unsized {
			c.curBytes += size
		}
		c.recency.MoveToFront(node)
	} else {
		node := c.recency.PushFront(&entry[K, V]{key: key, value: value, size: size, touchedAt: now})
		c.index[key] = node
		if size != unsized {
			c.curBytes += size
		}
	}

	// Eviction pass: evict from the least-recently-used end until both bounds hold. Every
	// iteration strictly shrinks the cache, so the loop terminates. With maxCount == 0 the entry
	// that was just inserted is itself evicted, which makes a zero-capacity cache a valid
	// "caching disabled" configuration rather than an error.
	for len(c.index) > c.maxCount || (c.maxBytes >= 0 && c.curBytes > c.maxBytes) {
		tail := c.recency.Back()
		if tail == nil {
			return
		}
		evicted := tail.Value
		c.unlink(tail)
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(evicted.key, evicted.value)
		}
	}
}

// Has reports whether key is live in the cache. Unlike Get it does not promote the entry and does
// not count toward the hit/miss statistics; an existence probe is a side channel, not a cache
// access. Expired entries are removed lazily, same as in Get.
func (c *BoundedCache[K, V]) Has(key K) bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, found := c.index[key]
	if !found {
		return false
	}
	if c.expired(node.Value) {
		c.unlink(node)
		return false
	}
	return true
}

// Delete removes key and reports whether an entry was removed. An explicit removal is a caller
// decision, not capacity pressure: the eviction callback does not run and no statistic changes.
func (c *BoundedCache[K, V]) Delete(key K) bool {
	c.mux.Lock()
	defer c.mux.Unlock()

	node, found := c.index[key]
	if !found {
		return false
	}
	c.unlink(node)
	return true
}

// Clear removes every entry, running the eviction callback once per entry so external bookkeeping
// can release whatever it tracks. The hit/miss/eviction counters survive until ResetStats.
func (c *BoundedCache[K, V]) Clear() {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.onEvict != nil {
		for node := c.recency.Front(); node != nil; node = node.Next() {
			c.onEvict(node.Value.key, node.Value.value)
		}
	}
	c.index = make(map[K]*linkedListNode[*entry[K, V]])
	c.recency = linkedList[*entry[K, V]]{}
	c.curBytes = 0
}

// Keys returns all live keys ordered from most- to least-recently-used. The result is a snapshot;
// taking it promotes nothing and does not expire anything.
func (c *BoundedCache[K, V]) Keys() []K {
	c.mux.Lock()
	defer c.mux.Unlock()

	keys := make([]K, 0, c.recency.Len())
	for node := c.recency.Front(); node != nil; node = node.Next() {
		keys = append(keys, node.Value.key)
	}
	return keys
}

// Values returns all live values ordered from most- to least-recently-used.
func (c *BoundedCache[K, V]) Values() []V {
	c.mux.Lock()
	defer c.mux.Unlock()

	values := make([]V, 0, c.recency.Len())
	for node := c.recency.Front(); node != nil; node = node.Next() {
		values = append(values, node.Value.value)
	}
	return values
}

// Entries returns all live key-value pairs ordered from most- to least-recently-used.
func (c *BoundedCache[K, V]) Entries() []utils.Pair[K, V] {
	c.mux.Lock()
	defer c.mux.Unlock()

	pairs := make([]utils.Pair[K, V], 0, c.recency.Len())
	for node := c.recency.Front(); node != nil; node = node.Next() {
		pairs = append(pairs, utils.Pair[K, V]{Key: node.Value.key, Value: node.Value.value})
	}
	return pairs
}

// Len returns the number of live entries.
func (c *BoundedCache[K, V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.index)
}

// SizeBytes returns the current sum of the sizes of all sized entries.
func (c *BoundedCache[K, V]) SizeBytes() int64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.curBytes
}

// Stats returns a snapshot of the access counters.
func (c *BoundedCache[K, V]) Stats() Stats {
	c.mux.Lock()
	defer c.mux.Unlock()

	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.index),
		MaxSize:   c.maxCount,
		SizeBytes: c.curBytes,
		HitRate:   hitRate(c.hits, c.misses),
	}
}

// ResetStats zeroes the hit/miss/eviction counters. Cache contents are untouched.
func (c *BoundedCache[K, V]) ResetStats() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.hits, c.misses, c.evictions = 0, 0, 0
}
