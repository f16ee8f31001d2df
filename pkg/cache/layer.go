// The bcache library bounds memory for derived artifacts of the note editor (raw file contents,
// parsed documents, search results). Callers construct cache instances with policy parameters and
// repopulate entries from the true source of data on a miss; nothing in here persists or talks to
// other processes. This module defines the interface shared by all cache implementations so that
// a bounded cache, a sharded cache and a disabled cache are interchangeable at call sites.

package cache

import "github.com/inkfold/bcache/pkg/utils"

// Layer defines the interface for a generic bounded key-value cache. The single-owner BoundedCache,
// the lock-per-shard Sharded wrapper and the NoOp placeholder all implement it.
type Layer[K comparable, V any] interface {
	// Get returns the cached value for key and whether it was found. A hit promotes the entry to
	// most-recently-used; an expired entry is removed and reported as a miss.
	Get(key K) (V, bool)
	// Set inserts or updates a key-value pair. The entry does not count toward the byte budget
	// unless the cache was built with a sizer.
	Set(key K, value V)
	// SetSized is Set with an explicit byte-size contribution toward the byte budget.
	SetSized(key K, value V, size int64)
	// Has reports whether key is live in the cache. It neither promotes the entry nor counts
	// toward hit/miss statistics; expired entries are removed lazily, same as Get.
	Has(key K) bool
	// Delete removes key and reports whether an entry was removed.
	Delete(key K) bool
	// Clear removes every entry.
	Clear()
	Keys() []K                   // All live keys, most- to least-recently-used.
	Values() []V                 // All live values, most- to least-recently-used.
	Entries() []utils.Pair[K, V] // All live key-value pairs, most- to least-recently-used.
	Len() int                    // Number of live entries.
	Stats() Stats                // A snapshot of the access counters.
	ResetStats()                 // Zeroes the access counters; cache contents are untouched.
}

// Stats is a point-in-time snapshot of a cache's access counters. Hits, Misses and Evictions only
// grow until ResetStats; Size and SizeBytes track the live contents.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64 // Capacity evictions only; expiries and explicit deletes are not counted.
	Size      int    // Current number of entries.
	MaxSize   int    // The configured entry-count bound.
	SizeBytes int64  // Current sum of sized entries.
	HitRate   float64
}

// hitRate computes hits/(hits+misses), defined as zero before the first access.
func hitRate(hits, misses uint64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}

// NoOp is a cache that stores nothing. It stands in for a real cache when caching is disabled by
// configuration, so call sites don't need a nil check on every access.
type NoOp[K comparable, V any] struct{} // Implements Layer.

var _ Layer[int, int] = (*NoOp[int, int])(nil)

// NewNoOp returns a no-operation cache layer that does not store any items.
func NewNoOp[K comparable, V any]() *NoOp[K, V] {
	return &NoOp[K, V]{}
}

// Get always returns false, indicating the key is not found.
func (n *NoOp[K, V]) Get(key K) (V, bool) {
	var zero V
	return zero, false
}

func (n *NoOp[K, V]) Set(key K, value V) {}

func (n *NoOp[K, V]) SetSized(key K, value V, size int64) {}

func (n *NoOp[K, V]) Has(key K) bool { return false }

func (n *NoOp[K, V]) Delete(key K) bool { return false }

func (n *NoOp[K, V]) Clear() {}

func (n *NoOp[K, V]) Keys() []K { return nil }

func (n *NoOp[K, V]) Values() []V { return nil }

func (n *NoOp[K, V]) Entries() []utils.Pair[K, V] { return nil }

func (n *NoOp[K, V]) Len() int { return 0 }

func (n *NoOp[K, V]) Stats() Stats { return Stats{} }

func (n *NoOp[K, V]) ResetStats() {}
