// This module implements cache sharding which distributes keys uniformly across cache shards.
// Each bounded cache holds one mutex over its map and recency list, so under concurrent load every
// access serializes on that lock. Sharding splits the key space across independent cache instances
// so goroutines touching different keys contend on different locks.
//
// An optional negative-lookup filter keeps a bloom filter of every key ever stored. Lookups for
// keys that were never stored are answered without touching a shard at all; keys that were deleted
// or evicted stay in the filter and only cost a shard lookup, never a wrong answer.

package cache

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"

	"github.com/inkfold/bcache/pkg/utils"
)

// Sharded distributes keys across multiple underlying cache instances to reduce lock contention.
// Statistics are aggregated over all shards, so a Sharded cache reports the same counters a single
// cache with the combined capacity would.
type Sharded[K comparable, V any] struct { // Implements Layer.
	shards []Layer[K, V]
	hash   func(key K) uint64 // Picks the shard index for a key.

	// seen is the optional negative-lookup filter; nil when disabled. Guarded by seenMux since
	// the filter is not safe for concurrent mutation.
	seen           *bloom.BloomFilter
	seenMux        sync.RWMutex
	filteredMisses atomic.Uint64 // Misses answered by the filter without a shard lookup.
}

var _ Layer[int, int] = (*Sharded[int, int])(nil)

// ShardedOption configures a Sharded cache at construction time.
type ShardedOption[K comparable, V any] func(*Sharded[K, V])

// WithNegativeLookupFilter enables the bloom filter over stored keys. expectedEntries should be in
// the order of the total key population; falsePositiveRate trades filter memory for the share of
// never-stored keys that still fall through to a shard lookup.
func WithNegativeLookupFilter[K comparable, V any](expectedEntries uint, falsePositiveRate float64) ShardedOption[K, V] {
	return func(s *Sharded[K, V]) {
		s.seen = bloom.NewWithEstimates(expectedEntries, falsePositiveRate)
	}
}

// hashBytes hashes a fixed-size binary rendering of a numeric key.
func hashBytes(u uint64, width int) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u)
	return xxhash.Sum64(b[:width])
}

// keyHasher returns a xxhash based hash function specialized for the key type. Fixed-size numeric
// keys hash their binary representation; other types fall back to their printed form, which is
// slower but works for any comparable type.
func keyHasher[K comparable]() func(key K) uint64 {
	switch any(*new(K)).(type) {
	case string:
		return func(key K) uint64 { return xxhash.Sum64String(any(key).(string)) }
	case int:
		// int is architecture-dependent, so widen it to a fixed-size type before hashing.
		return func(key K) uint64 { return hashBytes(uint64(any(key).(int)), 8) }
	case uint:
		return func(key K) uint64 { return hashBytes(uint64(any(key).(uint)), 8) }
	case int32:
		return func(key K) uint64 { return hashBytes(uint64(uint32(any(key).(int32))), 4) }
	case uint32:
		return func(key K) uint64 { return hashBytes(uint64(any(key).(uint32)), 4) }
	case int64:
		return func(key K) uint64 { return hashBytes(uint64(any(key).(int64)), 8) }
	case uint64:
		return func(key K) uint64 { return hashBytes(any(key).(uint64), 8) }
	case bool:
		return func(key K) uint64 {
			if any(key).(bool) {
				return hashBytes(1, 1)
			}
			return hashBytes(0, 1)
		}
	default:
		return func(key K) uint64 { return xxhash.Sum64String(fmt.Sprintf("%#v", key)) }
	}
}

// NewSharded is the constructor for Sharded. layerGenerator builds the individual shard instances;
// every shard carries its own bounds, so the effective capacity is shardCount times the per-shard
// configuration.
func NewSharded[K comparable, V any](layerGenerator func() Layer[K, V], shardCount int,
	opts ...ShardedOption[K, V]) *Sharded[K, V] {
	if shardCount <= 0 {
		utils.RaiseInvariant("sharded", "non_positive_shard_count",
			"An invalid shard count has been given to a sharded cache.", "shardCount", shardCount)
		shardCount = 1
	}
	sharded := &Sharded[K, V]{shards: make([]Layer[K, V], shardCount), hash: keyHasher[K]()}
	for i := range shardCount {
		sharded.shards[i] = layerGenerator()
	}
	for _, opt := range opts {
		opt(sharded)
	}
	return sharded
}

// getShard maps a key to its shard by hashing it modulo the shard count.
func (s *Sharded[K, V]) getShard(key K) Layer[K, V] {
	return s.shards[s.hash(key)%uint64(len(s.shards))]
}

// definitelyAbsent reports whether the negative-lookup filter can prove the key was never stored.
func (s *Sharded[K, V]) definitelyAbsent(key K) bool {
	if s.seen == nil {
		return false
	}
	var keyHash [8]byte
	binary.LittleEndian.PutUint64(keyHash[:], s.hash(key))
	s.seenMux.RLock()
	defer s.seenMux.RUnlock()
	return !s.seen.Test(keyHash[:])
}

// markSeen records a stored key in the negative-lookup filter.
func (s *Sharded[K, V]) markSeen(key K) {
	if s.seen == nil {
		return
	}
	var keyHash [8]byte
	binary.LittleEndian.PutUint64(keyHash[:], s.hash(key))
	s.seenMux.Lock()
	defer s.seenMux.Unlock()
	s.seen.Add(keyHash[:])
}

// Get finds the appropriate shard for the key and retrieves the value from it. A lookup answered
// by the negative-lookup filter still counts as a miss in the aggregated statistics.
func (s *Sharded[K, V]) Get(key K) (V, bool /*found*/) {
	if s.definitelyAbsent(key) {
		s.filteredMisses.Add(1)
		return *new(V), false
	}
	return s.getShard(key).Get(key)
}

// Set finds the appropriate shard for the key and stores the pair in it.
func (s *Sharded[K, V]) Set(key K, value V) {
	s.markSeen(key)
	s.getShard(key).Set(key, value)
}

// SetSized is Set with an explicit byte-size contribution toward the shard's byte budget.
func (s *Sharded[K, V]) SetSized(key K, value V, size int64) {
	s.markSeen(key)
	s.getShard(key).SetSized(key, value, size)
}

// Has reports whether key is live in its shard. Existence probes never touch the statistics, so
// a filter answer is returned without further bookkeeping.
func (s *Sharded[K, V]) Has(key K) bool {
	if s.definitelyAbsent(key) {
		return false
	}
	return s.getShard(key).Has(key)
}

// Delete removes key from its shard. The key stays in the negative-lookup filter; the stale
// filter entry only costs later lookups a shard visit.
func (s *Sharded[K, V]) Delete(key K) bool {
	return s.getShard(key).Delete(key)
}

// Clear clears every shard and resets the negative-lookup filter.
func (s *Sharded[K, V]) Clear() {
	for _, shard := range s.shards {
		shard.Clear()
	}
	if s.seen != nil {
		s.seenMux.Lock()
		s.seen.ClearAll()
		s.seenMux.Unlock()
	}
}

// Keys aggregates the keys of all shards. Recency order only holds within a shard, not across the
// aggregate.
func (s *Sharded[K, V]) Keys() []K {
	keys := make([]K, 0)
	for _, shard := range s.shards {
		keys = append(keys, shard.Keys()...)
	}
	return keys
}

// Values aggregates the values of all shards.
func (s *Sharded[K, V]) Values() []V {
	values := make([]V, 0)
	for _, shard := range s.shards {
		values = append(values, shard.Values()...)
	}
	return values
}

// Entries aggregates the key-value pairs of all shards.
func (s *Sharded[K, V]) Entries() []utils.Pair[K, V] {
	pairs := make([]utils.Pair[K, V], 0)
	for _, shard := range s.shards {
		pairs = append(pairs, shard.Entries()...)
	}
	return pairs
}

// Len sums the number of live entries over all shards.
func (s *Sharded[K, V]) Len() int {
	total := 0
	for _, shard := range s.shards {
		total += shard.Len()
	}
	return total
}

// Stats sums the counters of all shards and recomputes the aggregate hit rate. Filtered misses
// are folded in so the counters match what callers observed.
func (s *Sharded[K, V]) Stats() Stats {
	var aggregated Stats
	for _, shard := range s.shards {
		shardStats := shard.Stats()
		aggregated.Hits += shardStats.Hits
		aggregated.Misses += shardStats.Misses
		aggregated.Evictions += shardStats.Evictions
		aggregated.Size += shardStats.Size
		aggregated.MaxSize += shardStats.MaxSize
		aggregated.SizeBytes += shardStats.SizeBytes
	}
	aggregated.Misses += s.filteredMisses.Load()
	aggregated.HitRate = hitRate(aggregated.Hits, aggregated.Misses)
	return aggregated
}

// ResetStats zeroes the counters of every shard and the filtered-miss counter.
func (s *Sharded[K, V]) ResetStats() {
	for _, shard := range s.shards {
		shard.ResetStats()
	}
	s.filteredMisses.Store(0)
}
