// The note editor derives several artifact kinds from the true data on disk: raw file contents,
// parsed documents and search results. Each kind gets a preconfigured cache profile here. The
// profiles are thin parameterizations of the bounded cache, configured by flags and instrumented
// with an eviction debug line and a Prometheus counter; they add no behavior of their own.
// Callers construct the instances they need and own them explicitly; there are no package-level
// cache singletons.

package artifact

import (
	"flag"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/inkfold/bcache/pkg/cache"
)

var (
	contentCacheEnabled = flag.Bool("content_cache_enabled", true, "Enable the note content cache.")
	contentCacheMaxEntries = flag.Int("content_cache_max_entries", 512,
		"The maximum number of note contents to keep in the content cache; 0 disables the cache.")
	contentCacheMaxBytes = flag.Int64("content_cache_max_bytes", 64<<20,
		"The byte budget for the content cache; 0 or negative means no byte budget.")
	contentCacheTtl = flag.Duration("content_cache_ttl", 10*time.Minute,
		"The maximum age of a content cache entry; 0 disables expiry.")
	contentCacheShardCount = flag.Int("content_cache_shard_count", runtime.NumCPU(),
		"The number of content cache shards; 1 keeps a single instance.")

	documentCacheEnabled = flag.Bool("document_cache_enabled", true, "Enable the parsed document cache.")
	documentCacheMaxEntries = flag.Int("document_cache_max_entries", 256,
		"The maximum number of parsed documents to keep in the document cache; 0 disables the cache.")
	documentCacheTtl = flag.Duration("document_cache_ttl", 30*time.Minute,
		"The maximum age of a document cache entry; 0 disables expiry.")

	searchCacheEnabled = flag.Bool("search_cache_enabled", true, "Enable the search result cache.")
	searchCacheMaxEntries = flag.Int("search_cache_max_entries", 128,
		"The maximum number of result sets to keep in the search cache; 0 disables the cache.")
	searchCacheTtl = flag.Duration("search_cache_ttl", 90*time.Second,
		"The maximum age of a search cache entry; search results go stale quickly on edits.")

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_cache_evictions_total",
		Help: "Total number of artifact cache capacity evictions.",
	}, []string{"cache" /* content | document | search */})
)

// evictionDiagnostics builds the eviction side effect for a profile: a debug log line plus a
// counter bump, nothing else. It must not call back into the cache.
func evictionDiagnostics[K comparable, V any](cacheName string) func(K, V) {
	counter := cacheEvictions.WithLabelValues(cacheName)
	return func(key K, _ V) {
		counter.Inc()
		slog.Debug("Artifact cache entry evicted.", "cache", cacheName, "key", key)
	}
}

// NewContentCache builds the cache profile for raw note file contents, keyed by note path. It is
// bounded by entry count and a byte budget sized from the content length. With more than one
// configured shard the bounds are split across shards and lookups for never-cached paths are
// short-circuited by a negative-lookup filter.
func NewContentCache() cache.Layer[string, []byte] {
	if !*contentCacheEnabled || *contentCacheMaxEntries <= 0 {
		return cache.NewNoOp[string, []byte]()
	}

	newShard := func(maxEntries int, maxBytes int64) cache.Layer[string, []byte] {
		opts := []cache.Option[string, []byte]{
			cache.WithTTL[string, []byte](*contentCacheTtl),
			cache.WithSizer[string](func(content []byte) int64 { return int64(len(content)) }),
			cache.WithEvictionCallback[string, []byte](evictionDiagnostics[string, []byte]("content")),
		}
		if maxBytes > 0 {
			opts = append(opts, cache.WithMaxBytes[string, []byte](maxBytes))
		}
		return cache.NewBounded(maxEntries, opts...)
	}

	shardCount := *contentCacheShardCount
	if shardCount <= 1 {
		return newShard(*contentCacheMaxEntries, *contentCacheMaxBytes)
	}

	// Split the bounds across shards so the aggregate capacity stays as configured.
	entriesPerShard := max(*contentCacheMaxEntries/shardCount, 1)
	bytesPerShard := *contentCacheMaxBytes
	if bytesPerShard > 0 {
		bytesPerShard = max(bytesPerShard/int64(shardCount), 1)
	}
	return cache.NewSharded(
		func() cache.Layer[string, []byte] { return newShard(entriesPerShard, bytesPerShard) },
		shardCount,
		cache.WithNegativeLookupFilter[string, []byte](uint(*contentCacheMaxEntries)*8, 0.01),
	)
}

// NewDocumentCache builds the cache profile for parsed documents, keyed by note path. The value
// type is generic since every editor surface parses notes into its own document shape. Parsed
// documents are bounded by entry count only; their in-memory footprint has no cheap byte measure.
func NewDocumentCache[D any]() cache.Layer[string, D] {
	if !*documentCacheEnabled || *documentCacheMaxEntries <= 0 {
		return cache.NewNoOp[string, D]()
	}
	return cache.NewBounded(*documentCacheMaxEntries,
		cache.WithTTL[string, D](*documentCacheTtl),
		cache.WithEvictionCallback[string, D](evictionDiagnostics[string, D]("document")),
	)
}

// NewSearchResultCache builds the cache profile for search result sets, keyed by the query string.
// Result sets are small but go stale as soon as notes change, so the profile leans on a short TTL
// rather than a large capacity.
func NewSearchResultCache[R any]() cache.Layer[string, R] {
	if !*searchCacheEnabled || *searchCacheMaxEntries <= 0 {
		return cache.NewNoOp[string, R]()
	}
	return cache.NewBounded(*searchCacheMaxEntries,
		cache.WithTTL[string, R](*searchCacheTtl),
		cache.WithEvictionCallback[string, R](evictionDiagnostics[string, R]("search")),
	)
}
