package artifact

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	promclient "github.com/prometheus/client_model/go"

	"github.com/inkfold/bcache/pkg/cache"
	"github.com/inkfold/bcache/pkg/utils"
)

// evictionsMetricValue reads the current eviction counter for one cache profile.
func evictionsMetricValue(t *testing.T, cacheName string) int {
	t.Helper()
	var metric promclient.Metric
	require.NoError(t, cacheEvictions.WithLabelValues(cacheName).Write(&metric))
	return int(metric.Counter.GetValue())
}

func TestNewContentCache_DisabledByFlag(t *testing.T) {
	utils.SetTestFlag(t, "content_cache_enabled", "false")

	contents := NewContentCache()
	contents.Set("note.md", []byte("contents"))
	assert.False(t, contents.Has("note.md"), "A disabled cache must store nothing")
	assert.Zero(t, contents.Len())
}

func TestNewContentCache_ZeroEntriesDisables(t *testing.T) {
	utils.SetTestFlag(t, "content_cache_max_entries", "0")

	contents := NewContentCache()
	contents.Set("note.md", []byte("contents"))
	assert.Zero(t, contents.Len())
}

func TestNewContentCache_SingleInstance(t *testing.T) {
	utils.SetTestFlag(t, "content_cache_shard_count", "1")
	utils.SetTestFlag(t, "content_cache_max_entries", "16")
	utils.SetTestFlag(t, "content_cache_max_bytes", "100")

	contents := NewContentCache()
	evictionsBefore := evictionsMetricValue(t, "content")

	// Contents are sized by length, so two 60-byte notes overflow the 100-byte budget.
	contents.Set("a.md", []byte(strings.Repeat("x", 60)))
	contents.Set("b.md", []byte(strings.Repeat("y", 60)))

	assert.False(t, contents.Has("a.md"), "The older note should have been evicted over budget")
	assert.True(t, contents.Has("b.md"))
	assert.Equal(t, int64(60), contents.Stats().SizeBytes)
	assert.Equal(t, evictionsBefore+1, evictionsMetricValue(t, "content"),
		"Evictions should be visible on the Prometheus counter")
}

func TestNewContentCache_Sharded(t *testing.T) {
	utils.SetTestFlag(t, "content_cache_shard_count", "4")
	utils.SetTestFlag(t, "content_cache_max_entries", "8")
	utils.SetTestFlag(t, "content_cache_max_bytes", "0") // No byte budget.

	contents := NewContentCache()
	for i := range 100 {
		contents.Set(fmt.Sprintf("note-%d.md", i), []byte("contents"))
	}

	assert.LessOrEqual(t, contents.Len(), 8, "Aggregate capacity is split across the shards")
	assert.Positive(t, contents.Stats().Evictions)

	// A key that was never stored is answered by the negative-lookup filter and counted as a miss.
	missesBefore := contents.Stats().Misses
	_, found := contents.Get("never-stored.md")
	assert.False(t, found)
	assert.Equal(t, missesBefore+1, contents.Stats().Misses)
}

func TestNewDocumentCache(t *testing.T) {
	type parsedDoc struct {
		Title  string
		Blocks []string
	}

	t.Run("caches parsed documents", func(t *testing.T) {
		documents := NewDocumentCache[*parsedDoc]()
		documents.Set("note.md", &parsedDoc{Title: "Note", Blocks: []string{"p1", "p2"}})

		got, found := documents.Get("note.md")
		require.True(t, found)
		assert.Equal(t, "Note", got.Title)
	})
	t.Run("disabled by flag", func(t *testing.T) {
		utils.SetTestFlag(t, "document_cache_enabled", "false")
		documents := NewDocumentCache[*parsedDoc]()
		documents.Set("note.md", &parsedDoc{})
		assert.Zero(t, documents.Len())
	})
}

func TestNewSearchResultCache_TTL(t *testing.T) {
	utils.SetTestFlag(t, "search_cache_ttl", "50ms")

	results := NewSearchResultCache[[]string]()
	results.Set("tag:todo", []string{"a.md", "b.md"})

	got, found := results.Get("tag:todo")
	require.True(t, found, "Fresh results should be served from the cache")
	assert.Equal(t, []string{"a.md", "b.md"}, got)

	time.Sleep(120 * time.Millisecond)
	_, found = results.Get("tag:todo")
	assert.False(t, found, "Stale search results must expire")
}

// TestPresetsImplementLayer pins the profiles to the shared cache interface.
func TestPresetsImplementLayer(t *testing.T) {
	var _ cache.Layer[string, []byte] = NewContentCache()
	var _ cache.Layer[string, int] = NewDocumentCache[int]()
	var _ cache.Layer[string, []string] = NewSearchResultCache[[]string]()
}
