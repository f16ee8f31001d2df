package port

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkfold/bcache/pkg/cache"
)

// newTestHandler builds a handler over a small real content cache.
func newTestHandler(t *testing.T) *respHandler {
	t.Helper()
	contents := cache.NewBounded(16, cache.WithSizer[string](func(content []byte) int64 {
		return int64(len(content))
	}))
	handler, err := newRespHandler(contents)
	require.NoError(t, err)
	return handler
}

func TestRespHandler_RejectsNilCache(t *testing.T) {
	_, err := newRespHandler(nil)
	assert.Error(t, err)
}

func TestRespHandler_Ping(t *testing.T) {
	handler := newTestHandler(t)
	output := handler.handle(respCommand{command: "PING"})
	assert.Equal(t, "PONG", output.writeString)
}

func TestRespHandler_Quit(t *testing.T) {
	handler := newTestHandler(t)
	output := handler.handle(respCommand{command: "QUIT"})
	assert.True(t, output.closeConnection)
	assert.Equal(t, "OK", output.writeString)
}

func TestRespHandler_SetAndGet(t *testing.T) {
	handler := newTestHandler(t)

	output := handler.handle(respCommand{command: "SET", args: []string{"note.md", "contents"}})
	assert.Equal(t, "OK", output.writeString)

	output = handler.handle(respCommand{command: "GET", args: []string{"note.md"}})
	assert.Equal(t, []byte("contents"), output.writeBulk)

	t.Run("missing key returns nil", func(t *testing.T) {
		output := handler.handle(respCommand{command: "GET", args: []string{"missing"}})
		assert.True(t, output.writeNil)
	})
	t.Run("lower case commands are accepted", func(t *testing.T) {
		output := handler.handle(respCommand{command: "get", args: []string{"note.md"}})
		assert.Equal(t, []byte("contents"), output.writeBulk)
	})
	t.Run("wrong arity is an error", func(t *testing.T) {
		output := handler.handle(respCommand{command: "SET", args: []string{"only-key"}})
		require.NotNil(t, output.err)
		assert.Contains(t, *output.err, "wrong number of arguments")
	})
}

func TestRespHandler_ExistsAndDel(t *testing.T) {
	handler := newTestHandler(t)
	handler.handle(respCommand{command: "SET", args: []string{"a", "1"}})
	handler.handle(respCommand{command: "SET", args: []string{"b", "2"}})

	output := handler.handle(respCommand{command: "EXISTS", args: []string{"a", "b", "missing"}})
	require.NotNil(t, output.writeInt)
	assert.Equal(t, 2, *output.writeInt)

	output = handler.handle(respCommand{command: "DEL", args: []string{"a", "missing"}})
	require.NotNil(t, output.writeInt)
	assert.Equal(t, 1, *output.writeInt)

	output = handler.handle(respCommand{command: "EXISTS", args: []string{"a"}})
	require.NotNil(t, output.writeInt)
	assert.Equal(t, 0, *output.writeInt)
}

func TestRespHandler_KeysAndDbsize(t *testing.T) {
	handler := newTestHandler(t)
	handler.handle(respCommand{command: "SET", args: []string{"note1.md", "x"}})
	handler.handle(respCommand{command: "SET", args: []string{"note2.md", "y"}})
	handler.handle(respCommand{command: "SET", args: []string{"todo.txt", "z"}})

	output := handler.handle(respCommand{command: "KEYS", args: []string{"note*"}})
	assert.ElementsMatch(t, []string{"note1.md", "note2.md"}, output.writeArray)

	output = handler.handle(respCommand{command: "DBSIZE"})
	require.NotNil(t, output.writeInt)
	assert.Equal(t, 3, *output.writeInt)
}

func TestRespHandler_FlushallAndStats(t *testing.T) {
	handler := newTestHandler(t)
	handler.handle(respCommand{command: "SET", args: []string{"a", "1"}})
	handler.handle(respCommand{command: "GET", args: []string{"a"}})       // Hit.
	handler.handle(respCommand{command: "GET", args: []string{"missing"}}) // Miss.

	output := handler.handle(respCommand{command: "STATS"})
	stats := string(output.writeBulk)
	assert.Contains(t, stats, "hits:1")
	assert.Contains(t, stats, "misses:1")
	assert.Contains(t, stats, "hit_rate:0.5000")

	output = handler.handle(respCommand{command: "FLUSHALL"})
	assert.Equal(t, "OK", output.writeString)
	output = handler.handle(respCommand{command: "DBSIZE"})
	require.NotNil(t, output.writeInt)
	assert.Equal(t, 0, *output.writeInt)

	// FLUSHALL keeps the access counters; RESETSTATS zeroes them.
	output = handler.handle(respCommand{command: "STATS"})
	assert.Contains(t, string(output.writeBulk), "hits:1")
	handler.handle(respCommand{command: "RESETSTATS"})
	output = handler.handle(respCommand{command: "STATS"})
	assert.Contains(t, string(output.writeBulk), "hits:0")
}

func TestRespHandler_UnknownCommand(t *testing.T) {
	handler := newTestHandler(t)
	output := handler.handle(respCommand{command: "SUBSCRIBE", args: []string{"channel"}})
	require.NotNil(t, output.err)
	assert.Contains(t, *output.err, "unknown command")
}
