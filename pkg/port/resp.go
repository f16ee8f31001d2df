// The caches live inside the host application; when eviction behavior looks off there is no place
// to poke at them from the outside. This module exposes a cache instance on a Redis protocol
// listener so an operator can inspect and mutate it with redis-cli during debugging sessions.
// It is a diagnostic surface only: contents stay process-local and nothing is replicated.

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/redcon"

	"github.com/inkfold/bcache/pkg/cache"
	"github.com/inkfold/bcache/pkg/scan"
)

var address = flag.String("debug_address", "localhost:6380",
	"The ip:port to listen on for the Redis protocol debug surface; empty disables it.")

// respCommand represents a parsed client command with its arguments.
type respCommand struct {
	command string
	args    []string
}

// respOutput conforms to a real Redis server output for the commands the debug surface supports.
type respOutput struct {
	closeConnection bool    // Closes the connection if true.
	writeNil        bool    // Writes a nil value if true.
	err             *string // Error to return if set.
	writeInt        *int    // Writes an integer value if set.
	writeBulk       []byte  // Writes a bulk string if set.
	writeArray      []string
	writeString     string // Writes a simple string otherwise.
}

func closeConnection(msg string) respOutput {
	return respOutput{writeString: msg, closeConnection: true}
}

func writeNil() respOutput {
	return respOutput{writeNil: true}
}

func writeInt(i int) respOutput {
	return respOutput{writeInt: &i}
}

func writeBulk(b []byte) respOutput {
	return respOutput{writeBulk: b}
}

func writeArray(elems []string) respOutput {
	return respOutput{writeArray: elems}
}

func writeString(s string) respOutput {
	return respOutput{writeString: s}
}

func writeError(err error) respOutput {
	msg := "ERR " + err.Error()
	return respOutput{err: &msg}
}

func wrongArity(command string) respOutput {
	return writeError(fmt.Errorf("wrong number of arguments for '%s' command", command))
}

type respHandler struct {
	contents cache.Layer[string, []byte]
}

// newRespHandler is the constructor for respHandler.
func newRespHandler(contents cache.Layer[string, []byte]) (*respHandler, error) {
	if contents == nil {
		return nil, errors.New("expected a non-nil cache layer")
	}
	return &respHandler{contents: contents}, nil
}

// handle executes one client command against the cache. It is pure bookkeeping over the cache
// API, which keeps the protocol surface unit-testable without a network listener.
func (rh *respHandler) handle(cmd respCommand) respOutput {
	switch strings.ToUpper(cmd.command) {
	case "PING":
		return writeString("PONG")
	case "QUIT":
		return closeConnection("OK")
	case "SET":
		if len(cmd.args) != 2 {
			return wrongArity("set")
		}
		rh.contents.Set(cmd.args[0], []byte(cmd.args[1]))
		return writeString("OK")
	case "GET":
		if len(cmd.args) != 1 {
			return wrongArity("get")
		}
		value, found := rh.contents.Get(cmd.args[0])
		if !found {
			return writeNil()
		}
		return writeBulk(value)
	case "EXISTS":
		if len(cmd.args) == 0 {
			return wrongArity("exists")
		}
		foundCount := 0
		for _, key := range cmd.args {
			if rh.contents.Has(key) {
				foundCount++
			}
		}
		return writeInt(foundCount)
	case "DEL":
		if len(cmd.args) == 0 {
			return wrongArity("del")
		}
		deletedCount := 0
		for _, key := range cmd.args {
			if rh.contents.Delete(key) {
				deletedCount++
			}
		}
		return writeInt(deletedCount)
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArity("keys")
		}
		return writeArray(scan.MatchingKeys(cmd.args[0], rh.contents.Entries()))
	case "DBSIZE":
		return writeInt(rh.contents.Len())
	case "FLUSHALL":
		rh.contents.Clear()
		return writeString("OK")
	case "STATS":
		stats := rh.contents.Stats()
		return writeBulk(fmt.Appendf(nil,
			"hits:%d\nmisses:%d\nevictions:%d\nhit_rate:%.4f\nsize:%d\nmax_size:%d\nsize_bytes:%d\n",
			stats.Hits, stats.Misses, stats.Evictions, stats.HitRate,
			stats.Size, stats.MaxSize, stats.SizeBytes))
	case "RESETSTATS":
		rh.contents.ResetStats()
		return writeString("OK")
	default:
		return writeError(fmt.Errorf("unknown command '%s'", cmd.command))
	}
}

// write renders a handler output on the client connection.
func write(conn redcon.Conn, output respOutput) {
	switch {
	case output.err != nil:
		conn.WriteError(*output.err)
	case output.writeNil:
		conn.WriteNull()
	case output.writeInt != nil:
		conn.WriteInt(*output.writeInt)
	case output.writeBulk != nil:
		conn.WriteBulk(output.writeBulk)
	case output.writeArray != nil:
		conn.WriteArray(len(output.writeArray))
		for _, elem := range output.writeArray {
			conn.WriteBulkString(elem)
		}
	default:
		conn.WriteString(output.writeString)
	}
}

// RunDebugServer starts the Redis protocol debug surface over the given content cache and blocks
// until the context is cancelled or the listener fails.
func RunDebugServer(ctx context.Context, contents cache.Layer[string, []byte]) error {
	if *address == "" {
		return errors.New("expected a non-empty --debug_address flag")
	}

	respHandler, err := newRespHandler(contents)
	if err != nil {
		return fmt.Errorf("failed to create a new resp handler: %w", err)
	}

	server := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to respCommand.
			command := respCommand{command: string(cmd.Args[0]), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			output := respHandler.handle(command)
			write(conn, output)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			return true // The debug surface listens on localhost by default; accept everyone.
		},
		/*close*/ func(conn redcon.Conn, err error) {})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		if err := server.Close(); err != nil {
			return fmt.Errorf("failed to close the debug server: %w", err)
		}
	case err := <-serverErrSignal:
		return fmt.Errorf("debug server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
