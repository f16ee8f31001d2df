// Spins up the bcache debug shell: a flag-configured content cache exposed over the Redis
// protocol, so cache behavior can be exercised interactively with redis-cli.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/inkfold/bcache/pkg/artifact"
	"github.com/inkfold/bcache/pkg/port"
	"github.com/inkfold/bcache/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	flag.Parse()
	utils.InitLogging()

	if *printVersion {
		slog.Info("bcache build info.", "version", utils.Version, "commit", utils.Commit, "build", utils.BuildTime)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, os.Kill)

	go func() { // Listen for OS interrupts in the background.
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	contents := artifact.NewContentCache()
	if err := port.RunDebugServer(ctx, contents); err != nil {
		slog.Error("bcache debug server stopped.", "err", err)
		os.Exit(1)
	}
}
