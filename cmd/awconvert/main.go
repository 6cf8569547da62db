// Command awconvert is the CLI entrypoint for the AW static asset pipeline.
//
// It builds the command tree, installs signal handling, and runs the chosen
// target (build by default): clean, image optimization and font conversion.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AtomWave/AW-converter-2-0/internal/cli"
)

// version and commit are injected at build time via -ldflags.
// When built with plain "go build", these retain their defaults.
var (
	version = "2.0.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Cancel the context on SIGINT/SIGTERM so stages stop before starting
	// the next file; files already being written finish or are discarded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx, cli.BuildInfo{Version: version, Commit: commit}, os.Args[1:])
}
