// File: cmd/swarmmind/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/owizdom/swarm-mindv2/cmd"
	"github.com/owizdom/swarm-mindv2/internal/observability"
)

// main is the process entry point. SIGINT/SIGTERM cancel the command
// context; the agent loop and HTTP server drain on that cancellation.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		observability.Sync()
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
