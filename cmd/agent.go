// File: cmd/agent.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/owizdom/swarm-mindv2/internal/agent"
	"github.com/owizdom/swarm-mindv2/internal/observability"
	"github.com/owizdom/swarm-mindv2/internal/server"
)

// newAgentCommand runs one gossip agent process: the loop plus its HTTP
// surface, both bound to the command context for shutdown.
func newAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run one autonomous swarm agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			a, err := agent.New(ctx, loadedConfig, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(loadedConfig, a, logger)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(ctx) })
			g.Go(func() error { return a.Run(ctx) })

			err = g.Wait()
			logger.Info("Agent process stopping", zap.Error(err))
			return err
		},
	}
}
