// File: cmd/aggregator.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/owizdom/swarm-mindv2/internal/aggregator"
	"github.com/owizdom/swarm-mindv2/internal/observability"
)

// newAggregatorCommand runs the read-only presentation service over a set
// of agent URLs.
func newAggregatorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregator",
		Short: "Run the read-only swarm aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			defer observability.Sync()

			srv := aggregator.New(loadedConfig.Aggregator, logger)
			return srv.Serve(cmd.Context())
		},
	}
}
