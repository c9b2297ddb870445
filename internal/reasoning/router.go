// File: internal/reasoning/router.go
package reasoning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// Router implements schemas.ReasoningClient and routes each request to
// the client configured for its model tier.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.ReasoningClient
}

// NewRouter creates a router with the specified clients for each tier.
func NewRouter(logger *zap.Logger, fastClient, powerfulClient schemas.ReasoningClient) (*Router, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}
	return &Router{
		logger: logger.Named("reasoning.router"),
		clients: map[schemas.ModelTier]schemas.ReasoningClient{
			schemas.ModelTierFast:     fastClient,
			schemas.ModelTierPowerful: powerfulClient,
		},
	}, nil
}

// Generate selects the appropriate client based on the request's tier.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.ModelTierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return schemas.GenerationResult{}, fmt.Errorf("no reasoning client configured for tier: %s", tier)
	}

	r.logger.Debug("Routing reasoning request", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}
