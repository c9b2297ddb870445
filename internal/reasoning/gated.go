// File: internal/reasoning/gated.go
package reasoning

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/credits"
)

// ErrInsufficientCredits is returned when the credit tier forbids any
// reasoning call. Callers substitute a canned low-confidence result and
// must not count any tokens.
var ErrInsufficientCredits = errors.New("reasoning call skipped: insufficient credits")

// GatedClient wraps a reasoning client with the credit governor:
// dead/critical tiers skip the call entirely, low_compute is routed to
// the fast tier, and every token charged by the backend debits the
// ledger 1:1.
type GatedClient struct {
	inner  schemas.ReasoningClient
	ledger *credits.Ledger
	logger *zap.Logger
}

// NewGatedClient builds the gate around an inner client and a ledger.
func NewGatedClient(inner schemas.ReasoningClient, ledger *credits.Ledger, logger *zap.Logger) *GatedClient {
	return &GatedClient{
		inner:  inner,
		ledger: ledger,
		logger: logger.Named("reasoning.gate"),
	}
}

// Generate applies the tier gate, forwards, and settles the credit cost.
func (g *GatedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	tier := g.ledger.Tier()
	switch tier {
	case schemas.TierDead, schemas.TierCritical:
		g.logger.Debug("Skipping reasoning call", zap.String("credit_tier", string(tier)))
		return schemas.GenerationResult{}, ErrInsufficientCredits
	case schemas.TierLowCompute:
		req.Tier = schemas.ModelTierFast
	}

	result, err := g.inner.Generate(ctx, req)
	if err != nil {
		return schemas.GenerationResult{}, err
	}
	g.ledger.Spend(float64(result.TokensUsed))
	return result, nil
}
