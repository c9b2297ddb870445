// File: internal/agent/emit.go
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// emission describes a signal about to be constructed. Deep-mode signals
// derive strength from decision priority, light-mode from confidence.
type emission struct {
	content     string
	domain      string
	confidence  float64
	priority    float64
	deep        bool
	connections []string
}

// emit constructs a fresh signed signal, deposits it locally, fans it out
// to every peer, enqueues DA dispersal, and credits the ledger.
func (a *Agent) emit(ctx context.Context, e emission) {
	if e.content == "" {
		return
	}

	a.mu.Lock()
	producerID := a.state.ID
	a.mu.Unlock()

	strength := 0.5 + 0.3*e.confidence
	if e.deep {
		strength = 0.65 + 0.3*e.priority
	}
	if strength > 1 {
		strength = 1
	}

	now := time.Now().UnixMilli()
	signal := schemas.Signal{
		ID:             uuid.New().String(),
		ProducerID:     producerID,
		Content:        e.content,
		Domain:         e.domain,
		Confidence:     e.confidence,
		Strength:       strength,
		Connections:    e.connections,
		Timestamp:      now,
		Attestation:    a.identity.BuildAttestation(e.content, producerID, now),
		ProducerPubkey: a.identity.PublicKeyHex(),
	}

	a.channel.Deposit(signal)

	a.mu.Lock()
	s := signal
	a.lastSignal = &s
	a.mu.Unlock()

	a.gossip.PushAll(ctx, signal)
	a.disperse.Enqueue(signal.ID, []byte(signal.Content))
	a.ledger.EarnEmission(e.confidence)

	if err := a.store.SavePheromone(ctx, signal); err != nil {
		a.logger.Debug("Failed to persist signal", zap.Error(err))
	}

	a.logger.Debug("Signal emitted",
		zap.String("id", signal.ID),
		zap.String("domain", signal.Domain),
		zap.Float64("strength", signal.Strength))
}
