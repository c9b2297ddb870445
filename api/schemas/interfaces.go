// File: api/schemas/interfaces.go
package schemas

import "context"

// ReasoningClient is the contract every reasoning backend satisfies:
// provider clients, the tier router, and the credit-gated wrapper all
// implement it, so callers never know which layer they hold.
type ReasoningClient interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// DataSource fetches external datasets by topic. A nil Dataset with a nil
// error is never returned; failures are explicit.
type DataSource interface {
	FetchDataset(ctx context.Context, topic string) (*Dataset, error)
	Topics() []string
}

// Disperser enqueues a payload for asynchronous data-availability
// dispersal. Enqueue never blocks; overflow drops silently.
type Disperser interface {
	Enqueue(signalID string, blob []byte)
}

// Store is the per-process persistence contract. Every save is idempotent
// by primary key; loads are best effort.
type Store interface {
	SaveAgent(ctx context.Context, agentID string, state []byte) error
	LoadAgent(ctx context.Context, agentID string) ([]byte, error)
	SaveThought(ctx context.Context, t Thought) error
	SaveDecision(ctx context.Context, d Decision) error
	SavePheromone(ctx context.Context, s Signal) error
	SaveCollectiveMemory(ctx context.Context, m CollectiveMemory) error
	LoadCollectiveMemories(ctx context.Context) ([]CollectiveMemory, error)
	Close() error
}
