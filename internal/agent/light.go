// File: internal/agent/light.go
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/internal/engine"
)

// lightStep is the no-reasoning mode: occasionally fetch a dataset and
// emit a moderate-confidence observation built from one highlight.
// Synchronized agents participate more eagerly.
func (a *Agent) lightStep(ctx context.Context) {
	a.mu.Lock()
	gate := 0.45
	if a.state.Synchronized {
		gate = 0.75
	}
	fire := a.rng.Float64() < gate
	if !fire {
		a.mu.Unlock()
		return
	}

	topic := a.state.CurrentTarget
	// Most of the time, follow the swarm: pick the domain of a random
	// absorbed signal instead of the current target.
	if len(a.state.Knowledge) > 0 && a.rng.Float64() < 0.55 {
		s := a.state.Knowledge[a.rng.Intn(len(a.state.Knowledge))]
		if t := engine.NormalizeTopic(s.Domain); t != "" {
			topic = t
		}
	}
	if topic == "" {
		topic = engine.CanonicalTopics[a.rng.Intn(len(engine.CanonicalTopics))]
	}
	confidence := 0.45 + a.rng.Float64()*0.30
	connections := lastSignalIDs(a.state.Knowledge, 1)
	a.mu.Unlock()

	ds, err := a.source.FetchDataset(ctx, topic)
	if err != nil {
		a.logger.Debug("Light-step dataset fetch failed", zap.String("topic", topic), zap.Error(err))
		return
	}

	highlight := a.source.RandomHighlight(ds)
	if highlight == "" {
		return
	}

	a.emit(ctx, emission{
		content:     ds.Title + ": " + highlight,
		domain:      topic,
		confidence:  confidence,
		connections: connections,
	})
}
