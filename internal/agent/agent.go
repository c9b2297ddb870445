// File: internal/agent/agent.go

// Package agent drives one autonomous swarm member: the per-tick pipeline
// of absorb, think, decide, execute, and emit, plus the collective
// synthesis that fires at a phase transition. One process hosts exactly
// one Agent; agents only ever meet through gossip.
package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/config"
	"github.com/owizdom/swarm-mindv2/internal/credits"
	"github.com/owizdom/swarm-mindv2/internal/da"
	"github.com/owizdom/swarm-mindv2/internal/datasource"
	"github.com/owizdom/swarm-mindv2/internal/engine"
	"github.com/owizdom/swarm-mindv2/internal/gossip"
	"github.com/owizdom/swarm-mindv2/internal/identity"
	"github.com/owizdom/swarm-mindv2/internal/pheromone"
	"github.com/owizdom/swarm-mindv2/internal/reasoning"
	"github.com/owizdom/swarm-mindv2/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Agent owns one State plus every collaborator the loop needs. All state
// mutation happens on the loop goroutine; the mutex only exists so HTTP
// read handlers can take consistent snapshots.
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	identity *identity.Identity
	channel  *pheromone.Channel
	gossip   *gossip.Client
	engine   *engine.Engine
	ledger   *credits.Ledger
	reasoner schemas.ReasoningClient
	source   *datasource.Client
	disperse *da.Disperser
	store    schemas.Store

	rng *rand.Rand

	mu         sync.Mutex
	state      State
	collective []schemas.CollectiveMemory
	lastSignal *schemas.Signal
}

// New wires an agent from configuration. The reasoning backend is
// optional; without one the agent runs light steps only.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	agentID := fmt.Sprintf("agent-%d-%s", cfg.Agent.Index, uuid.New().String()[:8])
	logger = logger.With(zap.String("agent_id", agentID))

	id, err := identity.New(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent identity: %w", err)
	}

	// One seeded source per agent keeps behavior reproducible per
	// process without coordinating randomness across the swarm.
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(cfg.Agent.Index)<<32))

	role := cfg.Agent.Role
	if role == "" {
		role = RoleForIndex(cfg.Agent.Index)
	}

	channel := pheromone.NewChannel(pheromone.Options{
		DecayRate:          cfg.Pheromone.DecayRate,
		MinStrength:        cfg.Pheromone.MinStrength,
		CriticalThreshold:  cfg.Pheromone.CriticalDensity,
		AgentCount:         cfg.Swarm.AgentCount,
		SaturationPerAgent: cfg.Pheromone.SaturationPerAgent,
	}, logger)

	ledger := credits.NewLedger(cfg.Credits.Initial, credits.Thresholds{
		Normal: cfg.Credits.ThresholdNormal,
		Low:    cfg.Credits.ThresholdLow,
	}, logger)

	backend, err := reasoning.NewClient(ctx, cfg.Reasoning, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning backend: %w", err)
	}
	var reasoner schemas.ReasoningClient
	if backend != nil {
		reasoner = reasoning.NewGatedClient(backend, ledger, logger)
	}

	st, err := store.Open(cfg.Agent.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &Agent{
		cfg:      cfg,
		logger:   logger.Named("agent"),
		identity: id,
		channel:  channel,
		gossip:   gossip.NewClient(cfg.Agent.PeerURLs, cfg.Agent.PeerTimeout, logger),
		engine:   engine.New(rng, logger),
		ledger:   ledger,
		reasoner: reasoner,
		source:   datasource.New(cfg.DataSource, rng, logger),
		store:    st,
		rng:      rng,
		state: State{
			ID:             agentID,
			Name:           cfg.Agent.Name,
			Personality:    SeedPersonality(role, rng),
			Specialization: role,
			Position: Vector2{
				X: (rng.Float64()*2 - 1) * cfg.Swarm.WorldSize * 0.5,
				Y: (rng.Float64()*2 - 1) * cfg.Swarm.WorldSize * 0.5,
			},
			Energy:      0.5 + rng.Float64()*0.3,
			Absorbed:    make(map[string]bool),
			TokenBudget: cfg.Agent.TokenBudget,
		},
	}

	// Commitment write-back is a knob: when off, the commitment only
	// reaches the local store and peers may permanently lack it.
	a.disperse = da.New(cfg.DA, a.onCommitment, logger)

	a.restore(ctx)
	return a, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.state.ID }

// Name returns the configured display name.
func (a *Agent) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Name
}

// Identity exposes the agent's identity for the HTTP surface.
func (a *Agent) Identity() *identity.Identity { return a.identity }

// Channel exposes the signal channel for the HTTP surface.
func (a *Agent) Channel() *pheromone.Channel { return a.channel }

// Credits returns the current ledger snapshot.
func (a *Agent) Credits() credits.Snapshot { return a.ledger.Snapshot() }

// Deposit integrates one inbound signal (gossip POST handler path).
func (a *Agent) Deposit(s schemas.Signal) bool {
	return a.channel.Deposit(s)
}

// Snapshot returns a copy of the agent state for read endpoints. Slices
// are shallow-copied; value objects inside are never mutated after
// append, so sharing their backing data is safe.
func (a *Agent) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := a.state
	snap.Absorbed = make(map[string]bool, len(a.state.Absorbed))
	for k, v := range a.state.Absorbed {
		snap.Absorbed[k] = v
	}
	snap.SyncedWith = append([]string(nil), a.state.SyncedWith...)
	snap.Knowledge = append([]schemas.Signal(nil), a.state.Knowledge...)
	snap.Thoughts = append([]schemas.Thought(nil), a.state.Thoughts...)
	snap.Decisions = append([]schemas.Decision(nil), a.state.Decisions...)
	snap.TopicsStudied = append([]string(nil), a.state.TopicsStudied...)
	if a.state.CurrentDecision != nil {
		d := *a.state.CurrentDecision
		snap.CurrentDecision = &d
	}
	return snap
}

// RecentThoughts returns up to n thoughts, newest first.
func (a *Agent) RecentThoughts(n int) []schemas.Thought {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := len(a.state.Thoughts)
	if n > total {
		n = total
	}
	out := make([]schemas.Thought, 0, n)
	for i := total - 1; i >= total-n; i-- {
		out = append(out, a.state.Thoughts[i])
	}
	return out
}

// CollectiveMemories returns the memories synthesized so far.
func (a *Agent) CollectiveMemories() []schemas.CollectiveMemory {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]schemas.CollectiveMemory(nil), a.collective...)
}

// LatestSignal returns the most recently emitted signal, or nil.
func (a *Agent) LatestSignal() *schemas.Signal {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastSignal == nil {
		return nil
	}
	s := *a.lastSignal
	return &s
}

// StepCount returns the number of completed ticks.
func (a *Agent) StepCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.StepCount
}

// onCommitment is the DA dispersal callback.
func (a *Agent) onCommitment(signalID, commitment string) {
	if a.cfg.DA.UpdateLocal {
		a.channel.SetCommitment(signalID, commitment)
	}
	a.mu.Lock()
	if a.lastSignal != nil && a.lastSignal.ID == signalID {
		a.lastSignal.DACommitment = commitment
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range a.channel.Snapshot() {
		if s.ID == signalID {
			s.DACommitment = commitment
			if err := a.store.SavePheromone(ctx, s); err != nil {
				a.logger.Debug("Failed to persist commitment", zap.Error(err))
			}
			break
		}
	}
}

// restore loads the persisted slice of state, best effort.
func (a *Agent) restore(ctx context.Context) {
	blob, err := a.store.LoadAgent(ctx, a.persistKey())
	if err != nil || blob == nil {
		return
	}
	var saved persistedState
	if err := json.Unmarshal(blob, &saved); err != nil {
		a.logger.Warn("Failed to decode persisted state, starting fresh", zap.Error(err))
		return
	}
	a.state.Energy = saved.Energy
	a.state.TokensUsed = saved.TokensUsed
	a.state.StepCount = saved.StepCount
	a.state.Discoveries = saved.Discoveries
	a.state.ContributionsToCollective = saved.ContributionsToCollective
	a.state.TopicsStudied = saved.TopicsStudied
	a.ledger.SetBalance(saved.CreditBalance)
	a.logger.Info("Restored persisted state", zap.Int("step", saved.StepCount))
}

// persist saves the durable slice of state, best effort.
func (a *Agent) persist(ctx context.Context) {
	a.mu.Lock()
	saved := persistedState{
		Energy:                    a.state.Energy,
		TokensUsed:                a.state.TokensUsed,
		StepCount:                 a.state.StepCount,
		Discoveries:               a.state.Discoveries,
		ContributionsToCollective: a.state.ContributionsToCollective,
		TopicsStudied:             append([]string(nil), a.state.TopicsStudied...),
		CreditBalance:             a.ledger.Snapshot().Balance,
	}
	a.mu.Unlock()

	blob, err := json.Marshal(saved)
	if err != nil {
		a.logger.Warn("Failed to encode state for persistence", zap.Error(err))
		return
	}
	if err := a.store.SaveAgent(ctx, a.persistKey(), blob); err != nil {
		a.logger.Warn("Failed to persist state", zap.Error(err))
	}
}

// persistKey is stable across restarts even though the agent id carries a
// random suffix.
func (a *Agent) persistKey() string {
	return fmt.Sprintf("agent-%d", a.cfg.Agent.Index)
}

// Close flushes state and releases resources.
func (a *Agent) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.persist(ctx)
	if a.disperse != nil {
		a.disperse.Stop()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
}
