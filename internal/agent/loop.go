// File: internal/agent/loop.go
package agent

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// Run drives the agent loop until the context is cancelled or the
// configured step limit is reached. One tick completes fully before the
// next begins; no error escapes a tick.
func (a *Agent) Run(ctx context.Context) error {
	a.disperse.Start(ctx)
	a.logger.Info("Agent loop starting",
		zap.String("name", a.state.Name),
		zap.String("specialization", a.state.Specialization),
		zap.Int("peers", len(a.gossip.Peers())))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ranDeep := a.tick(ctx)

		a.mu.Lock()
		steps := a.state.StepCount
		a.mu.Unlock()

		if a.cfg.Agent.MaxSteps > 0 && steps >= a.cfg.Agent.MaxSteps {
			a.logger.Info("Step limit reached, stopping", zap.Int("steps", steps))
			return nil
		}

		// A tick that ran the reasoning backend gets the longer sleep so
		// expensive steps pace themselves.
		interval := time.Duration(a.cfg.Agent.SyncIntervalMs) * time.Millisecond
		if ranDeep {
			interval = time.Duration(a.cfg.Agent.EngineeringStepIntervalMs) * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// tick runs one full pipeline pass: pull, integrate, decay, step,
// transition bookkeeping, persistence. Reports whether a deep step ran.
func (a *Agent) tick(ctx context.Context) bool {
	// 1-2. Pull peer snapshots and integrate anything new by id.
	for _, s := range a.gossip.PullAll(ctx) {
		a.channel.Deposit(s)
	}

	// 3. Decay the local channel (also recomputes density).
	a.channel.Decay()

	// 4. The agent step proper.
	a.mu.Lock()
	a.state.StepCount++
	step := a.state.StepCount
	a.mu.Unlock()

	a.move()
	absorbed := a.absorb()
	if len(absorbed) > 0 {
		a.logger.Debug("Absorbed signals", zap.Int("count", len(absorbed)), zap.Int("step", step))
	}

	ranDeep := a.deepMode(step)
	if ranDeep {
		a.deepStep(ctx)
	} else {
		a.lightStep(ctx)
	}

	a.checkSync()

	// 5. Transition detection, decided entirely from the local view.
	if a.channel.ShouldTransitionLocal() {
		if a.channel.MarkTransition(step) {
			a.onTransition(ctx)
		}
	}

	a.maybeCycleReset(step)
	a.maybeEmitDistress(ctx)

	if a.cfg.Agent.PersistEverySteps > 0 && step%a.cfg.Agent.PersistEverySteps == 0 {
		a.persist(ctx)
	}
	return ranDeep
}

// move updates position and velocity. Before the transition the agent
// wanders (Brownian motion kicked by strong foreign signals); afterwards
// it falls into a mild orbit around the world center.
func (a *Agent) move() {
	transitioned := a.channel.TransitionOccurred()
	signals := a.channel.Snapshot()

	a.mu.Lock()
	defer a.mu.Unlock()

	var accel Vector2
	if !transitioned {
		accel = Vector2{
			X: (a.rng.Float64()*2 - 1) * 0.6,
			Y: (a.rng.Float64()*2 - 1) * 0.6,
		}
		// Strong signals the agent has not yet absorbed tug it off its
		// random walk, harder for bolder agents.
		for _, s := range signals {
			if s.ProducerID == a.state.ID || a.state.Absorbed[s.ID] || s.Strength <= 0.5 {
				continue
			}
			kick := Vector2{
				X: (a.rng.Float64()*2 - 1),
				Y: (a.rng.Float64()*2 - 1),
			}.Normalize().Mul(s.Strength * 0.4 * (0.5 + a.state.Personality.Boldness))
			accel = accel.Add(kick)
		}
	} else {
		toCenter := Vector2{}.Sub(a.state.Position)
		accel = toCenter.Mul(0.02).Add(toCenter.Normalize().Perp().Mul(0.3))
	}

	a.state.Velocity = a.state.Velocity.Add(accel).Mul(0.85).Limit(4.0)
	a.state.Position = a.state.Position.Add(a.state.Velocity).Clamp(a.cfg.Swarm.WorldSize)
}

// absorb takes up foreign signals probabilistically and feeds strength
// back into the channel. Returns the newly absorbed signals.
func (a *Agent) absorb() []schemas.Signal {
	signals := a.channel.Snapshot()

	a.mu.Lock()
	var taken []schemas.Signal
	for _, s := range signals {
		if s.ProducerID == a.state.ID || a.state.Absorbed[s.ID] || s.Strength <= 0.2 {
			continue
		}
		if a.rng.Float64() >= s.Strength*0.6 {
			continue
		}
		a.state.Absorbed[s.ID] = true
		a.state.Knowledge = append(a.state.Knowledge, s)
		a.state.Energy = math.Min(1.0, a.state.Energy+0.05)
		a.noteSyncPeer(s.ProducerID)
		taken = append(taken, s)
	}
	a.mu.Unlock()

	// Positive feedback outside the state lock; lock order is always
	// agent before channel.
	for _, s := range taken {
		a.channel.Boost(s.ID, 0.1)
	}
	return taken
}

func (a *Agent) noteSyncPeer(producerID string) {
	for _, id := range a.state.SyncedWith {
		if id == producerID {
			return
		}
	}
	a.state.SyncedWith = append(a.state.SyncedWith, producerID)
}

// deepMode decides whether this step may call the reasoning backend: the
// backend exists, engineering is on, budget and credits allow it, and the
// warmup Bernoulli gate fires.
func (a *Agent) deepMode(step int) bool {
	if a.reasoner == nil || !a.cfg.Agent.EngineeringEnabled {
		return false
	}

	a.mu.Lock()
	withinBudget := a.state.TokensUsed < a.state.TokenBudget
	a.mu.Unlock()
	if !withinBudget {
		return false
	}

	switch a.ledger.Tier() {
	case schemas.TierCritical, schemas.TierDead:
		return false
	}

	p := math.Min(0.85, float64(step)/40.0)
	return a.rng.Float64() < p
}

// checkSync flips the agent-local synchronization flag once it has
// absorbed enough of the swarm and carries enough energy.
func (a *Agent) checkSync() {
	density := a.channel.Density()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Synchronized {
		return
	}
	if density >= a.channel.CriticalThreshold() && len(a.state.Absorbed) >= 3 && a.state.Energy > 0.5 {
		a.state.Synchronized = true
		a.state.Energy = 1.0
		a.logger.Info("Agent synchronized", zap.Float64("density", density), zap.Int("absorbed", len(a.state.Absorbed)))
	}
}

// maybeCycleReset wipes the channel and the agent's synchronization state
// after the post-transition cooldown, opening the next emergence cycle.
func (a *Agent) maybeCycleReset(step int) {
	if !a.channel.TransitionOccurred() {
		return
	}
	if step-a.channel.TransitionStep() < a.cfg.Pheromone.CooldownSteps {
		return
	}

	a.channel.Reset()

	a.mu.Lock()
	a.state.Synchronized = false
	a.state.SyncedWith = nil
	a.state.Absorbed = make(map[string]bool)
	a.state.Knowledge = nil
	a.state.TopicsStudied = nil
	a.state.Energy = 0.3 + a.rng.Float64()*0.2
	a.mu.Unlock()

	a.logger.Info("Cycle reset complete", zap.Int("step", step))
}

// maybeEmitDistress emits the one-shot distress signal on first entry
// into the critical tier.
func (a *Agent) maybeEmitDistress(ctx context.Context) {
	tier := a.ledger.Tier()
	if tier != schemas.TierCritical && tier != schemas.TierDead {
		return
	}
	if !a.ledger.MarkDistress() {
		return
	}

	a.mu.Lock()
	name := a.state.Name
	a.mu.Unlock()

	a.emit(ctx, emission{
		content:    name + " is running low on compute credits and is reducing reasoning work",
		domain:     "distress",
		confidence: 0.3,
	})
}
