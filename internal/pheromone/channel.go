// File: internal/pheromone/channel.go

// Package pheromone maintains the per-process view of gossiped signals and
// derives the density scalar that drives the swarm's phase transition.
package pheromone

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// activeThreshold is the minimum strength for a signal to count toward
// density.
const activeThreshold = 0.1

// strongThreshold is the strength bound used by the gossip-variant
// transition predicate.
const strongThreshold = 0.4

// Options tunes the channel dynamics. Zero values fall back to the
// documented defaults.
type Options struct {
	DecayRate          float64 // per-tick multiplicative decay (default 0.12)
	MinStrength        float64 // prune bound (default 0.05)
	CriticalThreshold  float64 // density latch threshold (default 0.55)
	AgentCount         int     // population size for the saturation term
	SaturationPerAgent int     // per-agent signal count at saturation (default 8)
}

func (o *Options) fill() {
	if o.DecayRate == 0 {
		o.DecayRate = 0.12
	}
	if o.MinStrength == 0 {
		o.MinStrength = 0.05
	}
	if o.CriticalThreshold == 0 {
		o.CriticalThreshold = 0.55
	}
	if o.AgentCount <= 0 {
		o.AgentCount = 1
	}
	if o.SaturationPerAgent <= 0 {
		o.SaturationPerAgent = 8
	}
}

// Channel is the process-local signal view. The agent loop and the inbound
// POST handler both deposit into it, so every operation is serialized by
// the internal mutex. Order of the signal slice is insertion order; it has
// no semantic meaning and is preserved only for traceability.
type Channel struct {
	mu   sync.Mutex
	opts Options
	log  *zap.Logger

	signals []schemas.Signal
	ids     map[string]int // id -> index in signals

	density            float64
	transitionOccurred bool
	transitionStep     int
}

// NewChannel creates an empty channel.
func NewChannel(opts Options, logger *zap.Logger) *Channel {
	opts.fill()
	return &Channel{
		opts: opts,
		log:  logger.Named("pheromone"),
		ids:  make(map[string]int),
	}
}

// Deposit appends a signal if its id is not already present. Returns true
// when the signal was new. Signals at or below the prune bound are
// rejected outright so the channel invariant (strength > minStrength)
// holds at every observation.
func (c *Channel) Deposit(s schemas.Signal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.ids[s.ID]; dup {
		return false
	}
	if s.Strength <= c.opts.MinStrength {
		return false
	}
	c.ids[s.ID] = len(c.signals)
	c.signals = append(c.signals, s)
	return true
}

// Decay multiplies every signal's strength by (1 - decayRate) exactly
// once, then prunes everything at or below the minimum strength.
func (c *Channel) Decay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.signals[:0]
	factor := 1 - c.opts.DecayRate
	for _, s := range c.signals {
		s.Strength *= factor
		if s.Strength > c.opts.MinStrength {
			kept = append(kept, s)
		} else {
			delete(c.ids, s.ID)
		}
	}
	// Drop pruned tails so they are not resurrected by a later append.
	for i := len(kept); i < len(c.signals); i++ {
		c.signals[i] = schemas.Signal{}
	}
	c.signals = kept
	c.reindexLocked()
	c.density = c.computeDensityLocked()
}

// Boost raises a signal's strength by delta, clamped to 1. Used by the
// absorption positive-feedback rule. Returns false if the id is unknown.
func (c *Channel) Boost(id string, delta float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.ids[id]
	if !ok {
		return false
	}
	c.signals[idx].Strength = math.Min(1.0, c.signals[idx].Strength+delta)
	return true
}

// SetCommitment writes a DA commitment back onto the local copy of a
// signal. Only called when the da.update_local knob is on.
func (c *Channel) SetCommitment(id, commitment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.ids[id]
	if !ok {
		return false
	}
	c.signals[idx].DACommitment = commitment
	return true
}

// Density returns the most recently computed density.
func (c *Channel) Density() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.density
}

// CriticalThreshold exposes the configured latch threshold.
func (c *Channel) CriticalThreshold() float64 {
	return c.opts.CriticalThreshold
}

// computeDensityLocked derives density from the active signal population:
//
//	count term    |active| / (agentCount x saturation)
//	quality term  mean strength of active signals
//	network term  1 + 2 x connectivity
//
// The connectivity multiplier gives a super-linear response to
// cross-referenced signals, which produces the sharp sigmoidal rise the
// transition depends on.
func (c *Channel) computeDensityLocked() float64 {
	var (
		active    int
		strength  float64
		totalConn int
	)
	for _, s := range c.signals {
		if s.Strength > activeThreshold {
			active++
			strength += s.Strength
			totalConn += len(s.Connections)
		}
	}
	if active == 0 {
		return 0
	}

	avgStrength := strength / float64(active)
	connectivity := float64(totalConn) / math.Max(1, float64(active*c.opts.AgentCount))
	raw := (float64(active) / float64(c.opts.AgentCount*c.opts.SaturationPerAgent)) *
		avgStrength * (1 + 2*connectivity)
	return math.Min(1.0, raw)
}

// ShouldTransition is the orchestrated-variant predicate: the latch is
// unarmed, density has crossed the threshold, and at least half the
// population reports synchronized.
func (c *Channel) ShouldTransition(syncedCount, agentCount int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transitionOccurred {
		return false
	}
	quorum := (agentCount + 1) / 2
	return c.density >= c.opts.CriticalThreshold && syncedCount >= quorum
}

// ShouldTransitionLocal is the gossip-variant predicate, decided entirely
// from the local view: density over threshold and at least three signals
// still strong.
func (c *Channel) ShouldTransitionLocal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transitionOccurred {
		return false
	}
	if c.density < c.opts.CriticalThreshold {
		return false
	}
	strong := 0
	for _, s := range c.signals {
		if s.Strength > strongThreshold {
			strong++
		}
	}
	return strong >= 3
}

// MarkTransition arms the latch at the given step. Returns false if the
// latch was already set this cycle.
func (c *Channel) MarkTransition(step int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transitionOccurred {
		return false
	}
	c.transitionOccurred = true
	c.transitionStep = step
	c.log.Info("Phase transition latched",
		zap.Int("step", step),
		zap.Float64("density", c.density),
		zap.Int("signals", len(c.signals)))
	return true
}

// TransitionOccurred reports the latch state.
func (c *Channel) TransitionOccurred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionOccurred
}

// TransitionStep returns the step index at which the latch was set. Valid
// only while TransitionOccurred is true.
func (c *Channel) TransitionStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionStep
}

// Reset clears signals, density, and the latch. The cycle-reset policy
// calls this after the post-transition cooldown.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signals = nil
	c.ids = make(map[string]int)
	c.density = 0
	c.transitionOccurred = false
	c.transitionStep = 0
	c.log.Info("Channel reset")
}

// Snapshot returns a copy of the unpruned signals for read endpoints and
// the gossip push path. Connection slices are copied so readers cannot
// alias channel state.
func (c *Channel) Snapshot() []schemas.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]schemas.Signal, len(c.signals))
	copy(out, c.signals)
	for i := range out {
		if out[i].Connections != nil {
			conns := make([]string, len(out[i].Connections))
			copy(conns, out[i].Connections)
			out[i].Connections = conns
		}
	}
	return out
}

// Len returns the number of unpruned signals.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.signals)
}

// Has reports whether a signal id is present.
func (c *Channel) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

func (c *Channel) reindexLocked() {
	for i, s := range c.signals {
		c.ids[s.ID] = i
	}
}
