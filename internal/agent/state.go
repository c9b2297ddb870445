// File: internal/agent/state.go
package agent

import (
	"math/rand"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// roleSeeds are the personality archetypes an agent can be constructed
// with. Each scalar is jittered by +/-0.04 at construction so no two
// agents of the same role behave identically.
var roleSeeds = map[string]schemas.Personality{
	"explorer":  {Curiosity: 0.90, Diligence: 0.45, Boldness: 0.75, Sociability: 0.50},
	"analyst":   {Curiosity: 0.60, Diligence: 0.90, Boldness: 0.35, Sociability: 0.45},
	"connector": {Curiosity: 0.55, Diligence: 0.50, Boldness: 0.45, Sociability: 0.90},
	"pioneer":   {Curiosity: 0.75, Diligence: 0.40, Boldness: 0.90, Sociability: 0.55},
	"scholar":   {Curiosity: 0.70, Diligence: 0.80, Boldness: 0.30, Sociability: 0.60},
}

// roleOrder gives index-based role assignment a stable rotation.
var roleOrder = []string{"explorer", "analyst", "connector", "pioneer", "scholar"}

// RoleForIndex returns the archetype for an agent index when no role was
// configured.
func RoleForIndex(index int) string {
	return roleOrder[((index%len(roleOrder))+len(roleOrder))%len(roleOrder)]
}

// SeedPersonality builds a jittered personality for a role. An unknown
// role falls back to the explorer archetype.
func SeedPersonality(role string, rng *rand.Rand) schemas.Personality {
	seed, ok := roleSeeds[role]
	if !ok {
		seed = roleSeeds["explorer"]
	}
	jitter := func(v float64) float64 {
		v += (rng.Float64()*2 - 1) * 0.04
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return schemas.Personality{
		Curiosity:   jitter(seed.Curiosity),
		Diligence:   jitter(seed.Diligence),
		Boldness:    jitter(seed.Boldness),
		Sociability: jitter(seed.Sociability),
	}
}

// State is the mutable heart of an agent. It is owned exclusively by the
// agent's loop; the HTTP read surface only ever sees copies taken under
// the agent mutex.
type State struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Personality    schemas.Personality `json:"personality"`
	Specialization string              `json:"specialization"`

	Position Vector2 `json:"position"`
	Velocity Vector2 `json:"velocity"`
	Energy   float64 `json:"energy"`

	Synchronized bool            `json:"synchronized"`
	SyncedWith   []string        `json:"syncedWith"`
	Absorbed     map[string]bool `json:"absorbed"`

	Knowledge []schemas.Signal  `json:"knowledge"`
	Thoughts  []schemas.Thought `json:"thoughts"`
	Decisions []schemas.Decision `json:"decisions"`

	CurrentDecision *schemas.Decision `json:"currentDecision,omitempty"`
	CurrentTarget   string            `json:"currentTarget,omitempty"`

	TopicsStudied []string `json:"topicsStudied"`

	TokensUsed  int `json:"tokensUsed"`
	TokenBudget int `json:"tokenBudget"`

	StepCount                 int `json:"stepCount"`
	Discoveries               int `json:"discoveries"`
	ContributionsToCollective int `json:"contributionsToCollective"`
}

// persistedState is the subset of State worth restoring across restarts.
// Channel contents are rebuilt from gossip, so they are not included.
type persistedState struct {
	Energy                    float64  `json:"energy"`
	TokensUsed                int      `json:"tokensUsed"`
	StepCount                 int      `json:"stepCount"`
	Discoveries               int      `json:"discoveries"`
	ContributionsToCollective int      `json:"contributionsToCollective"`
	TopicsStudied             []string `json:"topicsStudied"`
	CreditBalance             float64  `json:"creditBalance"`
}

// hasStudied reports whether a topic was already analyzed this cycle.
func (s *State) hasStudied(topic string) bool {
	for _, t := range s.TopicsStudied {
		if t == topic {
			return true
		}
	}
	return false
}

// recentActionTypes lists the action types of the most recent decisions,
// oldest first.
func (s *State) recentActionTypes(n int) []schemas.ActionType {
	start := len(s.Decisions) - n
	if start < 0 {
		start = 0
	}
	out := make([]schemas.ActionType, 0, len(s.Decisions)-start)
	for _, d := range s.Decisions[start:] {
		out = append(out, d.Action.Type)
	}
	return out
}
