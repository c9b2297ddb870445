// File: internal/engine/decision.go

// Package engine proposes and ranks candidate actions for an agent. It is
// deliberately free of I/O: callers feed it a snapshot of agent and
// channel state and get back scored candidates, and selection is a pure
// softmax over priority.
package engine

import (
	"math"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

// CanonicalTopics are the five dataset topics the data source serves.
// Free-text topic suggestions from thoughts are normalized onto these.
var CanonicalTopics = []string{
	"exoplanets",
	"mars_weather",
	"near_earth_objects",
	"solar_flares",
	"earth_imagery",
}

// Static scoring tables. Tunable, but the relative order is load-bearing:
// analysis outranks sharing outranks correlation outranks exploration.
var (
	priorityBase = map[schemas.ActionType]float64{
		schemas.ActionAnalyzeDataset:    0.95,
		schemas.ActionShareFinding:      0.85,
		schemas.ActionCorrelateFindings: 0.75,
		schemas.ActionExploreTopic:      0.60,
	}
	tokenEstimate = map[schemas.ActionType]int{
		schemas.ActionAnalyzeDataset:    2500,
		schemas.ActionShareFinding:      1200,
		schemas.ActionCorrelateFindings: 3500,
		schemas.ActionExploreTopic:      2000,
	}
	timeEstimateMs = map[schemas.ActionType]int{
		schemas.ActionAnalyzeDataset:    12000,
		schemas.ActionShareFinding:      6000,
		schemas.ActionCorrelateFindings: 18000,
		schemas.ActionExploreTopic:      10000,
	}
)

// TokenEstimate exposes the per-action token cost table.
func TokenEstimate(t schemas.ActionType) int { return tokenEstimate[t] }

// TimeEstimateMs exposes the per-action duration estimate table.
func TimeEstimateMs(t schemas.ActionType) int { return timeEstimateMs[t] }

// Inputs is the snapshot the engine scores against. It carries no
// references back into live agent state.
type Inputs struct {
	Personality        schemas.Personality
	AnalyzedTopics     map[string]bool
	CachedDatasets     []*schemas.Dataset
	RecentThoughts     []schemas.Thought // newest last; only the last 5 are consulted
	ThoughtCount       int
	ChannelSignals     int
	TokensRemaining    int
	TransitionOccurred bool
	RecentActionTypes  []schemas.ActionType // newest last; only the last 8 are consulted
}

// Engine generates and selects candidates.
type Engine struct {
	rng *rand.Rand
	log *zap.Logger
}

// New creates an engine around the given random source. Each agent owns
// one seeded source so behavior is reproducible per agent.
func New(rng *rand.Rand, logger *zap.Logger) *Engine {
	return &Engine{rng: rng, log: logger.Named("engine")}
}

// NormalizeTopic maps a free-text topic onto a canonical one, or returns
// "" when nothing matches.
func NormalizeTopic(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return ""
	}
	for _, canon := range CanonicalTopics {
		if t == canon {
			return canon
		}
	}
	switch {
	case strings.Contains(t, "exoplanet") || strings.Contains(t, "kepler") || strings.Contains(t, "planet"):
		return "exoplanets"
	case strings.Contains(t, "mars") || strings.Contains(t, "weather") || strings.Contains(t, "insight"):
		return "mars_weather"
	case strings.Contains(t, "asteroid") || strings.Contains(t, "neo") || strings.Contains(t, "near earth") || strings.Contains(t, "near-earth"):
		return "near_earth_objects"
	case strings.Contains(t, "solar") || strings.Contains(t, "flare") || strings.Contains(t, "sun"):
		return "solar_flares"
	case strings.Contains(t, "earth") || strings.Contains(t, "imagery") || strings.Contains(t, "satellite"):
		return "earth_imagery"
	}
	return ""
}

// GenerateCandidates builds the scored candidate list for this step.
// When no action was proposed, a single explore fallback is added; then
// candidates whose estimated token cost exceeds the remaining budget are
// dropped, so the result is empty when the budget covers none of them.
func (e *Engine) GenerateCandidates(in Inputs) []schemas.Candidate {
	var actions []schemas.Action

	// 1. Topics suggested by the last five thoughts, normalized.
	suggested := make(map[string]bool)
	thoughts := in.RecentThoughts
	if len(thoughts) > 5 {
		thoughts = thoughts[len(thoughts)-5:]
	}
	for _, th := range thoughts {
		for _, raw := range th.SuggestedActions {
			if topic := NormalizeTopic(raw); topic != "" {
				suggested[topic] = true
			}
		}
	}

	// 2. Unanalyzed canonical topics become analyze candidates; when the
	// recent thoughts suggested any topics, only those suggested are kept.
	for _, topic := range CanonicalTopics {
		if in.AnalyzedTopics[topic] {
			continue
		}
		if len(suggested) > 0 && !suggested[topic] {
			continue
		}
		actions = append(actions, schemas.Action{Type: schemas.ActionAnalyzeDataset, Topic: topic})
	}

	// 3. Occasional re-analysis of a cached dataset.
	if len(in.CachedDatasets) > 0 && e.rng.Float64() < 0.3 {
		ds := in.CachedDatasets[e.rng.Intn(len(in.CachedDatasets))]
		actions = append(actions, schemas.Action{Type: schemas.ActionAnalyzeDataset, Topic: ds.Topic})
	}

	// 4. Share the highest-confidence thought when social enough and the
	// channel already carries some conversation.
	if in.ThoughtCount > 0 && in.Personality.Sociability > 0.4 && in.ChannelSignals > 2 {
		if best := bestThought(in.RecentThoughts); best != nil {
			actions = append(actions, schemas.Action{
				Type:    schemas.ActionShareFinding,
				Finding: best.Conclusion,
				Topic:   firstNormalized(best.SuggestedActions),
			})
		}
	}

	// 5. Correlate two cached datasets for the curious.
	if len(in.CachedDatasets) >= 2 && in.Personality.Curiosity > 0.5 {
		i := e.rng.Intn(len(in.CachedDatasets))
		j := e.rng.Intn(len(in.CachedDatasets) - 1)
		if j >= i {
			j++
		}
		actions = append(actions, schemas.Action{
			Type:   schemas.ActionCorrelateFindings,
			Topics: []string{in.CachedDatasets[i].Topic, in.CachedDatasets[j].Topic},
		})
	}

	// 6. Explore fallback so the agent never idles.
	if len(actions) == 0 {
		topic := CanonicalTopics[e.rng.Intn(len(CanonicalTopics))]
		actions = append(actions, schemas.Action{Type: schemas.ActionExploreTopic, Topic: topic})
	}

	// 7. Score, then drop anything the budget cannot cover.
	candidates := make([]schemas.Candidate, 0, len(actions))
	for _, a := range actions {
		cost := tokenEstimate[a.Type]
		if cost > in.TokensRemaining {
			e.log.Debug("Candidate dropped by budget guard",
				zap.String("action", string(a.Type)),
				zap.Int("cost", cost),
				zap.Int("remaining", in.TokensRemaining))
			continue
		}
		candidates = append(candidates, schemas.Candidate{
			Action:    a,
			Priority:  e.score(a, cost, in),
			EstTokens: cost,
			EstMillis: timeEstimateMs[a.Type],
		})
	}
	return candidates
}

// score implements the priority formula: weighted base, budget
// efficiency, novelty, personality fit, and a swarm bonus for
// correlation work after the phase transition.
func (e *Engine) score(a schemas.Action, cost int, in Inputs) float64 {
	base := priorityBase[a.Type] * 0.25

	efficiency := 0.0
	if in.TokensRemaining > 0 {
		efficiency = math.Max(0, 1-float64(cost)/float64(in.TokensRemaining)) * 0.25
	}

	novelty := 0.15
	recent := in.RecentActionTypes
	if len(recent) > 8 {
		recent = recent[len(recent)-8:]
	}
	for _, t := range recent {
		if t == a.Type {
			novelty = 0
			break
		}
	}

	var fit float64
	switch a.Type {
	case schemas.ActionAnalyzeDataset, schemas.ActionExploreTopic:
		fit = in.Personality.Curiosity * 0.15
	case schemas.ActionShareFinding:
		fit = in.Personality.Sociability * 0.15
	case schemas.ActionCorrelateFindings:
		fit = (in.Personality.Curiosity + in.Personality.Diligence) / 2 * 0.15
	}

	swarmBonus := 0.0
	if in.TransitionOccurred && a.Type == schemas.ActionCorrelateFindings {
		swarmBonus = 0.10
	}

	return base + efficiency + novelty + fit + swarmBonus
}

// Select picks a candidate via softmax over priority with the given
// temperature. T=0 is deterministic argmax; ties break to the first
// candidate. Returns nil for an empty list.
func (e *Engine) Select(candidates []schemas.Candidate, temperature float64) *schemas.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Priority > candidates[best].Priority {
			best = i
		}
	}
	if temperature <= 0 {
		c := candidates[best]
		return &c
	}

	// Shift by the max priority so the exponentials stay bounded.
	maxP := candidates[best].Priority
	weights := make([]float64, len(candidates))
	var total float64
	for i, c := range candidates {
		weights[i] = math.Exp((c.Priority - maxP) / temperature)
		total += weights[i]
	}

	r := e.rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			c := candidates[i]
			return &c
		}
	}
	c := candidates[len(candidates)-1]
	return &c
}

// ShouldSwitch decides whether the agent abandons its current line of
// work: always when the budget is gone or nothing is executing, otherwise
// stochastically with a higher probability after failure.
func (e *Engine) ShouldSwitch(tokensUsed, tokenBudget int, hasDecision, lastSucceeded bool) bool {
	if tokensUsed >= tokenBudget || !hasDecision {
		return true
	}
	p := 0.25
	if !lastSucceeded {
		p = 0.7
	}
	return e.rng.Float64() < p
}

func bestThought(thoughts []schemas.Thought) *schemas.Thought {
	var best *schemas.Thought
	for i := range thoughts {
		if best == nil || thoughts[i].Confidence > best.Confidence {
			best = &thoughts[i]
		}
	}
	return best
}

func firstNormalized(raw []string) string {
	for _, r := range raw {
		if t := NormalizeTopic(r); t != "" {
			return t
		}
	}
	return ""
}
