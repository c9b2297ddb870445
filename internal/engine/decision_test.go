// File: internal/engine/decision_test.go
package engine

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

func newTestEngine(seed int64) *Engine {
	return New(rand.New(rand.NewSource(seed)), zap.NewNop())
}

func baseInputs() Inputs {
	return Inputs{
		Personality: schemas.Personality{
			Curiosity:   0.8,
			Diligence:   0.7,
			Boldness:    0.5,
			Sociability: 0.6,
		},
		AnalyzedTopics:  map[string]bool{},
		TokensRemaining: 50000,
	}
}

// -- Topic normalization --

func TestNormalizeTopic(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"exoplanets", "exoplanets"},
		{"Analyze the Kepler exoplanet catalog", "exoplanets"},
		{"mars weather patterns", "mars_weather"},
		{"near-earth asteroid flybys", "near_earth_objects"},
		{"solar flare activity", "solar_flares"},
		{"EPIC earth imagery", "earth_imagery"},
		{"completely unrelated", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTopic(tt.raw), "raw=%q", tt.raw)
	}
}

// -- Candidate generation --

func TestGenerateCandidates_ProposesUnanalyzedTopics(t *testing.T) {
	e := newTestEngine(1)
	in := baseInputs()
	in.AnalyzedTopics["exoplanets"] = true

	candidates := e.GenerateCandidates(in)
	require.NotEmpty(t, candidates)

	for _, c := range candidates {
		if c.Action.Type == schemas.ActionAnalyzeDataset {
			assert.NotEqual(t, "exoplanets", c.Action.Topic, "analyzed topics are not re-proposed")
		}
	}
}

func TestGenerateCandidates_ShareRequiresSociabilityAndAudience(t *testing.T) {
	e := newTestEngine(2)
	in := baseInputs()
	in.ThoughtCount = 3
	in.RecentThoughts = []schemas.Thought{
		{Conclusion: "flare activity correlates with comms dropouts", Confidence: 0.9},
	}

	// Not enough channel activity: no share candidate.
	in.ChannelSignals = 1
	for _, c := range e.GenerateCandidates(in) {
		assert.NotEqual(t, schemas.ActionShareFinding, c.Action.Type)
	}

	// Enough audience: a share candidate carrying the best conclusion.
	in.ChannelSignals = 5
	found := false
	for _, c := range e.GenerateCandidates(in) {
		if c.Action.Type == schemas.ActionShareFinding {
			found = true
			assert.Equal(t, "flare activity correlates with comms dropouts", c.Action.Finding)
		}
	}
	assert.True(t, found)
}

func TestGenerateCandidates_CorrelateNeedsTwoDatasetsAndCuriosity(t *testing.T) {
	e := newTestEngine(3)
	in := baseInputs()
	in.CachedDatasets = []*schemas.Dataset{
		{Topic: "exoplanets"},
		{Topic: "solar_flares"},
	}

	found := false
	for _, c := range e.GenerateCandidates(in) {
		if c.Action.Type == schemas.ActionCorrelateFindings {
			found = true
			require.Len(t, c.Action.Topics, 2)
			assert.NotEqual(t, c.Action.Topics[0], c.Action.Topics[1])
		}
	}
	assert.True(t, found)

	in.Personality.Curiosity = 0.2
	for _, c := range e.GenerateCandidates(in) {
		assert.NotEqual(t, schemas.ActionCorrelateFindings, c.Action.Type)
	}
}

func TestGenerateCandidates_ExploreFallbackWhenEverythingAnalyzed(t *testing.T) {
	e := newTestEngine(4)
	in := baseInputs()
	for _, topic := range CanonicalTopics {
		in.AnalyzedTopics[topic] = true
	}
	in.Personality.Curiosity = 0.2  // no correlate
	in.Personality.Sociability = 0.2 // no share

	// The re-analyze path is stochastic; with no cached datasets it
	// cannot fire, so only the explore fallback remains.
	candidates := e.GenerateCandidates(in)
	require.Len(t, candidates, 1)
	assert.Equal(t, schemas.ActionExploreTopic, candidates[0].Action.Type)
	assert.NotEmpty(t, candidates[0].Action.Topic)
}

// Budget guard: no candidate survives whose estimated cost exceeds the
// remaining budget.
func TestGenerateCandidates_BudgetGuard(t *testing.T) {
	e := newTestEngine(5)

	for _, remaining := range []int{0, 500, 1200, 2400, 3000, 50000} {
		in := baseInputs()
		in.TokensRemaining = remaining
		in.CachedDatasets = []*schemas.Dataset{{Topic: "exoplanets"}, {Topic: "solar_flares"}}
		in.ThoughtCount = 1
		in.ChannelSignals = 5
		in.RecentThoughts = []schemas.Thought{{Conclusion: "c", Confidence: 0.5}}

		for _, c := range e.GenerateCandidates(in) {
			assert.LessOrEqual(t, c.EstTokens, remaining,
				"candidate %s exceeds remaining budget %d", c.Action.Type, remaining)
		}
	}
}

// -- Scoring --

func TestScore_SwarmBonusAfterTransition(t *testing.T) {
	e := newTestEngine(6)
	in := baseInputs()
	in.CachedDatasets = []*schemas.Dataset{{Topic: "exoplanets"}, {Topic: "solar_flares"}}

	find := func(cs []schemas.Candidate) *schemas.Candidate {
		for i := range cs {
			if cs[i].Action.Type == schemas.ActionCorrelateFindings {
				return &cs[i]
			}
		}
		return nil
	}

	in.TransitionOccurred = false
	before := find(e.GenerateCandidates(in))
	in.TransitionOccurred = true
	after := find(e.GenerateCandidates(in))

	require.NotNil(t, before)
	require.NotNil(t, after)
	assert.InDelta(t, 0.10, after.Priority-before.Priority, 1e-9)
}

func TestScore_NoveltyPenalizesRepeats(t *testing.T) {
	e := newTestEngine(7)
	in := baseInputs()

	fresh := e.GenerateCandidates(in)
	require.NotEmpty(t, fresh)
	var analyzeFresh float64
	for _, c := range fresh {
		if c.Action.Type == schemas.ActionAnalyzeDataset {
			analyzeFresh = c.Priority
			break
		}
	}

	in.RecentActionTypes = []schemas.ActionType{schemas.ActionAnalyzeDataset}
	repeated := e.GenerateCandidates(in)
	var analyzeRepeated float64
	for _, c := range repeated {
		if c.Action.Type == schemas.ActionAnalyzeDataset {
			analyzeRepeated = c.Priority
			break
		}
	}

	assert.InDelta(t, 0.15, analyzeFresh-analyzeRepeated, 1e-9)
}

// -- Selection --

func TestSelect_ZeroTemperatureIsArgmax(t *testing.T) {
	e := newTestEngine(8)
	candidates := []schemas.Candidate{
		{Action: schemas.Action{Type: schemas.ActionAnalyzeDataset, Topic: "a"}, Priority: 0.9},
		{Action: schemas.Action{Type: schemas.ActionExploreTopic, Topic: "b"}, Priority: 0.1},
	}

	for i := 0; i < 100; i++ {
		selected := e.Select(candidates, 0)
		require.NotNil(t, selected)
		assert.Equal(t, "a", selected.Action.Topic)
	}
}

func TestSelect_TieBreaksToFirstCandidate(t *testing.T) {
	e := newTestEngine(9)
	candidates := []schemas.Candidate{
		{Action: schemas.Action{Topic: "first"}, Priority: 0.5},
		{Action: schemas.Action{Topic: "second"}, Priority: 0.5},
	}
	assert.Equal(t, "first", e.Select(candidates, 0).Action.Topic)
}

func TestSelect_EmptyReturnsNil(t *testing.T) {
	e := newTestEngine(10)
	assert.Nil(t, e.Select(nil, 0.3))
}

// Softmax distribution: with two candidates at 0.9 and 0.1 and T=0.3,
// the empirical frequency of the stronger one converges to
// exp(0.8/0.3) / (1 + exp(0.8/0.3)) within 2%.
func TestSelect_SoftmaxDistributionConverges(t *testing.T) {
	e := New(rand.New(rand.NewSource(time.Now().UnixNano())), zap.NewNop())
	candidates := []schemas.Candidate{
		{Action: schemas.Action{Topic: "a"}, Priority: 0.9},
		{Action: schemas.Action{Topic: "b"}, Priority: 0.1},
	}

	const trials = 10000
	countA := 0
	for i := 0; i < trials; i++ {
		if e.Select(candidates, 0.3).Action.Topic == "a" {
			countA++
		}
	}

	expected := math.Exp(0.8/0.3) / (1 + math.Exp(0.8/0.3))
	assert.InDelta(t, expected, float64(countA)/trials, 0.02)
}

// -- Switch policy --

func TestShouldSwitch_ForcedCases(t *testing.T) {
	e := newTestEngine(11)

	assert.True(t, e.ShouldSwitch(50000, 50000, true, true), "exhausted budget always switches")
	assert.True(t, e.ShouldSwitch(0, 50000, false, true), "no current decision always switches")
}

func TestShouldSwitch_FailureRaisesProbability(t *testing.T) {
	e := newTestEngine(12)

	const trials = 5000
	successSwitches, failureSwitches := 0, 0
	for i := 0; i < trials; i++ {
		if e.ShouldSwitch(0, 50000, true, true) {
			successSwitches++
		}
		if e.ShouldSwitch(0, 50000, true, false) {
			failureSwitches++
		}
	}

	assert.InDelta(t, 0.25, float64(successSwitches)/trials, 0.03)
	assert.InDelta(t, 0.70, float64(failureSwitches)/trials, 0.03)
}
