// File: internal/agent/synthesis_test.go
package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/reasoning"
)

func richSignal(id, producer, domain string) schemas.Signal {
	return schemas.Signal{
		ID:         id,
		ProducerID: producer,
		Content:    "a substantive observation about " + domain + " that easily clears the length bar",
		Domain:     domain,
		Confidence: 0.8,
		Strength:   0.7,
	}
}

func TestSynthesis_RequiresTwoContributors(t *testing.T) {
	a := newTestAgent(t, nil)

	a.channel.Deposit(richSignal("s1", "agent-a", "solar_flares"))
	a.channel.Deposit(richSignal("s2", "agent-a", "solar_flares"))

	_, ok := a.synthesizeCollective(context.Background())
	assert.False(t, ok, "one producer is not a collective")
}

func TestSynthesis_IgnoresWeakShortAndDistressSignals(t *testing.T) {
	a := newTestAgent(t, nil)

	weak := richSignal("weak", "agent-a", "solar_flares")
	weak.Strength = 0.2
	short := richSignal("short", "agent-b", "solar_flares")
	short.Content = "too short"
	distress := richSignal("sos", "agent-c", "distress")

	a.channel.Deposit(weak)
	a.channel.Deposit(short)
	a.channel.Deposit(distress)

	_, ok := a.synthesizeCollective(context.Background())
	assert.False(t, ok)
}

func TestSynthesis_FallbackWithoutBackend(t *testing.T) {
	a := newTestAgent(t, nil) // reasoner is nil

	a.channel.Deposit(richSignal("s1", "agent-a", "solar_flares"))
	a.channel.Deposit(richSignal("s2", "agent-b", "solar_flares"))
	a.channel.Deposit(richSignal("s3", "agent-b", "mars_weather"))

	memory, ok := a.synthesizeCollective(context.Background())
	require.True(t, ok)

	// The densest domain wins the topic.
	assert.Equal(t, "solar_flares", memory.Topic)
	assert.ElementsMatch(t, []string{"agent-a", "agent-b"}, memory.Contributors)
	assert.ElementsMatch(t, []string{"s1", "s2"}, memory.SignalIDs)
	assert.Nil(t, memory.Report, "no backend means no structured report")
	assert.NotEmpty(t, memory.Synthesis, "the plaintext synthesis carries the memory")
	assert.InDelta(t, 0.8, memory.Confidence, 1e-9)
	assert.NotEmpty(t, memory.Attestation)
}

func TestSynthesis_StructuredReportFromBackend(t *testing.T) {
	a := newTestAgent(t, nil)

	stub := &stubReasoner{result: schemas.GenerationResult{
		Content: `{
			"overview": "the swarm converged on flare timing",
			"keyFindings": ["X-class events cluster"],
			"opinions": "moderately confident",
			"improvements": ["wider observation window"],
			"verdict": "worth pursuing"
		}`,
		TokensUsed: 200,
	}}
	a.reasoner = reasoning.NewGatedClient(stub, a.ledger, zap.NewNop())

	a.channel.Deposit(richSignal("s1", "agent-a", "solar_flares"))
	a.channel.Deposit(richSignal("s2", "agent-b", "solar_flares"))

	memory, ok := a.synthesizeCollective(context.Background())
	require.True(t, ok)

	require.NotNil(t, memory.Report)
	assert.Equal(t, "the swarm converged on flare timing", memory.Report.Overview)
	assert.Equal(t, []string{"X-class events cluster"}, memory.Report.KeyFindings)
	assert.Equal(t, 200, a.state.TokensUsed, "report generation is metered")
}

func TestOnTransition_CreditsOwnContribution(t *testing.T) {
	a := newTestAgent(t, nil)

	// One of the rich signals is the agent's own.
	own := richSignal("mine", a.state.ID, "solar_flares")
	a.channel.Deposit(own)
	a.channel.Deposit(richSignal("theirs", "agent-b", "solar_flares"))

	balanceBefore := a.ledger.Snapshot().Balance
	a.onTransition(context.Background())

	require.Len(t, a.collective, 1)
	assert.Equal(t, 1, a.state.ContributionsToCollective)
	assert.Equal(t, balanceBefore+10, a.ledger.Snapshot().Balance)

	// The memory is visible on the read surface.
	assert.Len(t, a.CollectiveMemories(), 1)
}

func TestOnTransition_NoMemoryWithoutSubstance(t *testing.T) {
	a := newTestAgent(t, nil)
	a.onTransition(context.Background())
	assert.Empty(t, a.collective)
	assert.Zero(t, a.state.ContributionsToCollective)
}
