// File: internal/pheromone/channel_test.go
package pheromone

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

func newTestChannel(opts Options) *Channel {
	return NewChannel(opts, zap.NewNop())
}

func signal(id string, strength float64) schemas.Signal {
	return schemas.Signal{
		ID:         id,
		ProducerID: "producer-" + id,
		Content:    "content for " + id,
		Domain:     "testing",
		Confidence: 0.8,
		Strength:   strength,
	}
}

// -- Deposit / dedup --

func TestDeposit_DedupByID(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})

	assert.True(t, ch.Deposit(signal("X", 0.5)))
	assert.False(t, ch.Deposit(signal("X", 0.9)), "second deposit of the same id must be a no-op")
	assert.Equal(t, 1, ch.Len())

	// The original signal is untouched by the duplicate.
	snap := ch.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0.5, snap[0].Strength)
}

func TestDeposit_RejectsPrunedStrength(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})

	assert.False(t, ch.Deposit(signal("weak", 0.05)))
	assert.False(t, ch.Deposit(signal("dead", 0.0)))
	assert.Equal(t, 0, ch.Len())
}

// -- Decay --

// Solo decay scenario: one signal at 0.5 with decayRate 0.5 halves each
// tick and is pruned on the fourth decay (0.03125 <= 0.05).
func TestDecay_SoloDecayAndPrune(t *testing.T) {
	ch := newTestChannel(Options{DecayRate: 0.5, AgentCount: 1})
	require.True(t, ch.Deposit(signal("X", 0.5)))

	expected := []float64{0.25, 0.125, 0.0625}
	for _, want := range expected {
		ch.Decay()
		snap := ch.Snapshot()
		require.Len(t, snap, 1)
		assert.InDelta(t, want, snap[0].Strength, 1e-12)
	}

	ch.Decay() // 0.03125 <= minStrength, pruned
	assert.Equal(t, 0, ch.Len())
	assert.Zero(t, ch.Density())
}

func TestDecay_EverySurvivorAboveMinStrength(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 4})
	for i := 0; i < 50; i++ {
		ch.Deposit(signal(fmt.Sprintf("s%d", i), 0.06+float64(i)*0.018))
	}

	for tick := 0; tick < 30; tick++ {
		ch.Decay()
		for _, s := range ch.Snapshot() {
			assert.Greater(t, s.Strength, 0.05)
			assert.LessOrEqual(t, s.Strength, 1.0)
		}
	}
}

func TestDecay_PrunedIDCanBeRedeposited(t *testing.T) {
	ch := newTestChannel(Options{DecayRate: 0.9, AgentCount: 1})
	require.True(t, ch.Deposit(signal("X", 0.3)))
	ch.Decay() // 0.03, pruned
	require.Equal(t, 0, ch.Len())

	assert.True(t, ch.Deposit(signal("X", 0.6)), "a pruned id is forgotten and may return")
}

// -- Boost --

func TestBoost_ClampsToOne(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})
	ch.Deposit(signal("X", 0.95))

	assert.True(t, ch.Boost("X", 0.1))
	assert.Equal(t, 1.0, ch.Snapshot()[0].Strength)
	assert.False(t, ch.Boost("missing", 0.1))
}

// -- Density --

func TestDensity_EmptyChannelIsZero(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 6})
	ch.Decay()
	assert.Zero(t, ch.Density())
}

// With avgStrength and connectivity held constant, density must not
// decrease as the active count grows.
func TestDensity_MonotonicInActiveCount(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 40; n++ {
		ch := newTestChannel(Options{AgentCount: 4})
		for i := 0; i < n; i++ {
			s := signal(fmt.Sprintf("s%d", i), 0.5)
			s.Connections = []string{"a", "b"}
			ch.Deposit(s)
		}
		ch.Decay() // recomputes density; strengths become 0.44
		d := ch.Density()
		assert.GreaterOrEqual(t, d+1e-12, prev, "density regressed at n=%d", n)
		assert.LessOrEqual(t, d, 1.0)
		prev = d
	}
}

func TestDensity_ConnectivityGivesSuperLinearResponse(t *testing.T) {
	flat := newTestChannel(Options{AgentCount: 4})
	linked := newTestChannel(Options{AgentCount: 4})
	for i := 0; i < 8; i++ {
		flat.Deposit(signal(fmt.Sprintf("f%d", i), 0.6))
		s := signal(fmt.Sprintf("l%d", i), 0.6)
		s.Connections = []string{"x", "y", "z"}
		linked.Deposit(s)
	}
	flat.Decay()
	linked.Decay()

	assert.Greater(t, linked.Density(), flat.Density())
}

// -- Transition --

// Transition scenario: a population of six agents feeding the channel
// with connected signals crosses the critical threshold within 20 ticks,
// and the latch fires exactly once.
func TestTransition_GossipVariantFiresOnceWithinTwentyTicks(t *testing.T) {
	ch := newTestChannel(Options{DecayRate: 0.12, CriticalThreshold: 0.55, AgentCount: 6})

	transitions := 0
	for tick := 1; tick <= 20; tick++ {
		// Each of six agents emits one connected signal per tick.
		for agent := 0; agent < 6; agent++ {
			s := signal(fmt.Sprintf("t%d-a%d", tick, agent), 0.5+0.3*0.8)
			s.Connections = []string{fmt.Sprintf("t%d-a%d", tick-1, agent)}
			ch.Deposit(s)
		}
		ch.Decay()
		if ch.ShouldTransitionLocal() {
			if ch.MarkTransition(tick) {
				transitions++
			}
		}
	}

	assert.Equal(t, 1, transitions, "the latch must fire exactly once")
	assert.True(t, ch.TransitionOccurred())
	assert.GreaterOrEqual(t, ch.Density(), 0.55)

	strong := 0
	for _, s := range ch.Snapshot() {
		if s.Strength > 0.4 {
			strong++
		}
	}
	assert.GreaterOrEqual(t, strong, 3)
}

func TestTransition_LatchBlocksSecondMark(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})
	assert.True(t, ch.MarkTransition(7))
	assert.False(t, ch.MarkTransition(9))
	assert.Equal(t, 7, ch.TransitionStep())
}

func TestTransition_OrchestratedVariantNeedsQuorum(t *testing.T) {
	ch := newTestChannel(Options{CriticalThreshold: 0.3, AgentCount: 4})
	for i := 0; i < 30; i++ {
		s := signal(fmt.Sprintf("s%d", i), 0.9)
		s.Connections = []string{"a", "b", "c"}
		ch.Deposit(s)
	}
	ch.Decay()
	require.GreaterOrEqual(t, ch.Density(), 0.3)

	assert.False(t, ch.ShouldTransition(1, 4), "one synced agent of four is below quorum")
	assert.True(t, ch.ShouldTransition(2, 4))
}

// -- Reset --

func TestReset_ClearsEverythingAndRearmsLatch(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})
	ch.Deposit(signal("X", 0.8))
	ch.Decay()
	ch.MarkTransition(3)

	ch.Reset()

	assert.Equal(t, 0, ch.Len())
	assert.Zero(t, ch.Density())
	assert.False(t, ch.TransitionOccurred())
	assert.True(t, ch.MarkTransition(10), "latch is rearmed after reset")
}

// -- Snapshot isolation --

func TestSnapshot_DoesNotAliasChannelState(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})
	s := signal("X", 0.8)
	s.Connections = []string{"origin"}
	ch.Deposit(s)

	snap := ch.Snapshot()
	snap[0].Strength = 0.01
	snap[0].Connections[0] = "tampered"

	fresh := ch.Snapshot()
	assert.Equal(t, 0.8, fresh[0].Strength)
	assert.Equal(t, "origin", fresh[0].Connections[0])
}

func TestSetCommitment(t *testing.T) {
	ch := newTestChannel(Options{AgentCount: 2})
	ch.Deposit(signal("X", 0.8))

	assert.True(t, ch.SetCommitment("X", "kzg:abc"))
	assert.Equal(t, "kzg:abc", ch.Snapshot()[0].DACommitment)
	assert.False(t, ch.SetCommitment("missing", "kzg:def"))
}
