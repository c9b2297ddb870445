// File: internal/agent/synthesis.go
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
)

const reportSystemPrompt = `You are the synthesis voice of a research agent swarm. Given evidence
gathered by multiple agents, respond ONLY with a JSON object of the form
{"overview": string, "keyFindings": [string], "opinions": string,
"improvements": [string], "verdict": string}.`

// onTransition runs collective synthesis once per phase transition. All
// failures degrade: no reasoning backend means a plaintext synthesis, too
// few contributors means no memory at all.
func (a *Agent) onTransition(ctx context.Context) {
	memory, ok := a.synthesizeCollective(ctx)
	if !ok {
		return
	}

	a.mu.Lock()
	a.collective = append(a.collective, memory)
	contributed := false
	for _, c := range memory.Contributors {
		if c == a.state.ID {
			contributed = true
			break
		}
	}
	if contributed {
		a.state.ContributionsToCollective++
	}
	a.mu.Unlock()

	if contributed {
		a.ledger.EarnCollective()
	}

	if err := a.store.SaveCollectiveMemory(ctx, memory); err != nil {
		a.logger.Warn("Failed to persist collective memory", zap.Error(err))
	}
}

// synthesizeCollective assembles a CollectiveMemory from the rich signals
// currently in the channel. Returns false when the channel does not carry
// enough multi-agent substance.
func (a *Agent) synthesizeCollective(ctx context.Context) (schemas.CollectiveMemory, bool) {
	rich := a.richSignals()
	if len(rich) == 0 {
		return schemas.CollectiveMemory{}, false
	}

	// Group by domain and take the densest group as the topic.
	groups := make(map[string][]schemas.Signal)
	for _, s := range rich {
		groups[s.Domain] = append(groups[s.Domain], s)
	}
	topic := ""
	for domain, group := range groups {
		if topic == "" || len(group) > len(groups[topic]) {
			topic = domain
		}
	}
	chosen := groups[topic]

	contributors := make(map[string]bool)
	signalIDs := make([]string, 0, len(chosen))
	for _, s := range chosen {
		contributors[s.ProducerID] = true
		signalIDs = append(signalIDs, s.ID)
	}
	if len(contributors) < 2 {
		a.logger.Debug("Synthesis aborted, not enough contributors",
			zap.String("topic", topic), zap.Int("contributors", len(contributors)))
		return schemas.CollectiveMemory{}, false
	}

	contributorIDs := make([]string, 0, len(contributors))
	for id := range contributors {
		contributorIDs = append(contributorIDs, id)
	}
	sort.Strings(contributorIDs)

	a.mu.Lock()
	topThoughts := topThoughtsByConfidence(a.state.Thoughts, 3)
	topics := append([]string(nil), a.state.TopicsStudied...)
	producerID := a.state.ID
	specialization := a.state.Specialization
	name := a.state.Name
	a.mu.Unlock()

	var confidence float64
	for _, s := range chosen {
		confidence += s.Confidence
	}
	confidence /= float64(len(chosen))

	synthesis := fallbackSynthesis(chosen, topThoughts)
	report := a.generateCollectiveReport(ctx, chosen, topThoughts, topics, topic, name, specialization)

	now := time.Now().UnixMilli()
	memory := schemas.CollectiveMemory{
		ID:           uuid.New().String(),
		Topic:        topic,
		Synthesis:    synthesis,
		Contributors: contributorIDs,
		SignalIDs:    signalIDs,
		Confidence:   confidence,
		Attestation:  a.identity.BuildAttestation(synthesis, producerID, now),
		CreatedAt:    now,
		Report:       report,
	}

	a.logger.Info("Collective memory synthesized",
		zap.String("topic", topic),
		zap.Int("contributors", len(contributorIDs)),
		zap.Int("signals", len(signalIDs)),
		zap.Bool("structured_report", report != nil))
	return memory, true
}

// richSignals filters the channel for signals with enough strength and
// substance to anchor a synthesis: metadata-only payloads are excluded.
func (a *Agent) richSignals() []schemas.Signal {
	var rich []schemas.Signal
	for _, s := range a.channel.Snapshot() {
		if s.Strength < 0.3 || len(s.Content) <= 40 {
			continue
		}
		if s.Domain == "distress" {
			continue
		}
		rich = append(rich, s)
	}
	return rich
}

// generateCollectiveReport asks the reasoning backend for the structured
// report. Any failure returns nil and the plaintext synthesis carries the
// memory.
func (a *Agent) generateCollectiveReport(
	ctx context.Context,
	signals []schemas.Signal,
	thoughts []schemas.Thought,
	topics []string,
	topic, name, specialization string,
) *schemas.CollectiveReport {
	if a.reasoner == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic under synthesis: %s\nTopics studied: %s\n\nEvidence from swarm signals:\n",
		topic, strings.Join(topics, ", "))
	for _, s := range signals {
		fmt.Fprintf(&b, "- [%s, confidence %.2f] %s\n", s.ProducerID, s.Confidence, truncate(s.Content, 280))
	}
	if len(thoughts) > 0 {
		fmt.Fprintf(&b, "\nLocal evidence from %s (%s):\n", name, specialization)
		for _, t := range thoughts {
			fmt.Fprintf(&b, "- observation: %s; reasoning: %s; conclusion: %s (confidence %.2f)\n",
				truncate(t.Observation, 160), truncate(t.Reasoning, 160), truncate(t.Conclusion, 160), t.Confidence)
		}
	}

	result, err := a.reasoner.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: reportSystemPrompt,
		UserPrompt:   b.String(),
		Options: schemas.GenerationOptions{
			Temperature:     0.4,
			MaxTokens:       2048,
			ForceJSONFormat: true,
		},
	})
	if err != nil || result.Content == "" {
		a.logger.Debug("Collective report generation unavailable", zap.Error(err))
		return nil
	}

	a.mu.Lock()
	a.state.TokensUsed += result.TokensUsed
	a.mu.Unlock()

	var report schemas.CollectiveReport
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &report); err != nil {
		a.logger.Debug("Unparseable collective report", zap.Error(err))
		return nil
	}
	return &report
}

// fallbackSynthesis concatenates contributor conclusions, trimmed to 6.
func fallbackSynthesis(signals []schemas.Signal, thoughts []schemas.Thought) string {
	var parts []string
	for _, t := range thoughts {
		if t.Conclusion != "" {
			parts = append(parts, t.Conclusion)
		}
	}
	for _, s := range signals {
		if len(parts) >= 6 {
			break
		}
		parts = append(parts, truncate(s.Content, 200))
	}
	if len(parts) > 6 {
		parts = parts[:6]
	}
	return strings.Join(parts, " | ")
}

// topThoughtsByConfidence returns up to n thoughts, highest confidence
// first.
func topThoughtsByConfidence(thoughts []schemas.Thought, n int) []schemas.Thought {
	sorted := append([]schemas.Thought(nil), thoughts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
