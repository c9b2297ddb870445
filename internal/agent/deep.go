// File: internal/agent/deep.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/engine"
	"github.com/owizdom/swarm-mindv2/internal/reasoning"
)

const thoughtSystemPrompt = `You are one member of a swarm of autonomous research agents studying
space-science datasets. Respond ONLY with a JSON object of the form
{"observation": string, "reasoning": string, "conclusion": string,
"suggestedActions": [string], "confidence": number between 0 and 1}.
Suggested actions name dataset topics worth analyzing next.`

// thoughtPayload is the JSON shape expected back from the backend.
type thoughtPayload struct {
	Observation      string   `json:"observation"`
	Reasoning        string   `json:"reasoning"`
	Conclusion       string   `json:"conclusion"`
	SuggestedActions []string `json:"suggestedActions"`
	Confidence       float64  `json:"confidence"`
}

// deepStep runs the think, decide, execute pipeline for one tick.
func (a *Agent) deepStep(ctx context.Context) {
	thought := a.think(ctx)

	a.mu.Lock()
	a.state.Thoughts = append(a.state.Thoughts, thought)
	a.mu.Unlock()

	if err := a.store.SaveThought(ctx, thought); err != nil {
		a.logger.Debug("Failed to persist thought", zap.Error(err))
	}

	candidate := a.decide()
	if candidate == nil {
		return
	}
	succeeded := a.execute(ctx, *candidate, thought)

	// Restless agents drop their focus topic and look elsewhere; failure
	// makes that much more likely. The decision that just settled counts
	// as the line of work under evaluation.
	a.mu.Lock()
	tokensUsed, budget := a.state.TokensUsed, a.state.TokenBudget
	a.mu.Unlock()
	if a.engine.ShouldSwitch(tokensUsed, budget, true, succeeded) {
		a.mu.Lock()
		a.state.CurrentTarget = ""
		a.mu.Unlock()
	}
}

// think produces one Thought. Social agents with absorbed material
// synthesize it; everyone else reasons from their own trail. A gated or
// failed backend degrades to a canned low-confidence thought without
// spending tokens.
func (a *Agent) think(ctx context.Context) schemas.Thought {
	a.mu.Lock()
	social := len(a.state.Absorbed) > 0 && a.state.Personality.Sociability > 0.4
	a.mu.Unlock()

	var (
		trigger string
		user    string
	)
	if social {
		trigger = "synthesis"
		user = a.synthesisPrompt()
	} else {
		trigger = "observation"
		user = a.observationPrompt()
	}

	result, err := a.reasoner.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: thoughtSystemPrompt,
		UserPrompt:   user,
		Options: schemas.GenerationOptions{
			Temperature:     0.7,
			MaxTokens:       1024,
			ForceJSONFormat: true,
		},
	})

	switch {
	case errors.Is(err, reasoning.ErrInsufficientCredits):
		return a.cannedThought(trigger)
	case err != nil:
		a.logger.Warn("Reasoning backend failed, degrading thought", zap.Error(err))
		return a.degradedThought(trigger)
	case result.Content == "":
		return a.degradedThought(trigger)
	}

	a.mu.Lock()
	a.state.TokensUsed += result.TokensUsed
	producerID := a.state.ID
	a.mu.Unlock()

	var payload thoughtPayload
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &payload); err != nil {
		a.logger.Warn("Unparseable thought from backend", zap.Error(err))
		return a.degradedThought(trigger)
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}

	return schemas.Thought{
		ID:               uuid.New().String(),
		ProducerID:       producerID,
		Trigger:          trigger,
		Observation:      payload.Observation,
		Reasoning:        payload.Reasoning,
		Conclusion:       payload.Conclusion,
		SuggestedActions: payload.SuggestedActions,
		Confidence:       payload.Confidence,
		Timestamp:        time.Now().UnixMilli(),
	}
}

// synthesisPrompt summarizes the absorbed signals for the backend.
func (a *Agent) synthesisPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	b.WriteString("Synthesize the following signals absorbed from peer agents into one insight:\n")
	start := len(a.state.Knowledge) - 6
	if start < 0 {
		start = 0
	}
	for _, s := range a.state.Knowledge[start:] {
		fmt.Fprintf(&b, "- [%s, confidence %.2f] %s\n", s.Domain, s.Confidence, truncate(s.Content, 280))
	}
	return b.String()
}

// observationPrompt describes the agent's own situation for the backend.
func (a *Agent) observationPrompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return fmt.Sprintf(
		"You are %s, a %s agent at step %d. Topics studied so far: %s. "+
			"Channel density is %.2f across %d signals. Propose what to investigate next.",
		a.state.Name, a.state.Specialization, a.state.StepCount,
		strings.Join(a.state.TopicsStudied, ", "),
		a.channel.Density(), a.channel.Len())
}

// cannedThought is the zero-token fallback when credits forbid reasoning.
func (a *Agent) cannedThought(trigger string) schemas.Thought {
	a.mu.Lock()
	producerID := a.state.ID
	a.mu.Unlock()
	return schemas.Thought{
		ID:               uuid.New().String(),
		ProducerID:       producerID,
		Trigger:          trigger,
		Observation:      "compute credits exhausted",
		Reasoning:        "reasoning calls are gated at this credit tier",
		Conclusion:       "continuing with lightweight observation only",
		SuggestedActions: []string{},
		Confidence:       0.2,
		Timestamp:        time.Now().UnixMilli(),
	}
}

// degradedThought covers backend failure: empty content, zero tokens,
// reduced confidence.
func (a *Agent) degradedThought(trigger string) schemas.Thought {
	a.mu.Lock()
	producerID := a.state.ID
	a.mu.Unlock()
	return schemas.Thought{
		ID:               uuid.New().String(),
		ProducerID:       producerID,
		Trigger:          trigger,
		Observation:      "reasoning backend unavailable",
		Reasoning:        "the request was retried and abandoned",
		Conclusion:       "deferring deeper analysis to a later step",
		SuggestedActions: []string{},
		Confidence:       0.3,
		Timestamp:        time.Now().UnixMilli(),
	}
}

// decide asks the engine for candidates and selects one via softmax.
func (a *Agent) decide() *schemas.Candidate {
	a.mu.Lock()
	analyzed := make(map[string]bool, len(a.state.TopicsStudied))
	for _, t := range a.state.TopicsStudied {
		analyzed[t] = true
	}
	in := engine.Inputs{
		Personality:        a.state.Personality,
		AnalyzedTopics:     analyzed,
		CachedDatasets:     a.source.Cached(),
		RecentThoughts:     append([]schemas.Thought(nil), a.state.Thoughts...),
		ThoughtCount:       len(a.state.Thoughts),
		ChannelSignals:     a.channel.Len(),
		TokensRemaining:    a.state.TokenBudget - a.state.TokensUsed,
		TransitionOccurred: a.channel.TransitionOccurred(),
		RecentActionTypes:  a.state.recentActionTypes(8),
	}
	a.mu.Unlock()

	candidates := a.engine.GenerateCandidates(in)
	selected := a.engine.Select(candidates, 0.3)
	if selected == nil {
		return nil
	}

	decision := schemas.Decision{
		ID:        uuid.New().String(),
		AgentID:   a.state.ID,
		Action:    selected.Action,
		Priority:  selected.Priority,
		Status:    schemas.DecisionExecuting,
		CreatedAt: time.Now().UnixMilli(),
	}
	a.mu.Lock()
	a.state.CurrentDecision = &decision
	a.mu.Unlock()

	return selected
}

// execute dispatches the selected action, settles the decision record,
// and emits a signal on success. Reports whether the action succeeded.
func (a *Agent) execute(ctx context.Context, c schemas.Candidate, thought schemas.Thought) bool {
	var (
		content string
		domain  string
		err     error
	)

	switch c.Action.Type {
	case schemas.ActionAnalyzeDataset:
		content, err = a.executeAnalyze(ctx, c.Action.Topic)
		domain = c.Action.Topic
	case schemas.ActionShareFinding:
		content = c.Action.Finding
		domain = c.Action.Topic
		if domain == "" {
			domain = "findings"
		}
		if content == "" {
			err = fmt.Errorf("nothing to share")
		}
	case schemas.ActionCorrelateFindings:
		content, err = a.executeCorrelate(ctx, c.Action.Topics)
		domain = "correlation"
	case schemas.ActionExploreTopic:
		content, err = a.executeExplore(ctx, c.Action.Topic)
		domain = c.Action.Topic
	default:
		err = fmt.Errorf("unknown action type %q", c.Action.Type)
	}

	a.settleDecision(ctx, err)
	if err != nil {
		a.logger.Warn("Action failed",
			zap.String("action", string(c.Action.Type)),
			zap.Error(err))
		return false
	}

	a.mu.Lock()
	a.state.Discoveries++
	connections := lastSignalIDs(a.state.Knowledge, 3)
	a.mu.Unlock()

	a.emit(ctx, emission{
		content:     content,
		domain:      domain,
		confidence:  thought.Confidence,
		priority:    c.Priority,
		deep:        true,
		connections: connections,
	})
	return true
}

// settleDecision transitions the current decision to completed or failed
// and records it.
func (a *Agent) settleDecision(ctx context.Context, execErr error) {
	a.mu.Lock()
	decision := a.state.CurrentDecision
	if decision == nil {
		a.mu.Unlock()
		return
	}
	decision.CompletedAt = time.Now().UnixMilli()
	if execErr != nil {
		decision.Status = schemas.DecisionFailed
		decision.Result = execErr.Error()
	} else {
		decision.Status = schemas.DecisionCompleted
	}
	a.state.Decisions = append(a.state.Decisions, *decision)
	saved := *decision
	a.state.CurrentDecision = nil
	a.mu.Unlock()

	if err := a.store.SaveDecision(ctx, saved); err != nil {
		a.logger.Debug("Failed to persist decision", zap.Error(err))
	}
}

// executeAnalyze fetches a dataset and asks the backend for an analysis.
func (a *Agent) executeAnalyze(ctx context.Context, topic string) (string, error) {
	ds, err := a.source.FetchDataset(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("dataset fetch failed: %w", err)
	}

	result, err := a.reasoner.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: "Summarize the most scientifically interesting aspect of this dataset in under 120 words.",
		UserPrompt:   fmt.Sprintf("Dataset %q: %s\nHighlights: %s", ds.Title, ds.Summary, strings.Join(ds.Highlights, "; ")),
		Options:      schemas.GenerationOptions{Temperature: 0.5, MaxTokens: 512},
	})
	switch {
	case errors.Is(err, reasoning.ErrInsufficientCredits), err == nil && result.Content == "":
		// Analysis still succeeds on the raw material.
		result.Content = fmt.Sprintf("%s: %s", ds.Title, truncate(ds.Summary, 240))
	case err != nil:
		return "", fmt.Errorf("analysis generation failed: %w", err)
	default:
		a.mu.Lock()
		a.state.TokensUsed += result.TokensUsed
		a.mu.Unlock()
	}

	a.mu.Lock()
	if !a.state.hasStudied(topic) {
		a.state.TopicsStudied = append(a.state.TopicsStudied, topic)
	}
	a.state.CurrentTarget = topic
	a.mu.Unlock()

	return result.Content, nil
}

// executeCorrelate fetches both datasets and asks the backend to relate
// them.
func (a *Agent) executeCorrelate(ctx context.Context, topics []string) (string, error) {
	if len(topics) < 2 {
		return "", fmt.Errorf("correlation needs two topics")
	}
	first, err := a.source.FetchDataset(ctx, topics[0])
	if err != nil {
		return "", fmt.Errorf("dataset fetch failed: %w", err)
	}
	second, err := a.source.FetchDataset(ctx, topics[1])
	if err != nil {
		return "", fmt.Errorf("dataset fetch failed: %w", err)
	}

	result, err := a.reasoner.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: "Identify one non-obvious connection between these two datasets in under 120 words.",
		UserPrompt: fmt.Sprintf("Dataset A (%s): %s\nDataset B (%s): %s",
			first.Topic, truncate(first.Summary, 400), second.Topic, truncate(second.Summary, 400)),
		Options: schemas.GenerationOptions{Temperature: 0.6, MaxTokens: 512},
	})
	switch {
	case errors.Is(err, reasoning.ErrInsufficientCredits), err == nil && result.Content == "":
		result.Content = fmt.Sprintf("Possible link between %s and %s worth a closer look", first.Topic, second.Topic)
	case err != nil:
		return "", fmt.Errorf("correlation generation failed: %w", err)
	default:
		a.mu.Lock()
		a.state.TokensUsed += result.TokensUsed
		a.mu.Unlock()
	}
	return result.Content, nil
}

// executeExplore warms the dataset cache for a topic and reports what was
// found.
func (a *Agent) executeExplore(ctx context.Context, topic string) (string, error) {
	ds, err := a.source.FetchDataset(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("dataset fetch failed: %w", err)
	}
	a.mu.Lock()
	a.state.CurrentTarget = topic
	a.mu.Unlock()
	return fmt.Sprintf("Scouting %s: %s", topic, truncate(ds.Summary, 240)), nil
}

// lastSignalIDs returns the ids of the most recently absorbed signals,
// the causal connections for an emitted signal.
func lastSignalIDs(knowledge []schemas.Signal, n int) []string {
	start := len(knowledge) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(knowledge)-start)
	for _, s := range knowledge[start:] {
		out = append(out, s.ID)
	}
	return out
}

// extractJSON trims markdown fences some backends wrap around JSON.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
