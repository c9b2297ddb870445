// File: api/schemas/schemas.go
package schemas

import "time"

// Signal is the signed, decaying knowledge token gossiped between agents.
// It is the only payload that crosses process boundaries during normal
// operation, so its JSON shape is the wire contract for the whole swarm.
type Signal struct {
	ID             string   `json:"id"`
	ProducerID     string   `json:"producerId"`
	Content        string   `json:"content"`
	Domain         string   `json:"domain"`
	Confidence     float64  `json:"confidence"`
	Strength       float64  `json:"strength"`
	Connections    []string `json:"connections"`
	Timestamp      int64    `json:"timestamp"` // unix milliseconds at emission
	Attestation    string   `json:"attestation"`
	ProducerPubkey string   `json:"producerPubkey,omitempty"`
	DACommitment   string   `json:"daCommitment,omitempty"`
}

// Thought captures one reasoning episode of an agent, whether it came from
// the reasoning backend or from the canned low-compute fallback.
type Thought struct {
	ID               string   `json:"id"`
	ProducerID       string   `json:"producerId"`
	Trigger          string   `json:"trigger"`
	Observation      string   `json:"observation"`
	Reasoning        string   `json:"reasoning"`
	Conclusion       string   `json:"conclusion"`
	SuggestedActions []string `json:"suggestedActions"`
	Confidence       float64  `json:"confidence"`
	Timestamp        int64    `json:"timestamp"`
}

// ActionType enumerates the agent's action vocabulary. The executor and the
// decision engine both switch exhaustively over these values.
type ActionType string

const (
	ActionAnalyzeDataset    ActionType = "analyze_dataset"
	ActionShareFinding      ActionType = "share_finding"
	ActionCorrelateFindings ActionType = "correlate_findings"
	ActionExploreTopic      ActionType = "explore_topic"
)

// Action is one concrete step the decision engine can propose. The fields
// used depend on Type: Topic for analyze/explore, Finding (+ optional Topic)
// for share, Topics for correlate.
type Action struct {
	Type    ActionType `json:"type"`
	Topic   string     `json:"topic,omitempty"`
	Topics  []string   `json:"topics,omitempty"`
	Finding string     `json:"finding,omitempty"`
}

// Candidate is an Action scored and costed by the decision engine.
type Candidate struct {
	Action    Action  `json:"action"`
	Priority  float64 `json:"priority"`
	EstTokens int     `json:"estTokens"`
	EstMillis int     `json:"estMillis"`
	Rationale string  `json:"rationale,omitempty"`
}

// DecisionStatus tracks a decision through its lifecycle.
type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "pending"
	DecisionExecuting DecisionStatus = "executing"
	DecisionCompleted DecisionStatus = "completed"
	DecisionFailed    DecisionStatus = "failed"
)

// Decision records a selected candidate and the outcome of executing it.
type Decision struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agentId"`
	Action      Action         `json:"action"`
	Priority    float64        `json:"priority"`
	Status      DecisionStatus `json:"status"`
	Result      string         `json:"result,omitempty"`
	CreatedAt   int64          `json:"createdAt"`
	CompletedAt int64          `json:"completedAt,omitempty"`
}

// Dataset is a cached snapshot of an external data-source topic.
type Dataset struct {
	Topic      string    `json:"topic"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Highlights []string  `json:"highlights"`
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// CollectiveReport is the structured output requested from the reasoning
// backend during collective synthesis.
type CollectiveReport struct {
	Overview     string   `json:"overview"`
	KeyFindings  []string `json:"keyFindings"`
	Opinions     string   `json:"opinions"`
	Improvements []string `json:"improvements"`
	Verdict      string   `json:"verdict"`
}

// CollectiveMemory is the immutable artifact produced at a phase
// transition. Synthesis is the plaintext fallback payload; Report is only
// present when the reasoning backend was reachable.
type CollectiveMemory struct {
	ID           string            `json:"id"`
	Topic        string            `json:"topic"`
	Synthesis    string            `json:"synthesis"`
	Contributors []string          `json:"contributors"`
	SignalIDs    []string          `json:"signalIds"`
	Confidence   float64           `json:"confidence"`
	Attestation  string            `json:"attestation"`
	CreatedAt    int64             `json:"createdAt"`
	Report       *CollectiveReport `json:"report,omitempty"`
}

// Personality holds the four behavioral scalars, each in [0,1]. Immutable
// after construction.
type Personality struct {
	Curiosity   float64 `json:"curiosity"`
	Diligence   float64 `json:"diligence"`
	Boldness    float64 `json:"boldness"`
	Sociability float64 `json:"sociability"`
}

// CreditTier gates access to the reasoning backend.
type CreditTier string

const (
	TierNormal     CreditTier = "normal"
	TierLowCompute CreditTier = "low_compute"
	TierCritical   CreditTier = "critical"
	TierDead       CreditTier = "dead"
)

// ModelTier selects between the configured reasoning models.
type ModelTier string

const (
	ModelTierFast     ModelTier = "fast"
	ModelTierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single reasoning request.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"maxTokens,omitempty"`
	ForceJSONFormat bool    `json:"forceJsonFormat,omitempty"`
}

// GenerationRequest is the provider-agnostic reasoning backend input.
type GenerationRequest struct {
	SystemPrompt string            `json:"systemPrompt"`
	UserPrompt   string            `json:"userPrompt"`
	Tier         ModelTier         `json:"tier,omitempty"`
	Options      GenerationOptions `json:"options"`
}

// GenerationResult carries the backend output plus its token cost, which
// the credit governor debits 1:1.
type GenerationResult struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokensUsed"`
}

// VerificationResult is the advisory outcome of checking a Signal's
// attestation. An invalid attestation never removes the signal.
type VerificationResult struct {
	Valid       bool   `json:"valid"`
	PublicKey   string `json:"publicKey,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
