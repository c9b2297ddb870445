// File: internal/reasoning/gemini.go
package reasoning

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/config"
)

// GeminiClient implements schemas.ReasoningClient on the Gemini API via
// the official SDK, which carries its own retry policy.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiClient initializes the SDK client for one model.
func NewGeminiClient(ctx context.Context, cfg config.ReasoningConfig, model string, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.Named("reasoning.gemini"),
	}, nil
}

// Generate sends the prompts to the Gemini API and returns the generated
// content with its token cost.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Options.Temperature)),
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Options.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return schemas.GenerationResult{}, fmt.Errorf("gemini generation failed: %w", err)
	}

	content := resp.Text()
	if content == "" {
		return schemas.GenerationResult{}, fmt.Errorf("gemini API returned no content")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	c.logger.Debug("Generation complete",
		zap.String("model", c.model),
		zap.Int("total_tokens", tokens))

	return schemas.GenerationResult{Content: content, TokensUsed: tokens}, nil
}
