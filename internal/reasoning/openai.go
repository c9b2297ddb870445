// File: internal/reasoning/openai.go
package reasoning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenAIClient implements schemas.ReasoningClient against any
// chat-completions-compatible endpoint (OpenAI, Ollama, self-hosted
// gateways). Transport failures and 429/5xx responses are retried a
// bounded number of times; everything else is permanent.
type OpenAIClient struct {
	apiKey     string
	endpoint   string
	model      string
	maxRetries uint64
	httpClient *http.Client
	logger     *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient initializes the client for one model.
func NewOpenAIClient(cfg config.ReasoningConfig, model string, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("reasoning API URL is required for provider %q", cfg.Provider)
	}
	endpoint := strings.TrimSuffix(cfg.APIURL, "/") + "/chat/completions"
	retries := uint64(cfg.MaxRetries)
	if cfg.MaxRetries < 0 {
		retries = 0
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: cfg.APITimeout},
		logger:     logger.Named("reasoning.openai"),
	}, nil
}

// Generate sends the prompts to the endpoint and returns the generated
// content with its token cost.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	payload := chatRequest{
		Model:       c.model,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.GenerationResult{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var result schemas.GenerationResult

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("Network error during reasoning request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("reasoning API returned no choices"))
		}

		c.logger.Debug("Generation complete",
			zap.String("model", c.model),
			zap.Duration("duration", time.Since(start)),
			zap.Int("total_tokens", parsed.Usage.TotalTokens))

		result = schemas.GenerationResult{
			Content:    parsed.Choices[0].Message.Content,
			TokensUsed: parsed.Usage.TotalTokens,
		}
		return nil
	}

	// Bounded constant backoff: a rate-limited swarm should back off and
	// give up, not hammer the gateway with an exponential tail.
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), c.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.GenerationResult{}, err
	}
	return result, nil
}

func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	err := fmt.Errorf("reasoning API error: status %d, body: %s", statusCode, string(body))
	switch {
	case statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError:
		c.logger.Warn("Transient reasoning API error, retrying...", zap.Int("status", statusCode))
		return err
	default:
		c.logger.Error("Permanent reasoning API error", zap.Int("status", statusCode), zap.String("response", string(body)))
		return backoff.Permanent(err)
	}
}
