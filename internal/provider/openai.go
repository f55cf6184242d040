package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hypecast/caster/internal/domain"
)

// OpenAIClient generates commentary lines via the chat completions API.
// Primary provider in the default wiring.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	logger  *slog.Logger
	client  *http.Client
}

// NewOpenAIClient creates an OpenAI chat completions client. baseURL is
// overridable for tests and proxies; empty means the public API.
func NewOpenAIClient(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		logger:  logger,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

// Generate produces one commentary line. A 429 maps to ErrRateLimited so
// the limiter can route to the fallback provider and start the cooldown.
func (c *OpenAIClient) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai api key not configured")
	}

	reqBody := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": req.Prompt},
		},
		"max_completion_tokens": 120,
	}
	body, _ := json.Marshal(reqBody)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai error (status %d): %s", resp.StatusCode, string(raw))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned empty completion")
	}

	line := strings.TrimSpace(strings.Trim(strings.TrimSpace(response.Choices[0].Message.Content), `"`))
	c.logger.Debug("openai line generated", "event_id", req.EventID, "kind", req.Kind)
	return line, nil
}
