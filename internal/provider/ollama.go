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

// OllamaClient generates commentary lines against a local Ollama server.
// Secondary provider in the default wiring: it stays warm so rate-limit
// events on the primary degrade latency, not availability.
type OllamaClient struct {
	baseURL string
	model   string
	logger  *slog.Logger
	client  *http.Client
}

// NewOllamaClient creates an Ollama HTTP client.
func NewOllamaClient(baseURL, model string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		logger:  logger,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// Generate produces one commentary line from the local model.
func (c *OllamaClient) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"system": systemPrompt,
		"prompt": req.Prompt,
		"stream": false,
	}
	body, _ := json.Marshal(reqBody)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(raw))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	line := strings.TrimSpace(strings.Trim(strings.TrimSpace(response.Response), `"`))
	if line == "" {
		return "", fmt.Errorf("ollama returned empty completion")
	}
	c.logger.Debug("ollama line generated", "event_id", req.EventID, "kind", req.Kind)
	return line, nil
}
