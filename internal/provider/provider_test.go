package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypecast/caster/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func genRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		EventID:  uuid.New(),
		Kind:     domain.KindKill,
		Priority: domain.PriorityHigh,
		Prompt:   "What's happening now: kessler takes down an opponent.",
		Deadline: time.Now().Add(3 * time.Second),
	}
}

func TestOpenAIClient_GeneratesLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": `"AND KESSLER STRIKES AGAIN!"`}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL, "gpt-4o-mini", testLogger())
	line, err := client.Generate(context.Background(), genRequest())
	require.NoError(t, err)
	assert.Equal(t, "AND KESSLER STRIKES AGAIN!", line, "surrounding quotes stripped")
}

func TestOpenAIClient_RateLimitIsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL, "", testLogger())
	_, err := client.Generate(context.Background(), genRequest())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	client := NewOpenAIClient("", "", "", testLogger())
	_, err := client.Generate(context.Background(), genRequest())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestOpenAIClient_EmptyCompletionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewOpenAIClient("sk-test", srv.URL, "", testLogger())
	_, err := client.Generate(context.Background(), genRequest())
	assert.Error(t, err)
}

func TestOllamaClient_GeneratesLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.2", body.Model)
		assert.False(t, body.Stream)

		json.NewEncoder(w).Encode(map[string]string{"response": "The clutch is ON, folks!"})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "", testLogger())
	line, err := client.Generate(context.Background(), genRequest())
	require.NoError(t, err)
	assert.Equal(t, "The clutch is ON, folks!", line)
}

func TestOllamaClient_HonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"response": "too late"})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, "", testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, genRequest())
	assert.Error(t, err)
}
