package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/unibox/internal/model"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-3.5-turbo", req.Model)
		assert.InDelta(t, 0.3, req.Temperature, 1e-9)
		assert.Equal(t, 500, req.MaxTokens)
		assert.Equal(t, "hello", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c, err := NewCompleter(model.AIConfig{Provider: "openai", APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, srv.Client())
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{Prompt: "hello", Temperature: 0.3, MaxTokens: 500})
	require.NoError(t, err)
	require.Equal(t, "hi there", out)
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 800, req.MaxTokens)
		assert.Equal(t, defaultAnthropicModel, req.Model)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}`))
	}))
	defer srv.Close()

	c, err := NewCompleter(model.AIConfig{Provider: "anthropic", APIKey: "key", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{Prompt: "p", MaxTokens: 800})
	require.NoError(t, err)
	require.Equal(t, "part one part two", out)
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("k", "", srv.URL, srv.Client())
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	require.Equal(t, "slow down", apiErr.Message)
}

func TestNewCompleterValidation(t *testing.T) {
	_, err := NewCompleter(model.AIConfig{Provider: "openai"}, nil)
	require.ErrorIs(t, err, ErrNoAPIKey)

	_, err = NewCompleter(model.AIConfig{Provider: "llama", APIKey: "k"}, nil)
	require.Error(t, err)
}

func TestBreakerOpensAfterServerFailures(t *testing.T) {
	calls := 0
	b := NewBreaker(CompleterFunc(func(context.Context, Request) (string, error) {
		calls++
		return "", &APIError{Status: http.StatusBadGateway, Message: "down"}
	}), zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.Complete(context.Background(), Request{})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Complete(context.Background(), Request{})
	require.True(t, errors.Is(err, gobreaker.ErrOpenState))
	require.Equal(t, 5, calls)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	b := NewBreaker(CompleterFunc(func(context.Context, Request) (string, error) {
		return "", &APIError{Status: http.StatusBadRequest, Message: "bad prompt"}
	}), zap.NewNop())

	for i := 0; i < 10; i++ {
		_, _ = b.Complete(context.Background(), Request{})
	}
	require.Equal(t, gobreaker.StateClosed, b.State())
}
