// Package ai wraps a text-completion model and exposes the best-effort
// annotation, mention detection, and reply drafting used by the sync
// pipeline and auto-reply generator.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/unibox/internal/model"
)

// Request is a single-turn completion request.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into free text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrNoAPIKey is returned when the selected backend has no key configured.
var ErrNoAPIKey = errors.New("ai api key not configured")

// APIError is a non-2xx response from a completion backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// NewCompleter builds the backend selected by cfg.Provider.
func NewCompleter(cfg model.AIConfig, client *http.Client) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, client), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.BaseURL, client), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
