package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	anthropicURL          = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
)

// Anthropic calls the Claude Messages API.
type Anthropic struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewAnthropic creates a Messages API client. Empty modelName and baseURL
// select the defaults.
func NewAnthropic(apiKey, modelName, baseURL string, client *http.Client) *Anthropic {
	if modelName == "" || strings.HasPrefix(modelName, "gpt-") {
		modelName = defaultAnthropicModel
	}
	url := anthropicURL
	if baseURL != "" {
		url = strings.TrimRight(baseURL, "/") + "/v1/messages"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Anthropic{apiKey: apiKey, model: modelName, url: url, client: client}
}

// Complete sends req as a single user turn and joins the text blocks of
// the reply.
func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	temp := req.Temperature
	reqBody := anthropicRequest{
		Model:       a.model,
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicBlock{{Type: "text", Text: req.Prompt}},
		}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", &APIError{Status: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return "", &APIError{Status: resp.StatusCode, Message: string(respBody)}
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// --- Claude API types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
