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
	defaultOpenAIModel = "gpt-3.5-turbo"
	openAIBaseURL      = "https://api.openai.com/v1"
)

// OpenAI calls the chat completions endpoint.
type OpenAI struct {
	apiKey string
	model  string
	url    string
	client *http.Client
}

// NewOpenAI creates a chat completions client.
func NewOpenAI(apiKey, modelName, baseURL string, client *http.Client) *OpenAI {
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAI{
		apiKey: apiKey,
		model:  modelName,
		url:    strings.TrimRight(baseURL, "/") + "/chat/completions",
		client: client,
	}
}

// Complete returns the first choice's message content.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	bodyBytes, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr chatError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", &APIError{Status: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return "", &APIError{Status: resp.StatusCode, Message: string(respBody)}
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
