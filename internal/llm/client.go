// Package llm is a minimal OpenAI-compatible chat completions client used for
// summarizing excluded history and suggesting follow-up questions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// Config configures the chat client.
type Config struct {
	// APIKey is the bearer token. Falls back to OPENAI_API_KEY when empty.
	APIKey string

	// BaseURL overrides the API endpoint. Defaults to https://api.openai.com/v1.
	BaseURL string

	// Model is the chat model. Defaults to gpt-4o-mini.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration
}

// Message is one chat turn on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
// It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a Client, filling defaults.
func New(cfg Config) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends msgs and returns the trimmed content of the first choice.
func (c *Client) Complete(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	data, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("llm: create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response body: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("llm: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("llm: rate limit (HTTP 429): %s", out.Error.Message)
		}
		return "", fmt.Errorf("llm: API error (%s): %s", out.Error.Type, out.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm: unexpected HTTP status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: no choices returned")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
