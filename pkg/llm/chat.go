package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// requestTimeout is the fixed timeout applied to every provider HTTP call.
const requestTimeout = 120 * time.Second

// chatClient talks to OpenAI-compatible chat completion APIs.
// Works for OpenAI itself and for Grok, which ships the same wire shape.
type chatClient struct {
	baseURL    string
	apiKey     string
	modelName  string
	httpClient *http.Client
}

// chatClientConfig configures the OpenAI-compatible HTTP client.
type chatClientConfig struct {
	BaseURL   string
	APIKey    string
	ModelName string
	Timeout   time.Duration // Optional, defaults to requestTimeout
}

func newChatClient(cfg chatClientConfig) *chatClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = requestTimeout
	}

	return &chatClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		modelName:  cfg.ModelName,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// request performs one chat completion call and extracts the message text.
func (c *chatClient) request(ctx context.Context, messages []Message, opts RequestOptions) (string, error) {
	opts = opts.withDefaults()

	reqBody := map[string]interface{}{
		"model":       c.modelName,
		"messages":    messages,
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
		"stream":      false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	if chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty message content in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}
