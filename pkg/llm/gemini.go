package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/postpilot/postpilot/pkg/config"
)

// GeminiProvider implements Provider for the Google Gemini REST API.
// Gemini uses its own wire shape: "assistant" becomes "model", message text
// nests under a parts array, and there is no system role, so system turns
// are folded into the first user turn.
type GeminiProvider struct {
	baseURL    string
	apiKey     string
	modelName  string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini client.
func NewGeminiProvider(cfg config.ProviderConfig) *GeminiProvider {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	return &GeminiProvider{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		modelName:  model,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Name returns the registry key.
func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

// Request implements Provider.
func (p *GeminiProvider) Request(ctx context.Context, messages []Message, opts RequestOptions) (string, error) {
	opts = opts.withDefaults()

	reqBody := map[string]interface{}{
		"contents": translateMessages(messages),
		"generationConfig": map[string]interface{}{
			"temperature":     opts.Temperature,
			"maxOutputTokens": opts.MaxTokens,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, p.modelName, url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errorBody))
	}

	var genResp struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}
	text := genResp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("empty candidate text in response")
	}

	return text, nil
}

// translateMessages converts the uniform message list to Gemini contents.
func translateMessages(messages []Message) []geminiContent {
	var contents []geminiContent
	var systemText string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// Folded into the next user turn below.
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += msg.Content
		case RoleAssistant:
			contents = append(contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		default:
			text := msg.Content
			if systemText != "" {
				text = systemText + "\n\n" + text
				systemText = ""
			}
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: text}},
			})
		}
	}

	// System turn with no following user turn still has to be delivered.
	if systemText != "" {
		contents = append(contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: systemText}},
		})
	}

	return contents
}
