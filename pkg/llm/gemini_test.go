package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/postpilot/postpilot/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateMessages(t *testing.T) {
	contents := translateMessages([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "task"},
		{Role: RoleAssistant, Content: "draft"},
	})

	require.Len(t, contents, 2)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "persona\n\ntask", contents[0].Parts[0].Text)

	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "draft", contents[1].Parts[0].Text)
}

func TestTranslateMessagesSystemOnly(t *testing.T) {
	contents := translateMessages([]Message{{Role: RoleSystem, Content: "persona"}})

	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "persona", contents[0].Parts[0].Text)
}

func TestGeminiRequest(t *testing.T) {
	var gotPath string
	var gotKey string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "gemini says hi"}},
				}},
			},
		})
	}))
	defer server.Close()

	p := NewGeminiProvider(config.ProviderConfig{APIKey: "g-key", BaseURL: server.URL})

	text, err := p.Request(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, RequestOptions{MaxTokens: 100})

	require.NoError(t, err)
	assert.Equal(t, "gemini says hi", text)
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "g-key", gotKey)

	genCfg, ok := gotBody["generationConfig"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(100), genCfg["maxOutputTokens"])
}

func TestGeminiEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	}))
	defer server.Close()

	p := NewGeminiProvider(config.ProviderConfig{BaseURL: server.URL})

	_, err := p.Request(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, RequestOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}
