package agents_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/postpilot/postpilot/pkg/agents"
	"github.com/postpilot/postpilot/pkg/agents/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topicsResponse = `{
	"topics": [
		{"title": "Pod scheduling basics", "hook": "Ever wondered where your pods land?", "post_type": "concept", "summary": "How the scheduler picks nodes.", "cta": "Share your scheduling war stories!"},
		{"title": "Resource limits done right", "hook": "OOMKilled again?", "post_type": "tip", "summary": "Requests and limits that work.", "cta": "What limits do you set?"},
		{"title": "Probes that lie", "hook": "Is your app really healthy?", "post_type": "lesson", "summary": "Liveness vs readiness in practice.", "cta": "Tell us your probe horror story."}
	]
}`

func newTopicAgent(provider *testutil.MockProvider) *agents.TopicAgent {
	return agents.NewTopicAgent(provider, agents.DefaultProfiles().For("topics"))
}

func TestTopicAgentGenerate(t *testing.T) {
	provider := testutil.NewMockProvider().AddResponse(topicsResponse)
	agent := newTopicAgent(provider)

	batch, err := agent.Generate(context.Background(), "Kubernetes", nil)

	require.NoError(t, err)
	require.Len(t, batch.Topics, 3)
	for _, topic := range batch.Topics {
		assert.NotEmpty(t, topic.Title)
		assert.NotEmpty(t, topic.Hook)
		assert.NotEmpty(t, topic.PostType)
		assert.NotEmpty(t, topic.Summary)
		assert.NotEmpty(t, topic.CTA)
	}
}

func TestTopicAgentAvoidList(t *testing.T) {
	provider := testutil.NewMockProvider().AddResponse(topicsResponse)
	agent := newTopicAgent(provider)

	existing := []agents.Topic{
		{Title: "Ingress deep dive"},
		{Title: "StatefulSets explained"},
	}

	_, err := agent.Generate(context.Background(), "Kubernetes", existing)
	require.NoError(t, err)

	call := provider.LastCall()
	require.NotNil(t, call)
	require.Len(t, call.Messages, 2)

	userPrompt := call.Messages[1].Content
	assert.Contains(t, userPrompt, "- Ingress deep dive")
	assert.Contains(t, userPrompt, "- StatefulSets explained")
	assert.Contains(t, userPrompt, "Avoid Duplication")
}

func TestTopicAgentSalvagesEmbeddedObject(t *testing.T) {
	noisy := "Sure! Here are your topics:\n" + topicsResponse + "\nHope that helps."
	provider := testutil.NewMockProvider().AddResponse(noisy)
	agent := newTopicAgent(provider)

	batch, err := agent.Generate(context.Background(), "Kubernetes", nil)

	require.NoError(t, err)
	assert.Len(t, batch.Topics, 3)
}

func TestTopicAgentProviderError(t *testing.T) {
	provider := testutil.NewMockProvider().AddError(errors.New("connection refused"))
	agent := newTopicAgent(provider)

	_, err := agent.Generate(context.Background(), "Kubernetes", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestTopicAgentUnparseableResponse(t *testing.T) {
	provider := testutil.NewMockProvider().AddResponse("I cannot answer that.")
	agent := newTopicAgent(provider)

	batch, err := agent.Generate(context.Background(), "Kubernetes", nil)

	require.NoError(t, err)
	require.NotNil(t, batch.Topics)
	assert.Empty(t, batch.Topics)
}

func TestTopicAgentFencedResponse(t *testing.T) {
	fenced := "```json\n" + topicsResponse + "\n```"
	provider := testutil.NewMockProvider().AddResponse(fenced)
	agent := newTopicAgent(provider)

	batch, err := agent.Generate(context.Background(), "Kubernetes", nil)

	require.NoError(t, err)
	assert.Len(t, batch.Topics, 3)
}

func TestTopicAgentSystemPersona(t *testing.T) {
	provider := testutil.NewMockProvider().AddResponse(topicsResponse)
	agent := newTopicAgent(provider)

	_, err := agent.Generate(context.Background(), "Kubernetes", nil)
	require.NoError(t, err)

	call := provider.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "system", call.Messages[0].Role)
	assert.True(t, strings.Contains(call.Messages[0].Content, "LinkedIn"))
	assert.Equal(t, "user", call.Messages[1].Role)
}
