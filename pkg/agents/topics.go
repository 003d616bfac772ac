package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/postpilot/postpilot/pkg/jsonrepair"
	"github.com/postpilot/postpilot/pkg/llm"
)

const topicSystemPrompt = "You are an expert in technical content creation for LinkedIn, focused on developers. Always respond only with valid JSON."

// TopicAgent proposes new content topics for a theme.
type TopicAgent struct {
	provider llm.Provider
	profile  Profile
}

// NewTopicAgent creates a topic agent bound to the given provider.
func NewTopicAgent(provider llm.Provider, profile Profile) *TopicAgent {
	return &TopicAgent{provider: provider, profile: profile}
}

// Generate asks for 3-5 new topics for the theme. Existing topics are
// embedded in the prompt as an avoid-list so repeated runs explore new
// angles. Provider failures are returned so the caller can retry; parse
// failures degrade to an empty batch for the caller to treat as a soft
// failure.
func (a *TopicAgent) Generate(ctx context.Context, themeTitle string, existing []Topic) (TopicBatch, error) {
	prompt := a.buildPrompt(themeTitle, existing)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: topicSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	text, err := a.provider.Request(ctx, messages, llm.RequestOptions{
		Temperature: a.profile.Temperature,
		MaxTokens:   a.profile.MaxTokens,
	})
	if err != nil {
		return TopicBatch{}, fmt.Errorf("topic request failed: %w", err)
	}

	return a.parse(text), nil
}

func (a *TopicAgent) buildPrompt(themeTitle string, existing []Topic) string {
	var existingContext string
	if len(existing) > 0 {
		var titles []string
		for _, topic := range existing {
			if topic.Title != "" {
				titles = append(titles, "- "+topic.Title)
			}
		}
		existingContext = fmt.Sprintf(`**IMPORTANT - Existing Topics to Avoid Duplication:**
The following topics have already been suggested for this theme:
%s

Please generate NEW topics that complement these existing ones, avoiding repetition and exploring different angles of the theme.

`, strings.Join(titles, "\n"))
	}

	additional := ""
	if len(existing) > 0 {
		additional = "additional "
	}

	return fmt.Sprintf(`**Theme/Stack:** %q

%s**Target Audience:**
- Junior developers
- Senior engineers
- General tech professionals

**Task:**
Generate 3 to 5 %sspecific topics for weekly LinkedIn posts. Each topic should include:
1. **Title/Topic** - Clear and specific title
2. **Suggested Hook** - Catchy question or statement to start the post
3. **Post Type** - Type of post (tip, lesson, comparison, concept explanation, best practice, etc.)
4. **One-sentence Summary** - One sentence summary of the main idea
5. **Suggested CTA** - Engaging call to action for the end of the post

**Desired Tone:**
- Conversational, accessible, and direct
- Focused on real problems developers face
- Practical and applicable

Return in JSON format:
{
    "topics": [
        {
            "title": "Specific topic title",
            "hook": "Catchy question or statement",
            "post_type": "tip/lesson/comparison/concept/best_practice",
            "summary": "One sentence summary of the topic",
            "cta": "Engaging call to action"
        }
    ]
}`, themeTitle, existingContext, additional)
}

// parse repairs and decodes the model response, salvaging an embedded
// object when the surrounding text is noise.
func (a *TopicAgent) parse(text string) TopicBatch {
	cleaned := jsonrepair.Sanitize(text)

	if batch, ok := decodeTopicBatch(cleaned); ok {
		return batch
	}

	if obj, ok := jsonrepair.ExtractObject(cleaned); ok {
		if batch, ok := decodeTopicBatch(obj); ok {
			return batch
		}
	}

	log.Printf("topic agent: unparseable response, returning empty batch")
	return TopicBatch{Topics: []Topic{}}
}

func decodeTopicBatch(jsonStr string) (TopicBatch, bool) {
	if err := validateSchema(topicBatchSchema, jsonStr); err != nil {
		return TopicBatch{}, false
	}

	var batch TopicBatch
	if err := json.Unmarshal([]byte(jsonStr), &batch); err != nil {
		return TopicBatch{}, false
	}
	if batch.Topics == nil {
		batch.Topics = []Topic{}
	}
	return batch, true
}
