package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/postpilot/postpilot/pkg/jsonrepair"
	"github.com/postpilot/postpilot/pkg/llm"
)

const simpleTemplatePrompt = `Create a simple LinkedIn post following this template:

1. Catchy opening hook (1-2 lines)
2. Topic development (2-3 short paragraphs)
3. Call to action or question for engagement
4. Relevant hashtags (3-5 hashtags)

The post must have a maximum of 1300 characters and be engaging.
Tone: conversational, accessible, and direct.`

const articleTemplatePrompt = `Create a comprehensive LinkedIn article following this template:

**ARTICLE STRUCTURE:**
1. Catchy and professional title
2. Introduction presenting the problem/opportunity (200-250 words)
3. 3-4 well-developed main points with examples (800-1000 words total)
4. Conclusion with practical insights and actionable takeaways (200-250 words)
5. Call to action for engagement

**ALSO CREATE A PROMOTIONAL POST:**
Additionally, create a short promotional LinkedIn post (max 1300 characters) to promote this article.
The promotional post should:
- Hook readers with an intriguing question or statement
- Briefly tease the main value/insights of the article
- Include a clear call-to-action to read the full article
- End with relevant hashtags (6-8)

**COVER IMAGE PROMPT:**
Create a detailed description for an AI image generator to create a professional cover image for this article.

CRITICAL RULE - NO TEXT IN IMAGE:
- NEVER include text, titles, letters, or words in the image
- DO NOT show the article title or any written content
- Focus purely on visual elements, symbols, and abstract representations

The description should be:
- Visual-only elements that represent the technical topic
- Abstract or realistic approach (but never textual)
- Professional modern aesthetic suitable for LinkedIn
- Specific colors, style, and composition details
- Clean, minimalist design without any text
- 120-200 words describing only visual elements

The article should be between 1500-2000 words, informative and professional.
Tone: conversational, accessible, and direct.`

// ContentAgent drafts a post or article from a topic.
type ContentAgent struct {
	provider llm.Provider
	profile  Profile
}

// NewContentAgent creates a content agent bound to the given provider.
func NewContentAgent(provider llm.Provider, profile Profile) *ContentAgent {
	return &ContentAgent{provider: provider, profile: profile}
}

// Generate drafts content for the topic using the post-type template.
// topicData, when present, carries the structured topic suggestion used as
// drafting guidance. Provider failures are returned so the caller can
// retry; parse failures degrade to a generic result derived from the topic
// string so callers always receive usable fields.
func (a *ContentAgent) Generate(ctx context.Context, topic, postType, themeTitle string, topicData *Topic) (GeneratedContent, error) {
	prompt := a.buildPrompt(topic, postType, themeTitle, topicData)

	systemPrompt := fmt.Sprintf("You are an expert in technical content creation for LinkedIn. Always respond only with valid JSON. You are creating a %s for developers. All prompts and generated content must be in English.", postType)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	text, err := a.provider.Request(ctx, messages, llm.RequestOptions{
		Temperature: a.profile.Temperature,
		MaxTokens:   a.profile.MaxTokens,
	})
	if err != nil {
		return GeneratedContent{}, fmt.Errorf("content request failed: %w", err)
	}

	return a.parse(text, topic), nil
}

func (a *ContentAgent) buildPrompt(topic, postType, themeTitle string, topicData *Topic) string {
	templatePrompt := simpleTemplatePrompt
	if postType == PostTypeArticle {
		templatePrompt = articleTemplatePrompt
	}

	var topicContext string
	if topicData != nil {
		topicContext = fmt.Sprintf(`**Structured topic data:**
- Suggested hook: %q
- Suggested post type: %s
- Summary: %s
- Suggested CTA: %q

Use this information as a basis, but adapt as needed for the requested content type.

`, topicData.Hook, topicData.PostType, topicData.Summary, topicData.CTA)
	}

	return fmt.Sprintf(`**General theme:** %q
**Specific topic:** %q
**Content type:** %s

%s%s

**Target Audience:**
- Junior developers
- Senior engineers
- General tech professionals

Also create:
- SEO optimized title (max. 60 characters)
- SEO description (max. 160 characters)

**Focus on:**
- Real problems developers face
- Practical and applicable solutions
- Concrete examples when possible

Return in JSON format:
{
    "title": "Post/article title",
    "content": "Full content (article text for articles, post text for simple posts)",
    "promotional_post": "Short promotional post text (only for articles, omit for simple posts)",
    "cover_image_prompt": "Detailed description for AI image generation (only for articles, omit for simple posts)",
    "seo_title": "SEO title",
    "seo_description": "SEO description"
}

All prompts and generated content must be in English.`, themeTitle, topic, postType, topicContext, templatePrompt)
}

func (a *ContentAgent) parse(text, topic string) GeneratedContent {
	cleaned := jsonrepair.Sanitize(text)

	if content, ok := decodeGeneratedContent(cleaned); ok {
		return content
	}

	if obj, ok := jsonrepair.ExtractObject(cleaned); ok {
		if content, ok := decodeGeneratedContent(obj); ok {
			return content
		}
	}

	log.Printf("content agent: unparseable response, returning fallback content")
	return fallbackContent(topic)
}

func decodeGeneratedContent(jsonStr string) (GeneratedContent, bool) {
	if err := validateSchema(generatedContentSchema, jsonStr); err != nil {
		return GeneratedContent{}, false
	}

	var content GeneratedContent
	if err := json.Unmarshal([]byte(jsonStr), &content); err != nil {
		return GeneratedContent{}, false
	}

	// SEO fields are advisory output; enforce the hard limits here rather
	// than trusting the model.
	content.SEOTitle = truncate(content.SEOTitle, 60)
	content.SEODescription = truncate(content.SEODescription, 160)
	if content.SEOTitle == "" {
		content.SEOTitle = truncate(content.Title, 60)
	}

	return content, true
}

// fallbackContent derives a generic placeholder result from the topic.
func fallbackContent(topic string) GeneratedContent {
	return GeneratedContent{
		Title:          fmt.Sprintf("Post about %s", topic),
		Content:        fmt.Sprintf("Content about %s will be generated soon.", topic),
		SEOTitle:       truncate(topic, 60),
		SEODescription: truncate(fmt.Sprintf("Learn more about %s", topic), 160),
	}
}
