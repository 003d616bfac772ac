package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/postpilot/postpilot/pkg/jsonrepair"
	"github.com/postpilot/postpilot/pkg/llm"
)

const imageSystemPrompt = "You are an expert visual designer and AI prompt engineer. NEVER include text in image descriptions. Always respond with valid JSON. Create detailed, text-free professional image generation prompts."

// ImagePromptAgent produces cover-image generation prompts for articles.
type ImagePromptAgent struct {
	provider llm.Provider
	profile  Profile
}

// NewImagePromptAgent creates an image-prompt agent bound to the given
// provider.
func NewImagePromptAgent(provider llm.Provider, profile Profile) *ImagePromptAgent {
	return &ImagePromptAgent{provider: provider, profile: profile}
}

// Generate produces a text-free cover-image prompt. currentPrompt, when
// non-empty, signals a regeneration and is included so the model proposes a
// different take. Provider failures are returned so the caller can retry;
// parse failures degrade to a generic abstract-illustration prompt for the
// topic.
func (a *ImagePromptAgent) Generate(ctx context.Context, postTitle, topic, themeTitle, currentPrompt string) (ImagePrompt, error) {
	prompt := a.buildPrompt(postTitle, topic, themeTitle, currentPrompt)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: imageSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	text, err := a.provider.Request(ctx, messages, llm.RequestOptions{
		Temperature: a.profile.Temperature,
		MaxTokens:   a.profile.MaxTokens,
	})
	if err != nil {
		return ImagePrompt{}, fmt.Errorf("image prompt request failed: %w", err)
	}

	return a.parse(text, topic), nil
}

func (a *ImagePromptAgent) buildPrompt(postTitle, topic, themeTitle, currentPrompt string) string {
	currentContext := "This is the first generation."
	if currentPrompt != "" {
		currentContext = fmt.Sprintf("Current prompt: %q", currentPrompt)
	}

	return fmt.Sprintf(`**TASK:** Create a detailed, professional prompt for AI image generation to create a cover image for a LinkedIn article.

**ARTICLE DETAILS:**
- Title: %q
- Topic: %q
- Theme: %q

**CURRENT PROMPT (if regenerating):**
%s

**CRITICAL RULE - NO TEXT IN IMAGE:**
- NEVER include text, titles, letters, or words in the image
- DO NOT show the article title or any written content
- AVOID any textual elements or typography
- Focus purely on visual elements, symbols, and abstract representations
- Maximum 1-2 single keywords if absolutely essential (but prefer none)

**VISUAL APPROACH:**
1. **Abstract/Conceptual**: Use shapes, symbols, metaphors to represent the topic
2. **Realistic Elements**: Objects, tools, or environments related to the concept
3. **Symbolic Representation**: Icons and symbols that convey the meaning
4. **Color Psychology**: Use colors that evoke the right emotions for the topic
5. **Minimalist Design**: Clean, uncluttered composition

**STYLE GUIDELINES:**
- Professional, modern aesthetic suitable for LinkedIn
- High-quality digital art or professional photography style
- Balanced composition with focal point
- Corporate color palette (blues, grays, whites, accent colors)
- Clean backgrounds (gradients, textures, or solid colors)
- Subtle lighting and shadows for depth
- 16:9 aspect ratio (landscape orientation)

**VISUAL ELEMENTS TO CONSIDER:**
- For Technology: Geometric shapes, circuits, glowing elements, abstract networks
- For Business: Professional objects, charts (visual only), ascending elements
- For Development: Code-inspired patterns, building blocks, construction metaphors
- For Leadership: Mountain peaks, pathways, guiding lights, upward arrows
- For Innovation: Light bulbs, gears, flowing energy, dynamic compositions

**OUTPUT:** Create a detailed description (120-200 words) focusing purely on visual elements.

Return in JSON format:
{
    "cover_image_prompt": "Detailed visual-only description for AI image generation",
    "style_notes": "Brief explanation of the visual approach chosen",
    "visual_elements": "Key visual elements that represent the concept"
}

Remember: NO TEXT, NO TITLES, NO WORDS in the image description!`, postTitle, topic, themeTitle, currentContext)
}

func (a *ImagePromptAgent) parse(text, topic string) ImagePrompt {
	cleaned := jsonrepair.Sanitize(text)

	if prompt, ok := decodeImagePrompt(cleaned); ok {
		return prompt
	}

	if obj, ok := jsonrepair.ExtractObject(cleaned); ok {
		if prompt, ok := decodeImagePrompt(obj); ok {
			return prompt
		}
	}

	log.Printf("image prompt agent: unparseable response, returning fallback prompt")
	return fallbackImagePrompt(topic, "Could not generate new prompt at this time - using fallback visual-only prompt.")
}

func decodeImagePrompt(jsonStr string) (ImagePrompt, bool) {
	if err := validateSchema(imagePromptSchema, jsonStr); err != nil {
		return ImagePrompt{}, false
	}

	var prompt ImagePrompt
	if err := json.Unmarshal([]byte(jsonStr), &prompt); err != nil {
		return ImagePrompt{}, false
	}
	if prompt.CoverImagePrompt == "" {
		return ImagePrompt{}, false
	}
	return prompt, true
}

func fallbackImagePrompt(topic, styleNotes string) ImagePrompt {
	return ImagePrompt{
		CoverImagePrompt: fmt.Sprintf("Abstract professional illustration representing %s concept through visual elements only, modern minimalist style, corporate color palette, no text, clean composition, high quality digital art", topic),
		StyleNotes:       styleNotes,
		VisualElements:   "Abstract shapes and symbols related to the topic",
	}
}
