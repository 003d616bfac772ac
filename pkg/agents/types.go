// Package agents implements the four prompt agents behind PostPilot's
// content pipeline: topic generation, content generation, content
// improvement, and cover-image prompt generation. Each agent builds a
// provider-neutral prompt, performs one provider call, and repairs/parses
// the response into a typed result. Agents degrade to well-typed fallback
// values instead of returning errors for malformed model output.
package agents

// Post types an agent can draft.
const (
	PostTypeSimple  = "simple"
	PostTypeArticle = "article"
)

// Topic is one structured content idea suggested by the topic agent.
type Topic struct {
	Title    string `json:"title"`
	Hook     string `json:"hook"`
	PostType string `json:"post_type"`
	Summary  string `json:"summary"`
	CTA      string `json:"cta"`
}

// TopicBatch is the topic agent's result.
type TopicBatch struct {
	Topics []Topic `json:"topics"`
}

// GeneratedContent is the content agent's result.
type GeneratedContent struct {
	Title            string `json:"title"`
	Content          string `json:"content"`
	PromotionalPost  string `json:"promotional_post,omitempty"`
	CoverImagePrompt string `json:"cover_image_prompt,omitempty"`
	SEOTitle         string `json:"seo_title"`
	SEODescription   string `json:"seo_description"`
}

// Improvement is the improvement agent's result. Fallback indicates the
// improved content could not be produced and ImprovedContent carries the
// caller's original text unchanged.
type Improvement struct {
	ImprovedContent    string `json:"improved_content"`
	ImprovementSummary string `json:"improvement_summary"`
	Fallback           bool   `json:"-"`
}

// ImagePrompt is the image-prompt agent's result.
type ImagePrompt struct {
	CoverImagePrompt string `json:"cover_image_prompt"`
	StyleNotes       string `json:"style_notes"`
	VisualElements   string `json:"visual_elements"`
}

// truncate shortens s to at most max bytes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
