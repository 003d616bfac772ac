package tasks

import (
	"context"
	"fmt"

	"github.com/postpilot/postpilot/pkg/agents"
	"github.com/postpilot/postpilot/pkg/storage"
)

// generateTopics asks the topic agent for new topics and merges them onto
// the theme's existing list. Merging never replaces: repeated runs grow the
// list. An empty batch is a soft failure recorded on the theme without a
// retry.
func (o *Orchestrator) generateTopics(ctx context.Context, args Args) (Result, error) {
	theme, err := o.store.GetTheme(ctx, args.ThemeID)
	if err != nil {
		return Result{}, err
	}

	batch, err := o.agents.Topics.Generate(ctx, theme.Title, theme.SuggestedTopics)
	if err != nil {
		return Result{}, err
	}

	if len(batch.Topics) == 0 {
		theme.IsProcessing = false
		theme.ProcessingStatus = storage.ProcessingFailed
		if err := o.store.UpdateTheme(ctx, theme); err != nil {
			return Result{}, err
		}
		return Result{
			Status:  StatusError,
			Message: "No topics were generated",
			ThemeID: &theme.ID,
		}, nil
	}

	now := o.now()
	theme.SuggestedTopics = append(theme.SuggestedTopics, batch.Topics...)
	theme.TopicsGeneratedAt = &now
	theme.IsProcessing = false
	theme.ProcessingStatus = storage.ProcessingCompleted
	if err := o.store.UpdateTheme(ctx, theme); err != nil {
		return Result{}, err
	}

	return Result{
		Status:      StatusSuccess,
		Message:     fmt.Sprintf("Generated %d new topics", len(batch.Topics)),
		ThemeID:     &theme.ID,
		TopicsCount: len(batch.Topics),
	}, nil
}

// generatePost drafts a new post for a (theme, post type, topic) triple.
// If a post for the triple already exists the task short-circuits with a
// warning referencing it, which makes duplicate submissions idempotent.
func (o *Orchestrator) generatePost(ctx context.Context, args Args) (Result, error) {
	theme, err := o.store.GetTheme(ctx, args.ThemeID)
	if err != nil {
		return Result{}, err
	}

	if existing, err := o.store.FindPost(ctx, theme.ID, args.PostType, args.Topic); err == nil {
		theme.IsProcessing = false
		theme.ProcessingStatus = storage.ProcessingCompleted
		if err := o.store.UpdateTheme(ctx, theme); err != nil {
			return Result{}, err
		}
		return Result{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Post already exists for topic %q", args.Topic),
			ThemeID: &theme.ID,
			PostID:  &existing.ID,
		}, nil
	}

	// Pass the structured suggestion along when the topic came from a
	// generated batch.
	var topicData *agents.Topic
	for i := range theme.SuggestedTopics {
		if theme.SuggestedTopics[i].Title == args.Topic {
			topicData = &theme.SuggestedTopics[i]
			break
		}
	}

	content, err := o.agents.Content.Generate(ctx, args.Topic, args.PostType, theme.Title, topicData)
	if err != nil {
		return Result{}, err
	}

	now := o.now()
	post := &storage.Post{
		ThemeID:          theme.ID,
		PostType:         args.PostType,
		Title:            content.Title,
		Content:          content.Content,
		Topic:            args.Topic,
		SEOTitle:         content.SEOTitle,
		SEODescription:   content.SEODescription,
		Status:           storage.PostGenerated,
		ProcessingStatus: storage.ProcessingCompleted,
		ModelUsed:        o.opts.Model,
		GeneratedAt:      &now,
	}
	if args.PostType == agents.PostTypeArticle {
		post.PromotionalPost = content.PromotionalPost
		post.CoverImagePrompt = content.CoverImagePrompt
	}
	post.AppendLog("Content generated", now)

	if err := o.store.CreatePost(ctx, post); err != nil {
		return Result{}, err
	}

	theme.IsProcessing = false
	theme.ProcessingStatus = storage.ProcessingCompleted
	if err := o.store.UpdateTheme(ctx, theme); err != nil {
		return Result{}, err
	}

	return Result{
		Status:  StatusSuccess,
		Message: "Post generated successfully",
		ThemeID: &theme.ID,
		PostID:  &post.ID,
	}, nil
}

// improvePost rewrites the post content through the improvement agent. An
// unchanged result means the agent could not improve the content (or fell
// back after an error); the post is marked failed and the agent's summary
// becomes the failure reason. The original content is always preserved in
// that case.
func (o *Orchestrator) improvePost(ctx context.Context, args Args) (Result, error) {
	post, err := o.store.GetPost(ctx, args.PostID)
	if err != nil {
		return Result{}, err
	}

	improvement := o.agents.Improve.Improve(ctx, post.Content, post.Title, post.PostType, post.Topic)

	if improvement.ImprovedContent == post.Content {
		post.IsProcessing = false
		post.ProcessingStatus = storage.ProcessingFailed
		if err := o.store.UpdatePost(ctx, post); err != nil {
			return Result{}, err
		}
		return Result{
			Status:  StatusError,
			Message: improvement.ImprovementSummary,
			PostID:  &post.ID,
		}, nil
	}

	now := o.now()
	post.Content = improvement.ImprovedContent
	post.AppendLog("Content improved", now)
	post.IsProcessing = false
	post.ProcessingStatus = storage.ProcessingCompleted
	if err := o.store.UpdatePost(ctx, post); err != nil {
		return Result{}, err
	}

	return Result{
		Status:  StatusSuccess,
		Message: improvement.ImprovementSummary,
		PostID:  &post.ID,
	}, nil
}

// regenerateImagePrompt produces a new cover-image prompt for an article.
// The first run is recorded as a "generation", later runs as a
// "regeneration".
func (o *Orchestrator) regenerateImagePrompt(ctx context.Context, args Args) (Result, error) {
	post, err := o.store.GetPost(ctx, args.PostID)
	if err != nil {
		return Result{}, err
	}

	// Re-checked here because the record can change between validation and
	// execution.
	if post.PostType != agents.PostTypeArticle {
		post.IsProcessing = false
		post.ProcessingStatus = storage.ProcessingFailed
		if err := o.store.UpdatePost(ctx, post); err != nil {
			return Result{}, err
		}
		return Result{
			Status:  StatusError,
			Message: "Image prompts are only available for articles",
			PostID:  &post.ID,
		}, nil
	}

	action := "regeneration"
	if post.CoverImagePrompt == "" {
		action = "generation"
	}

	themeTitle := ""
	if theme, err := o.store.GetTheme(ctx, post.ThemeID); err == nil {
		themeTitle = theme.Title
	}

	prompt, err := o.agents.Image.Generate(ctx, post.Title, post.Topic, themeTitle, post.CoverImagePrompt)
	if err != nil {
		return Result{}, err
	}

	now := o.now()
	post.CoverImagePrompt = prompt.CoverImagePrompt
	post.AppendLog(fmt.Sprintf("Image prompt %s", action), now)
	post.IsProcessing = false
	post.ProcessingStatus = storage.ProcessingCompleted
	if err := o.store.UpdatePost(ctx, post); err != nil {
		return Result{}, err
	}

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Image prompt %s completed", action),
		PostID:  &post.ID,
		Action:  action,
	}, nil
}
