package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot/pkg/agents"
	"github.com/postpilot/postpilot/pkg/storage"
)

// Stub agents for driving the task bodies directly.

type stubTopics struct {
	batch agents.TopicBatch
	err   error
	calls int
}

func (s *stubTopics) Generate(ctx context.Context, themeTitle string, existing []agents.Topic) (agents.TopicBatch, error) {
	s.calls++
	return s.batch, s.err
}

type stubContent struct {
	content agents.GeneratedContent
	err     error
}

func (s *stubContent) Generate(ctx context.Context, topic, postType, themeTitle string, topicData *agents.Topic) (agents.GeneratedContent, error) {
	return s.content, s.err
}

type stubImprove struct {
	improvement agents.Improvement
}

func (s *stubImprove) Improve(ctx context.Context, currentContent, postTitle, postType, topic string) agents.Improvement {
	return s.improvement
}

type stubImage struct {
	prompt agents.ImagePrompt
	err    error
}

func (s *stubImage) Generate(ctx context.Context, postTitle, topic, themeTitle, currentPrompt string) (agents.ImagePrompt, error) {
	return s.prompt, s.err
}

type testHarness struct {
	store  storage.Store
	orch   *Orchestrator
	sleeps []time.Duration
}

func newHarness(t *testing.T, ag Agents) *testHarness {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	h := &testHarness{store: store}
	h.orch = NewOrchestrator(store, ag, Options{Workers: 1, MaxRetries: 3, Backoff: 60 * time.Second, Model: "gpt-4"})
	h.orch.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h
}

// drain runs the single queued task synchronously.
func (h *testHarness) drain(t *testing.T) {
	t.Helper()
	select {
	case id := <-h.orch.queue:
		h.orch.run(context.Background(), id)
	default:
		t.Fatal("no task queued")
	}
}

func (h *testHarness) createTheme(t *testing.T, title string, topics []agents.Topic) *storage.Theme {
	t.Helper()
	theme := &storage.Theme{ID: uuid.New(), Title: title, Active: true, SuggestedTopics: topics}
	require.NoError(t, h.store.CreateTheme(context.Background(), theme))
	return theme
}

func (h *testHarness) createPost(t *testing.T, post *storage.Post) *storage.Post {
	t.Helper()
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	require.NoError(t, h.store.CreatePost(context.Background(), post))
	return post
}

func TestEnqueueMarksProcessingSynchronously(t *testing.T) {
	h := newHarness(t, Agents{Topics: &stubTopics{}})
	theme := h.createTheme(t, "Kubernetes", nil)

	task, warning, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)
	require.Nil(t, warning)
	require.NotNil(t, task)
	assert.Equal(t, StatePending, task.State)

	// The claim happens before Enqueue returns, not when a worker starts.
	stored, err := h.store.GetTheme(context.Background(), theme.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsProcessing)
	assert.Equal(t, storage.ProcessingActive, stored.ProcessingStatus)
}

func TestEnqueueConflictReturnsWarning(t *testing.T) {
	h := newHarness(t, Agents{Topics: &stubTopics{}})
	theme := h.createTheme(t, "Kubernetes", nil)

	_, _, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)

	task, warning, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)
	assert.Nil(t, task)
	require.NotNil(t, warning)
	assert.Equal(t, StatusWarning, warning.Status)
	assert.Contains(t, warning.Message, "already being processed")
}

func TestEnqueueValidatesSynchronously(t *testing.T) {
	h := newHarness(t, Agents{Image: &stubImage{}})
	post := h.createPost(t, &storage.Post{ThemeID: uuid.New(), PostType: agents.PostTypeSimple, Topic: "hooks"})

	_, _, err := h.orch.Enqueue(context.Background(), TypeRegenerateImagePrompt, Args{PostID: post.ID})
	require.ErrorIs(t, err, ErrValidation)

	// Rejected requests never touch the record.
	stored, err := h.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsProcessing)
	assert.Equal(t, storage.ProcessingIdle, stored.ProcessingStatus)

	_, _, err = h.orch.Enqueue(context.Background(), TypeGeneratePost, Args{ThemeID: uuid.New(), PostType: "simple"})
	require.ErrorIs(t, err, ErrValidation)

	_, _, err = h.orch.Enqueue(context.Background(), TypeGeneratePost, Args{ThemeID: uuid.New(), PostType: "video", Topic: "x"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRetryExhaustionWithLinearBackoff(t *testing.T) {
	topics := &stubTopics{err: errors.New("connection refused")}
	h := newHarness(t, Agents{Topics: topics})
	theme := h.createTheme(t, "Kubernetes", nil)

	task, _, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)
	h.drain(t)

	// Initial attempt plus three retries.
	assert.Equal(t, 4, topics.calls)
	assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second, 180 * time.Second}, h.sleeps)

	final := h.orch.Status(task.ID)
	require.NotNil(t, final)
	assert.Equal(t, StateFailure, final.State)
	require.NotNil(t, final.Result)
	assert.Equal(t, StatusError, final.Result.Status)
	assert.Contains(t, final.Error, "connection refused")

	// Best-effort cleanup released the theme as failed.
	stored, err := h.store.GetTheme(context.Background(), theme.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsProcessing)
	assert.Equal(t, storage.ProcessingFailed, stored.ProcessingStatus)
}

func TestNotFoundIsNotRetried(t *testing.T) {
	topics := &stubTopics{}
	h := newHarness(t, Agents{Topics: topics})

	// Simulate a record deleted between enqueue and execution.
	task := &Task{ID: uuid.New().String(), Type: TypeGenerateTopics, State: StatePending, Args: Args{ThemeID: uuid.New()}}
	h.orch.tasks[task.ID] = task
	h.orch.run(context.Background(), task.ID)

	final := h.orch.Status(task.ID)
	require.NotNil(t, final)
	assert.Equal(t, StateFailure, final.State)
	assert.Empty(t, h.sleeps, "missing records must not trigger retries")
	assert.Equal(t, 0, topics.calls)
}

func TestGenerateTopicsMergesOntoExisting(t *testing.T) {
	newTopics := []agents.Topic{
		{Title: "Probes that lie", Hook: "h", PostType: "tip", Summary: "s", CTA: "c"},
		{Title: "Limits done right", Hook: "h", PostType: "tip", Summary: "s", CTA: "c"},
		{Title: "Scheduling basics", Hook: "h", PostType: "tip", Summary: "s", CTA: "c"},
	}
	h := newHarness(t, Agents{Topics: &stubTopics{batch: agents.TopicBatch{Topics: newTopics}}})
	existing := []agents.Topic{{Title: "Ingress deep dive"}, {Title: "StatefulSets explained"}}
	theme := h.createTheme(t, "Kubernetes", existing)

	task, _, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	require.Equal(t, StateSuccess, final.State)
	assert.Equal(t, 3, final.Result.TopicsCount)

	stored, err := h.store.GetTheme(context.Background(), theme.ID)
	require.NoError(t, err)
	assert.Len(t, stored.SuggestedTopics, 5, "new topics merge onto the existing list")
	assert.Equal(t, "Ingress deep dive", stored.SuggestedTopics[0].Title)
	require.NotNil(t, stored.TopicsGeneratedAt)
	assert.False(t, stored.IsProcessing)
	assert.Equal(t, storage.ProcessingCompleted, stored.ProcessingStatus)
}

func TestGenerateTopicsEmptyBatchIsSoftFailure(t *testing.T) {
	h := newHarness(t, Agents{Topics: &stubTopics{batch: agents.TopicBatch{Topics: []agents.Topic{}}}})
	theme := h.createTheme(t, "Kubernetes", nil)

	task, _, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	assert.Equal(t, StateFailure, final.State)
	assert.Equal(t, StatusError, final.Result.Status)
	assert.Empty(t, h.sleeps, "soft failures must not trigger retries")

	stored, err := h.store.GetTheme(context.Background(), theme.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ProcessingFailed, stored.ProcessingStatus)
	assert.False(t, stored.IsProcessing)
	assert.Nil(t, stored.TopicsGeneratedAt)
}

func TestGeneratePostCreatesArticle(t *testing.T) {
	content := agents.GeneratedContent{
		Title:            "The Complete Guide to Pod Scheduling",
		Content:          "Introduction...",
		PromotionalPost:  "Read my new article! #kubernetes",
		CoverImagePrompt: "Abstract glowing nodes",
		SEOTitle:         "Pod Scheduling Guide",
		SEODescription:   "Everything about scheduling.",
	}
	h := newHarness(t, Agents{Content: &stubContent{content: content}})
	theme := h.createTheme(t, "Kubernetes", []agents.Topic{{Title: "Pod scheduling basics", Hook: "hook"}})

	task, _, err := h.orch.Enqueue(context.Background(), TypeGeneratePost, Args{
		ThemeID:  theme.ID,
		PostType: agents.PostTypeArticle,
		Topic:    "Pod scheduling basics",
	})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	require.Equal(t, StateSuccess, final.State)
	require.NotNil(t, final.Result.PostID)

	post, err := h.store.GetPost(context.Background(), *final.Result.PostID)
	require.NoError(t, err)
	assert.Equal(t, storage.PostGenerated, post.Status)
	assert.Equal(t, content.Title, post.Title)
	assert.Equal(t, content.PromotionalPost, post.PromotionalPost)
	assert.Equal(t, content.CoverImagePrompt, post.CoverImagePrompt)
	assert.Equal(t, "gpt-4", post.ModelUsed)
	require.NotNil(t, post.GeneratedAt)
	assert.Contains(t, post.GenerationLog, "Content generated at: ")

	stored, err := h.store.GetTheme(context.Background(), theme.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsProcessing)
}

func TestGeneratePostDuplicateReturnsWarning(t *testing.T) {
	h := newHarness(t, Agents{Content: &stubContent{content: agents.GeneratedContent{Title: "t", Content: "c"}}})
	theme := h.createTheme(t, "Kubernetes", nil)
	existing := h.createPost(t, &storage.Post{ThemeID: theme.ID, PostType: agents.PostTypeSimple, Topic: "Pod scheduling basics"})

	task, _, err := h.orch.Enqueue(context.Background(), TypeGeneratePost, Args{
		ThemeID:  theme.ID,
		PostType: agents.PostTypeSimple,
		Topic:    "Pod scheduling basics",
	})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	require.Equal(t, StateSuccess, final.State)
	assert.Equal(t, StatusWarning, final.Result.Status)
	require.NotNil(t, final.Result.PostID)
	assert.Equal(t, existing.ID, *final.Result.PostID)

	posts, err := h.store.ListPosts(context.Background(), theme.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 1, "duplicate submission must not create a record")
}

func TestImprovePostWritesChangedContent(t *testing.T) {
	h := newHarness(t, Agents{Improve: &stubImprove{improvement: agents.Improvement{
		ImprovedContent:    "Much better content",
		ImprovementSummary: "Tightened the hook and added a CTA.",
	}}})
	post := h.createPost(t, &storage.Post{ThemeID: uuid.New(), PostType: agents.PostTypeSimple, Topic: "hooks", Content: "Original content"})

	task, _, err := h.orch.Enqueue(context.Background(), TypeImprovePost, Args{PostID: post.ID})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	require.Equal(t, StateSuccess, final.State)
	assert.Equal(t, "Tightened the hook and added a CTA.", final.Result.Message)

	stored, err := h.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Much better content", stored.Content)
	assert.Contains(t, stored.GenerationLog, "Content improved at: ")
	assert.Equal(t, storage.ProcessingCompleted, stored.ProcessingStatus)
	assert.False(t, stored.IsProcessing)
}

func TestImprovePostUnchangedContentFails(t *testing.T) {
	h := newHarness(t, Agents{Improve: &stubImprove{improvement: agents.Improvement{
		ImprovedContent:    "Original content",
		ImprovementSummary: "JSON parsing failed - keeping original content.",
		Fallback:           true,
	}}})
	post := h.createPost(t, &storage.Post{ThemeID: uuid.New(), PostType: agents.PostTypeSimple, Topic: "hooks", Content: "Original content"})

	task, _, err := h.orch.Enqueue(context.Background(), TypeImprovePost, Args{PostID: post.ID})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	assert.Equal(t, StateFailure, final.State)
	assert.Equal(t, StatusError, final.Result.Status)
	assert.Contains(t, final.Result.Message, "JSON parsing failed")

	stored, err := h.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original content", stored.Content, "original content must be preserved")
	assert.Equal(t, storage.ProcessingFailed, stored.ProcessingStatus)
	assert.False(t, stored.IsProcessing)
}

func TestRegenerateImagePromptActions(t *testing.T) {
	h := newHarness(t, Agents{Image: &stubImage{prompt: agents.ImagePrompt{CoverImagePrompt: "Abstract nodes, no text"}}})
	post := h.createPost(t, &storage.Post{ThemeID: uuid.New(), PostType: agents.PostTypeArticle, Topic: "scheduling", Title: "Guide"})

	// First run on an empty prompt is a generation.
	task, _, err := h.orch.Enqueue(context.Background(), TypeRegenerateImagePrompt, Args{PostID: post.ID})
	require.NoError(t, err)
	h.drain(t)

	final := h.orch.Status(task.ID)
	require.Equal(t, StateSuccess, final.State)
	assert.Equal(t, "generation", final.Result.Action)

	stored, err := h.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Abstract nodes, no text", stored.CoverImagePrompt)
	assert.Contains(t, stored.GenerationLog, "Image prompt generation at: ")

	// Second run replaces an existing prompt and is a regeneration.
	task, _, err = h.orch.Enqueue(context.Background(), TypeRegenerateImagePrompt, Args{PostID: post.ID})
	require.NoError(t, err)
	h.drain(t)

	final = h.orch.Status(task.ID)
	require.Equal(t, StateSuccess, final.State)
	assert.Equal(t, "regeneration", final.Result.Action)

	stored, err = h.store.GetPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.GenerationLog, "Image prompt regeneration at: ")
}

func TestStatusReturnsSnapshots(t *testing.T) {
	h := newHarness(t, Agents{Topics: &stubTopics{}})

	assert.Nil(t, h.orch.Status("unknown"))

	theme := h.createTheme(t, "Kubernetes", nil)
	task, _, err := h.orch.Enqueue(context.Background(), TypeGenerateTopics, Args{ThemeID: theme.ID})
	require.NoError(t, err)

	snap := h.orch.Status(task.ID)
	require.NotNil(t, snap)
	snap.State = StateFailure

	// Mutating the snapshot never leaks into the registry.
	assert.Equal(t, StatePending, h.orch.Status(task.ID).State)
}
