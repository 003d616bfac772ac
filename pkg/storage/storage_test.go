package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot/pkg/agents"
)

// storeTestSuite runs the same tests against all Store implementations.
// The Postgres implementation shares the suite but needs a live database,
// so only the in-memory store runs here.
type storeTestSuite struct {
	t     *testing.T
	store Store
}

func TestAllStoreImplementations(t *testing.T) {
	t.Run("MemoryStore", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		suite := &storeTestSuite{t: t, store: store}
		suite.runAllTests()
	})
}

func (s *storeTestSuite) runAllTests() {
	s.t.Run("CreateAndGetTheme", func(t *testing.T) { s.testCreateAndGetTheme() })
	s.t.Run("UpdateTheme", func(t *testing.T) { s.testUpdateTheme() })
	s.t.Run("ListThemes", func(t *testing.T) { s.testListThemes() })
	s.t.Run("CreateAndGetPost", func(t *testing.T) { s.testCreateAndGetPost() })
	s.t.Run("UpdatePost", func(t *testing.T) { s.testUpdatePost() })
	s.t.Run("ListPostsByTheme", func(t *testing.T) { s.testListPostsByTheme() })
	s.t.Run("FindPost", func(t *testing.T) { s.testFindPost() })
	s.t.Run("NotFound", func(t *testing.T) { s.testNotFound() })
	s.t.Run("TryMarkProcessing", func(t *testing.T) { s.testTryMarkProcessing() })
	s.t.Run("StaleRecords", func(t *testing.T) { s.testStaleRecords() })
}

func (s *storeTestSuite) testCreateAndGetTheme() {
	ctx := context.Background()

	theme := &Theme{
		ID:     uuid.New(),
		Title:  "Cloud Native Go",
		Active: true,
		SuggestedTopics: []agents.Topic{
			{Title: "Profiling in production", PostType: "simple"},
		},
	}

	err := s.store.CreateTheme(ctx, theme)
	require.NoError(s.t, err)
	assert.False(s.t, theme.CreatedAt.IsZero(), "CreatedAt should be set")
	assert.Equal(s.t, ProcessingIdle, theme.ProcessingStatus)

	retrieved, err := s.store.GetTheme(ctx, theme.ID)
	require.NoError(s.t, err)
	assert.Equal(s.t, theme.Title, retrieved.Title)
	assert.True(s.t, retrieved.Active)
	require.Len(s.t, retrieved.SuggestedTopics, 1)
	assert.Equal(s.t, "Profiling in production", retrieved.SuggestedTopics[0].Title)
	assert.False(s.t, retrieved.IsProcessing)
}

func (s *storeTestSuite) testUpdateTheme() {
	ctx := context.Background()

	theme := &Theme{ID: uuid.New(), Title: "Original", Active: true}
	require.NoError(s.t, s.store.CreateTheme(ctx, theme))

	originalUpdatedAt := theme.UpdatedAt
	time.Sleep(10 * time.Millisecond)

	now := time.Now()
	theme.Title = "Renamed"
	theme.SuggestedTopics = []agents.Topic{{Title: "New topic"}}
	theme.TopicsGeneratedAt = &now

	require.NoError(s.t, s.store.UpdateTheme(ctx, theme))

	retrieved, err := s.store.GetTheme(ctx, theme.ID)
	require.NoError(s.t, err)
	assert.Equal(s.t, "Renamed", retrieved.Title)
	require.NotNil(s.t, retrieved.TopicsGeneratedAt)
	require.Len(s.t, retrieved.SuggestedTopics, 1)
	assert.True(s.t, retrieved.UpdatedAt.After(originalUpdatedAt), "UpdatedAt should advance")
}

func (s *storeTestSuite) testListThemes() {
	ctx := context.Background()

	active := &Theme{ID: uuid.New(), Title: "Active theme", Active: true}
	inactive := &Theme{ID: uuid.New(), Title: "Archived theme", Active: false}
	require.NoError(s.t, s.store.CreateTheme(ctx, active))
	require.NoError(s.t, s.store.CreateTheme(ctx, inactive))

	all, err := s.store.ListThemes(ctx, false)
	require.NoError(s.t, err)
	assert.GreaterOrEqual(s.t, len(all), 2)

	activeOnly, err := s.store.ListThemes(ctx, true)
	require.NoError(s.t, err)
	for _, th := range activeOnly {
		assert.True(s.t, th.Active, "activeOnly listing must not include %q", th.Title)
	}
}

func (s *storeTestSuite) testCreateAndGetPost() {
	ctx := context.Background()

	theme := &Theme{ID: uuid.New(), Title: "Post holder", Active: true}
	require.NoError(s.t, s.store.CreateTheme(ctx, theme))

	post := &Post{
		ID:       uuid.New(),
		ThemeID:  theme.ID,
		PostType: "article",
		Title:    "Why goroutine leaks happen",
		Topic:    "goroutine leaks",
	}

	err := s.store.CreatePost(ctx, post)
	require.NoError(s.t, err)
	assert.Equal(s.t, PostDraft, post.Status, "new posts default to draft")
	assert.Equal(s.t, ProcessingIdle, post.ProcessingStatus)

	retrieved, err := s.store.GetPost(ctx, post.ID)
	require.NoError(s.t, err)
	assert.Equal(s.t, post.Title, retrieved.Title)
	assert.Equal(s.t, theme.ID, retrieved.ThemeID)
	assert.Nil(s.t, retrieved.GeneratedAt)
}

func (s *storeTestSuite) testUpdatePost() {
	ctx := context.Background()

	post := &Post{ID: uuid.New(), ThemeID: uuid.New(), PostType: "simple", Title: "Draft", Topic: "drafting"}
	require.NoError(s.t, s.store.CreatePost(ctx, post))

	now := time.Now()
	post.Content = "Generated content"
	post.Status = PostGenerated
	post.GeneratedAt = &now
	post.ModelUsed = "gpt-4"
	post.AppendLog("Generated", now)

	require.NoError(s.t, s.store.UpdatePost(ctx, post))

	retrieved, err := s.store.GetPost(ctx, post.ID)
	require.NoError(s.t, err)
	assert.Equal(s.t, PostGenerated, retrieved.Status)
	assert.Equal(s.t, "Generated content", retrieved.Content)
	assert.Equal(s.t, "gpt-4", retrieved.ModelUsed)
	require.NotNil(s.t, retrieved.GeneratedAt)
	assert.Contains(s.t, retrieved.GenerationLog, "Generated at: ")
}

func (s *storeTestSuite) testListPostsByTheme() {
	ctx := context.Background()

	themeA := uuid.New()
	themeB := uuid.New()
	require.NoError(s.t, s.store.CreatePost(ctx, &Post{ID: uuid.New(), ThemeID: themeA, PostType: "simple", Topic: "a1"}))
	require.NoError(s.t, s.store.CreatePost(ctx, &Post{ID: uuid.New(), ThemeID: themeA, PostType: "article", Topic: "a2"}))
	require.NoError(s.t, s.store.CreatePost(ctx, &Post{ID: uuid.New(), ThemeID: themeB, PostType: "simple", Topic: "b1"}))

	posts, err := s.store.ListPosts(ctx, themeA)
	require.NoError(s.t, err)
	require.Len(s.t, posts, 2)
	for _, p := range posts {
		assert.Equal(s.t, themeA, p.ThemeID)
	}
}

func (s *storeTestSuite) testFindPost() {
	ctx := context.Background()

	themeID := uuid.New()
	post := &Post{ID: uuid.New(), ThemeID: themeID, PostType: "simple", Topic: "error wrapping", Title: "Wrap it up"}
	require.NoError(s.t, s.store.CreatePost(ctx, post))

	found, err := s.store.FindPost(ctx, themeID, "simple", "error wrapping")
	require.NoError(s.t, err)
	assert.Equal(s.t, post.ID, found.ID)

	// Same topic under a different post type is a different post.
	_, err = s.store.FindPost(ctx, themeID, "article", "error wrapping")
	assert.ErrorIs(s.t, err, ErrNotFound)
}

func (s *storeTestSuite) testNotFound() {
	ctx := context.Background()

	_, err := s.store.GetTheme(ctx, uuid.New())
	assert.ErrorIs(s.t, err, ErrNotFound)

	_, err = s.store.GetPost(ctx, uuid.New())
	assert.ErrorIs(s.t, err, ErrNotFound)

	err = s.store.UpdateTheme(ctx, &Theme{ID: uuid.New(), Title: "ghost"})
	assert.ErrorIs(s.t, err, ErrNotFound)

	err = s.store.TryMarkProcessing(ctx, KindPost, uuid.New())
	assert.ErrorIs(s.t, err, ErrNotFound)
}

func (s *storeTestSuite) testTryMarkProcessing() {
	ctx := context.Background()

	theme := &Theme{ID: uuid.New(), Title: "Contended", Active: true}
	require.NoError(s.t, s.store.CreateTheme(ctx, theme))

	err := s.store.TryMarkProcessing(ctx, KindTheme, theme.ID)
	require.NoError(s.t, err)

	// Second claim must lose.
	err = s.store.TryMarkProcessing(ctx, KindTheme, theme.ID)
	assert.ErrorIs(s.t, err, ErrAlreadyProcessing)

	retrieved, err := s.store.GetTheme(ctx, theme.ID)
	require.NoError(s.t, err)
	assert.True(s.t, retrieved.IsProcessing)
	assert.Equal(s.t, ProcessingActive, retrieved.ProcessingStatus)

	// Releasing the record makes it claimable again.
	retrieved.IsProcessing = false
	retrieved.ProcessingStatus = ProcessingCompleted
	require.NoError(s.t, s.store.UpdateTheme(ctx, retrieved))

	err = s.store.TryMarkProcessing(ctx, KindTheme, theme.ID)
	assert.NoError(s.t, err)

	// Leave the record idle so later stale scans don't pick it up.
	retrieved, err = s.store.GetTheme(ctx, theme.ID)
	require.NoError(s.t, err)
	retrieved.IsProcessing = false
	retrieved.ProcessingStatus = ProcessingIdle
	require.NoError(s.t, s.store.UpdateTheme(ctx, retrieved))
}

func (s *storeTestSuite) testStaleRecords() {
	ctx := context.Background()

	theme := &Theme{ID: uuid.New(), Title: "Stuck theme", Active: true}
	require.NoError(s.t, s.store.CreateTheme(ctx, theme))
	require.NoError(s.t, s.store.TryMarkProcessing(ctx, KindTheme, theme.ID))

	post := &Post{ID: uuid.New(), ThemeID: theme.ID, PostType: "simple", Topic: "stuck", Title: "Stuck post"}
	require.NoError(s.t, s.store.CreatePost(ctx, post))
	require.NoError(s.t, s.store.TryMarkProcessing(ctx, KindPost, post.ID))

	// A cutoff in the past catches nothing: both records were just touched.
	stale, err := s.store.ListStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(s.t, err)
	assert.Empty(s.t, stale)

	// A future cutoff catches both.
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()

	stale, err = s.store.ListStale(ctx, cutoff)
	require.NoError(s.t, err)
	require.Len(s.t, stale, 2)

	released, err := s.store.ReleaseStale(ctx, cutoff)
	require.NoError(s.t, err)
	require.Len(s.t, released, 2)

	retrievedTheme, err := s.store.GetTheme(ctx, theme.ID)
	require.NoError(s.t, err)
	assert.False(s.t, retrievedTheme.IsProcessing)
	assert.Equal(s.t, ProcessingTimeout, retrievedTheme.ProcessingStatus)

	retrievedPost, err := s.store.GetPost(ctx, post.ID)
	require.NoError(s.t, err)
	assert.False(s.t, retrievedPost.IsProcessing)
	assert.Equal(s.t, ProcessingTimeout, retrievedPost.ProcessingStatus)

	// Released records are no longer stale.
	stale, err = s.store.ListStale(ctx, time.Now().Add(time.Minute))
	require.NoError(s.t, err)
	assert.Empty(s.t, stale)
}
