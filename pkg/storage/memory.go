package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store using in-memory maps.
// It's primarily used for unit testing and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	themes map[uuid.UUID]*Theme
	posts  map[uuid.UUID]*Post
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() Store {
	return &MemoryStore{
		themes: make(map[uuid.UUID]*Theme),
		posts:  make(map[uuid.UUID]*Post),
	}
}

// Theme operations

func (s *MemoryStore) CreateTheme(ctx context.Context, theme *Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if theme.ID == uuid.Nil {
		theme.ID = uuid.New()
	}

	if _, exists := s.themes[theme.ID]; exists {
		return fmt.Errorf("theme already exists: %s", theme.ID)
	}

	if theme.ProcessingStatus == "" {
		theme.ProcessingStatus = ProcessingIdle
	}
	if theme.CreatedAt.IsZero() {
		theme.CreatedAt = time.Now()
	}
	if theme.UpdatedAt.IsZero() {
		theme.UpdatedAt = time.Now()
	}

	// Deep copy to avoid external modifications
	s.themes[theme.ID] = s.copyTheme(theme)

	return nil
}

func (s *MemoryStore) GetTheme(ctx context.Context, id uuid.UUID) (*Theme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	theme, exists := s.themes[id]
	if !exists {
		return nil, fmt.Errorf("theme %s: %w", id, ErrNotFound)
	}

	// Return a copy to avoid external modifications
	return s.copyTheme(theme), nil
}

func (s *MemoryStore) UpdateTheme(ctx context.Context, theme *Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.themes[theme.ID]; !exists {
		return fmt.Errorf("theme %s: %w", theme.ID, ErrNotFound)
	}

	theme.UpdatedAt = time.Now()

	s.themes[theme.ID] = s.copyTheme(theme)

	return nil
}

func (s *MemoryStore) ListThemes(ctx context.Context, activeOnly bool) ([]*Theme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var themes []*Theme
	for _, theme := range s.themes {
		if activeOnly && !theme.Active {
			continue
		}

		themes = append(themes, s.copyTheme(theme))
	}

	// Sort by created_at descending (most recent first)
	sort.Slice(themes, func(i, j int) bool {
		return themes[i].CreatedAt.After(themes[j].CreatedAt)
	})

	return themes, nil
}

// Post operations

func (s *MemoryStore) CreatePost(ctx context.Context, post *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}

	if _, exists := s.posts[post.ID]; exists {
		return fmt.Errorf("post already exists: %s", post.ID)
	}

	if post.Status == "" {
		post.Status = PostDraft
	}
	if post.ProcessingStatus == "" {
		post.ProcessingStatus = ProcessingIdle
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = time.Now()
	}

	s.posts[post.ID] = s.copyPost(post)

	return nil
}

func (s *MemoryStore) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}

	return s.copyPost(post), nil
}

func (s *MemoryStore) UpdatePost(ctx context.Context, post *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; !exists {
		return fmt.Errorf("post %s: %w", post.ID, ErrNotFound)
	}

	post.UpdatedAt = time.Now()

	s.posts[post.ID] = s.copyPost(post)

	return nil
}

func (s *MemoryStore) ListPosts(ctx context.Context, themeID uuid.UUID) ([]*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []*Post
	for _, post := range s.posts {
		if themeID != uuid.Nil && post.ThemeID != themeID {
			continue
		}

		posts = append(posts, s.copyPost(post))
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	return posts, nil
}

func (s *MemoryStore) FindPost(ctx context.Context, themeID uuid.UUID, postType, topic string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, post := range s.posts {
		if post.ThemeID == themeID && post.PostType == postType && post.Topic == topic {
			return s.copyPost(post), nil
		}
	}

	return nil, fmt.Errorf("post for theme %s topic %q: %w", themeID, topic, ErrNotFound)
}

// Processing state operations

func (s *MemoryStore) TryMarkProcessing(ctx context.Context, kind RecordKind, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case KindTheme:
		theme, exists := s.themes[id]
		if !exists {
			return fmt.Errorf("theme %s: %w", id, ErrNotFound)
		}
		if theme.IsProcessing {
			return ErrAlreadyProcessing
		}
		theme.IsProcessing = true
		theme.ProcessingStatus = ProcessingActive
		theme.UpdatedAt = time.Now()
		return nil
	case KindPost:
		post, exists := s.posts[id]
		if !exists {
			return fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		if post.IsProcessing {
			return ErrAlreadyProcessing
		}
		post.IsProcessing = true
		post.ProcessingStatus = ProcessingActive
		post.UpdatedAt = time.Now()
		return nil
	default:
		return fmt.Errorf("unknown record kind: %s", kind)
	}
}

func (s *MemoryStore) ListStale(ctx context.Context, cutoff time.Time) ([]StaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.staleRecords(cutoff), nil
}

func (s *MemoryStore) ReleaseStale(ctx context.Context, cutoff time.Time) ([]StaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.staleRecords(cutoff)
	for _, rec := range stale {
		switch rec.Kind {
		case KindTheme:
			theme := s.themes[rec.ID]
			theme.IsProcessing = false
			theme.ProcessingStatus = ProcessingTimeout
			theme.UpdatedAt = time.Now()
		case KindPost:
			post := s.posts[rec.ID]
			post.IsProcessing = false
			post.ProcessingStatus = ProcessingTimeout
			post.UpdatedAt = time.Now()
		}
	}

	return stale, nil
}

// staleRecords collects processing records whose last update is strictly
// older than cutoff. Caller must hold at least the read lock.
func (s *MemoryStore) staleRecords(cutoff time.Time) []StaleRecord {
	var stale []StaleRecord
	for _, theme := range s.themes {
		if theme.IsProcessing && theme.UpdatedAt.Before(cutoff) {
			stale = append(stale, StaleRecord{
				Kind:      KindTheme,
				ID:        theme.ID,
				Title:     theme.Title,
				UpdatedAt: theme.UpdatedAt,
			})
		}
	}
	for _, post := range s.posts {
		if post.IsProcessing && post.UpdatedAt.Before(cutoff) {
			stale = append(stale, StaleRecord{
				Kind:      KindPost,
				ID:        post.ID,
				Title:     post.Title,
				UpdatedAt: post.UpdatedAt,
			})
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})

	return stale
}

// Lifecycle

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.themes = make(map[uuid.UUID]*Theme)
	s.posts = make(map[uuid.UUID]*Post)

	return nil
}

// Helper methods for deep copying

func (s *MemoryStore) copyTheme(theme *Theme) *Theme {
	if theme == nil {
		return nil
	}

	copy := &Theme{
		ID:               theme.ID,
		Title:            theme.Title,
		Active:           theme.Active,
		ProcessingStatus: theme.ProcessingStatus,
		IsProcessing:     theme.IsProcessing,
		CreatedAt:        theme.CreatedAt,
		UpdatedAt:        theme.UpdatedAt,
	}

	if theme.TopicsGeneratedAt != nil {
		t := *theme.TopicsGeneratedAt
		copy.TopicsGeneratedAt = &t
	}

	if theme.SuggestedTopics != nil {
		copy.SuggestedTopics = append(copy.SuggestedTopics, theme.SuggestedTopics...)
	}

	return copy
}

func (s *MemoryStore) copyPost(post *Post) *Post {
	if post == nil {
		return nil
	}

	copy := &Post{
		ID:               post.ID,
		ThemeID:          post.ThemeID,
		PostType:         post.PostType,
		Title:            post.Title,
		Content:          post.Content,
		PromotionalPost:  post.PromotionalPost,
		CoverImagePrompt: post.CoverImagePrompt,
		Topic:            post.Topic,
		SEOTitle:         post.SEOTitle,
		SEODescription:   post.SEODescription,
		Status:           post.Status,
		ProcessingStatus: post.ProcessingStatus,
		IsProcessing:     post.IsProcessing,
		GenerationLog:    post.GenerationLog,
		ModelUsed:        post.ModelUsed,
		CreatedAt:        post.CreatedAt,
		UpdatedAt:        post.UpdatedAt,
	}

	if post.GeneratedAt != nil {
		t := *post.GeneratedAt
		copy.GeneratedAt = &t
	}
	if post.PublishedAt != nil {
		t := *post.PublishedAt
		copy.PublishedAt = &t
	}

	return copy
}
