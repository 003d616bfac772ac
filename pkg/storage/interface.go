package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors shared by all implementations.
var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyProcessing is returned by TryMarkProcessing when the
	// record is already held by another task.
	ErrAlreadyProcessing = errors.New("record is already processing")
)

// Store is the record store for themes and posts.
type Store interface {
	// Theme operations
	CreateTheme(ctx context.Context, theme *Theme) error
	GetTheme(ctx context.Context, id uuid.UUID) (*Theme, error)
	UpdateTheme(ctx context.Context, theme *Theme) error
	ListThemes(ctx context.Context, activeOnly bool) ([]*Theme, error)

	// Post operations
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	UpdatePost(ctx context.Context, post *Post) error
	ListPosts(ctx context.Context, themeID uuid.UUID) ([]*Post, error)

	// FindPost looks up the post for a (theme, post type, topic) triple.
	// Returns ErrNotFound when no such post exists.
	FindPost(ctx context.Context, themeID uuid.UUID, postType, topic string) (*Post, error)

	// TryMarkProcessing atomically transitions the record from a
	// non-processing state to processing. It returns ErrAlreadyProcessing
	// when the record is already held, so two concurrent tasks cannot both
	// claim the same record.
	TryMarkProcessing(ctx context.Context, kind RecordKind, id uuid.UUID) error

	// ListStale returns records still marked processing whose last update
	// is strictly older than cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]StaleRecord, error)

	// ReleaseStale flips every stale processing record to the timeout
	// terminal state and returns the affected records.
	ReleaseStale(ctx context.Context, cutoff time.Time) ([]StaleRecord, error)

	// Lifecycle
	Close() error
}
