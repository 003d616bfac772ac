// Package storage persists Theme and Post records. It abstracts the
// underlying store (PostgreSQL, memory) so the task orchestrator and HTTP
// layer work independently of the storage implementation.
package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/postpilot/postpilot/pkg/agents"
)

// ProcessingStatus is the record-level background-work state machine.
type ProcessingStatus string

const (
	ProcessingIdle      ProcessingStatus = "idle"
	ProcessingActive    ProcessingStatus = "processing"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
	ProcessingTimeout   ProcessingStatus = "timeout"
)

// PostStatus is the editorial status of a post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostGenerated PostStatus = "generated"
	PostPublished PostStatus = "published"
	PostScheduled PostStatus = "scheduled"
)

// RecordKind selects which record table an operation targets.
type RecordKind string

const (
	KindTheme RecordKind = "theme"
	KindPost  RecordKind = "post"
)

// Theme is a topical category under which topics and posts are generated.
type Theme struct {
	ID                uuid.UUID        `json:"id"`
	Title             string           `json:"title"`
	Active            bool             `json:"active"`
	SuggestedTopics   []agents.Topic   `json:"suggested_topics,omitempty"`
	TopicsGeneratedAt *time.Time       `json:"topics_generated_at,omitempty"`
	ProcessingStatus  ProcessingStatus `json:"processing_status"`
	IsProcessing      bool             `json:"is_processing"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Post is one generated content unit belonging to a theme.
type Post struct {
	ID               uuid.UUID        `json:"id"`
	ThemeID          uuid.UUID        `json:"theme_id"`
	PostType         string           `json:"post_type"` // simple | article
	Title            string           `json:"title"`
	Content          string           `json:"content"`
	PromotionalPost  string           `json:"promotional_post,omitempty"`
	CoverImagePrompt string           `json:"cover_image_prompt,omitempty"`
	Topic            string           `json:"topic"`
	SEOTitle         string           `json:"seo_title"`
	SEODescription   string           `json:"seo_description"`
	Status           PostStatus       `json:"status"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	IsProcessing     bool             `json:"is_processing"`
	GenerationLog    string           `json:"generation_log,omitempty"`
	ModelUsed        string           `json:"model_used,omitempty"`
	GeneratedAt      *time.Time       `json:"generated_at,omitempty"`
	PublishedAt      *time.Time       `json:"published_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// StaleRecord identifies one record released (or releasable) by the reaper.
type StaleRecord struct {
	Kind      RecordKind `json:"kind"`
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AppendLog appends a timestamped note to the post's generation log.
func (p *Post) AppendLog(note string, at time.Time) {
	entry := note + " at: " + at.Format("2006-01-02 15:04")
	if p.GenerationLog != "" {
		p.GenerationLog += " | " + entry
	} else {
		p.GenerationLog = entry
	}
}
