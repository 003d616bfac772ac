package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot/pkg/agents"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new database-backed store. The connection is
// managed by the caller.
func NewPostgresStore(db *sql.DB) Store {
	if db == nil {
		panic("database connection cannot be nil")
	}

	return &PostgresStore{db: db}
}

// Theme operations

func (s *PostgresStore) CreateTheme(ctx context.Context, theme *Theme) error {
	if theme.ID == uuid.Nil {
		theme.ID = uuid.New()
	}
	if theme.ProcessingStatus == "" {
		theme.ProcessingStatus = ProcessingIdle
	}
	now := time.Now()
	if theme.CreatedAt.IsZero() {
		theme.CreatedAt = now
	}
	theme.UpdatedAt = now

	topicsJSON, err := json.Marshal(theme.SuggestedTopics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	query := `
		INSERT INTO themes (id, title, active, suggested_topics, topics_generated_at, processing_status, is_processing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		theme.ID,
		theme.Title,
		theme.Active,
		topicsJSON,
		theme.TopicsGeneratedAt,
		string(theme.ProcessingStatus),
		theme.IsProcessing,
		theme.CreatedAt,
		theme.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create theme: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetTheme(ctx context.Context, id uuid.UUID) (*Theme, error) {
	query := `
		SELECT id, title, active, suggested_topics, topics_generated_at, processing_status, is_processing, created_at, updated_at
		FROM themes
		WHERE id = $1
	`

	return scanTheme(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) UpdateTheme(ctx context.Context, theme *Theme) error {
	theme.UpdatedAt = time.Now()

	topicsJSON, err := json.Marshal(theme.SuggestedTopics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	query := `
		UPDATE themes
		SET title = $2, active = $3, suggested_topics = $4, topics_generated_at = $5,
		    processing_status = $6, is_processing = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		theme.ID,
		theme.Title,
		theme.Active,
		topicsJSON,
		theme.TopicsGeneratedAt,
		string(theme.ProcessingStatus),
		theme.IsProcessing,
		theme.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update theme: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("theme %s: %w", theme.ID, ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) ListThemes(ctx context.Context, activeOnly bool) ([]*Theme, error) {
	query := `
		SELECT id, title, active, suggested_topics, topics_generated_at, processing_status, is_processing, created_at, updated_at
		FROM themes
	`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list themes: %w", err)
	}
	defer rows.Close()

	var themes []*Theme
	for rows.Next() {
		theme, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		themes = append(themes, theme)
	}

	return themes, rows.Err()
}

// Post operations

const postColumns = `id, theme_id, post_type, title, content, promotional_post, cover_image_prompt, topic,
	seo_title, seo_description, status, processing_status, is_processing, generation_log, model_used,
	generated_at, published_at, created_at, updated_at`

func (s *PostgresStore) CreatePost(ctx context.Context, post *Post) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	if post.Status == "" {
		post.Status = PostDraft
	}
	if post.ProcessingStatus == "" {
		post.ProcessingStatus = ProcessingIdle
	}
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	query := `
		INSERT INTO posts (` + postColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := s.db.ExecContext(ctx, query,
		post.ID,
		post.ThemeID,
		post.PostType,
		post.Title,
		post.Content,
		post.PromotionalPost,
		post.CoverImagePrompt,
		post.Topic,
		post.SEOTitle,
		post.SEODescription,
		string(post.Status),
		string(post.ProcessingStatus),
		post.IsProcessing,
		post.GenerationLog,
		post.ModelUsed,
		post.GeneratedAt,
		post.PublishedAt,
		post.CreatedAt,
		post.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	return scanPost(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) UpdatePost(ctx context.Context, post *Post) error {
	post.UpdatedAt = time.Now()

	query := `
		UPDATE posts
		SET theme_id = $2, post_type = $3, title = $4, content = $5, promotional_post = $6,
		    cover_image_prompt = $7, topic = $8, seo_title = $9, seo_description = $10,
		    status = $11, processing_status = $12, is_processing = $13, generation_log = $14,
		    model_used = $15, generated_at = $16, published_at = $17, updated_at = $18
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		post.ID,
		post.ThemeID,
		post.PostType,
		post.Title,
		post.Content,
		post.PromotionalPost,
		post.CoverImagePrompt,
		post.Topic,
		post.SEOTitle,
		post.SEODescription,
		string(post.Status),
		string(post.ProcessingStatus),
		post.IsProcessing,
		post.GenerationLog,
		post.ModelUsed,
		post.GeneratedAt,
		post.PublishedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("post %s: %w", post.ID, ErrNotFound)
	}

	return nil
}

func (s *PostgresStore) ListPosts(ctx context.Context, themeID uuid.UUID) ([]*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	args := []interface{}{}
	if themeID != uuid.Nil {
		query += ` WHERE theme_id = $1`
		args = append(args, themeID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	return posts, rows.Err()
}

func (s *PostgresStore) FindPost(ctx context.Context, themeID uuid.UUID, postType, topic string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE theme_id = $1 AND post_type = $2 AND topic = $3 LIMIT 1`

	post, err := scanPost(s.db.QueryRowContext(ctx, query, themeID, postType, topic))
	if err != nil {
		return nil, fmt.Errorf("post for theme %s topic %q: %w", themeID, topic, err)
	}
	return post, nil
}

// Processing state operations

func (s *PostgresStore) TryMarkProcessing(ctx context.Context, kind RecordKind, id uuid.UUID) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	// The WHERE clause makes the idle->processing transition atomic: a
	// second caller sees is_processing = true and claims zero rows.
	query := fmt.Sprintf(`
		UPDATE %s
		SET is_processing = true, processing_status = $2, updated_at = $3
		WHERE id = $1 AND is_processing = false
	`, table)

	result, err := s.db.ExecContext(ctx, query, id, string(ProcessingActive), time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark %s processing: %w", kind, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claim result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a held record from a missing one.
	var exists bool
	checkQuery := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := s.db.QueryRowContext(ctx, checkQuery, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s existence: %w", kind, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}

	return ErrAlreadyProcessing
}

func (s *PostgresStore) ListStale(ctx context.Context, cutoff time.Time) ([]StaleRecord, error) {
	var stale []StaleRecord

	for _, kind := range []RecordKind{KindTheme, KindPost} {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}

		query := fmt.Sprintf(`
			SELECT id, title, updated_at
			FROM %s
			WHERE is_processing = true AND updated_at < $1
			ORDER BY updated_at ASC
		`, table)

		records, err := s.collectStale(ctx, query, kind, cutoff)
		if err != nil {
			return nil, err
		}
		stale = append(stale, records...)
	}

	return stale, nil
}

func (s *PostgresStore) ReleaseStale(ctx context.Context, cutoff time.Time) ([]StaleRecord, error) {
	var released []StaleRecord

	for _, kind := range []RecordKind{KindTheme, KindPost} {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}

		// RETURNING evaluates after the update, so capture the pre-update
		// updated_at in the old alias joined against the new row.
		query := fmt.Sprintf(`
			UPDATE %s AS t
			SET is_processing = false, processing_status = $2, updated_at = $3
			FROM (
				SELECT id, updated_at FROM %s
				WHERE is_processing = true AND updated_at < $1
				ORDER BY updated_at ASC
			) AS stale
			WHERE t.id = stale.id
			RETURNING t.id, t.title, stale.updated_at
		`, table, table)

		rows, err := s.db.QueryContext(ctx, query, cutoff, string(ProcessingTimeout), time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to release stale %ss: %w", kind, err)
		}

		for rows.Next() {
			rec := StaleRecord{Kind: kind}
			if err := rows.Scan(&rec.ID, &rec.Title, &rec.UpdatedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan released %s: %w", kind, err)
			}
			released = append(released, rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to release stale %ss: %w", kind, err)
		}
		rows.Close()
	}

	return released, nil
}

func (s *PostgresStore) collectStale(ctx context.Context, query string, kind RecordKind, cutoff time.Time) ([]StaleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale %ss: %w", kind, err)
	}
	defer rows.Close()

	var records []StaleRecord
	for rows.Next() {
		rec := StaleRecord{Kind: kind}
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stale %s: %w", kind, err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func tableFor(kind RecordKind) (string, error) {
	switch kind {
	case KindTheme:
		return "themes", nil
	case KindPost:
		return "posts", nil
	default:
		return "", fmt.Errorf("unknown record kind: %s", kind)
	}
}

// Lifecycle

func (s *PostgresStore) Close() error {
	// Database connection is managed externally, don't close here
	return nil
}

// Row scanning

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTheme(row rowScanner) (*Theme, error) {
	var theme Theme
	var topicsJSON []byte
	var topicsGeneratedAt sql.NullTime
	var status string

	err := row.Scan(
		&theme.ID,
		&theme.Title,
		&theme.Active,
		&topicsJSON,
		&topicsGeneratedAt,
		&status,
		&theme.IsProcessing,
		&theme.CreatedAt,
		&theme.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan theme: %w", err)
	}

	theme.ProcessingStatus = ProcessingStatus(status)
	if topicsGeneratedAt.Valid {
		theme.TopicsGeneratedAt = &topicsGeneratedAt.Time
	}
	if len(topicsJSON) > 0 {
		if err := json.Unmarshal(topicsJSON, &theme.SuggestedTopics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if theme.SuggestedTopics == nil {
		theme.SuggestedTopics = []agents.Topic{}
	}

	return &theme, nil
}

func scanPost(row rowScanner) (*Post, error) {
	var post Post
	var status, processingStatus string
	var generatedAt, publishedAt sql.NullTime

	err := row.Scan(
		&post.ID,
		&post.ThemeID,
		&post.PostType,
		&post.Title,
		&post.Content,
		&post.PromotionalPost,
		&post.CoverImagePrompt,
		&post.Topic,
		&post.SEOTitle,
		&post.SEODescription,
		&status,
		&processingStatus,
		&post.IsProcessing,
		&post.GenerationLog,
		&post.ModelUsed,
		&generatedAt,
		&publishedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	post.Status = PostStatus(status)
	post.ProcessingStatus = ProcessingStatus(processingStatus)
	if generatedAt.Valid {
		post.GeneratedAt = &generatedAt.Time
	}
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}

	return &post, nil
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)
