package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot/pkg/storage"
	"github.com/postpilot/postpilot/pkg/tasks"
)

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// enqueue runs the shared enqueue flow: validation errors map to 400,
// missing records to 404, a processing conflict to 409 with the warning
// envelope, and an accepted task to 202.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, typ tasks.Type, args tasks.Args) {
	task, warning, err := s.orch.Enqueue(r.Context(), typ, args)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			log.Printf("enqueue %s: %v", typ, err)
			writeError(w, http.StatusInternalServerError, "failed to enqueue task")
		}
		return
	}

	if warning != nil {
		writeJSON(w, http.StatusConflict, warning)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"state":   string(task.State),
	})
}

// Theme handlers

func (s *Server) handleListThemes(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	themes, err := s.store.ListThemes(r.Context(), activeOnly)
	if err != nil {
		log.Printf("list themes: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list themes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"themes": themes})
}

func (s *Server) handleCreateTheme(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Title  string `json:"title"`
		Active *bool  `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if request.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	theme := &storage.Theme{Title: request.Title, Active: true}
	if request.Active != nil {
		theme.Active = *request.Active
	}

	if err := s.store.CreateTheme(r.Context(), theme); err != nil {
		log.Printf("create theme: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create theme")
		return
	}

	writeJSON(w, http.StatusCreated, theme)
}

// handleThemeStatus is the polling endpoint for theme processing state. A
// read of a stuck record silently self-heals it before responding.
func (s *Server) handleThemeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	theme, err := s.store.GetTheme(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "theme not found")
			return
		}
		log.Printf("theme status: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load theme")
		return
	}

	if healed, err := s.reaper.HealTheme(r.Context(), theme); err != nil {
		log.Printf("theme status: self-heal failed: %v", err)
	} else if healed {
		log.Printf("theme %s: released stale processing state", theme.ID)
	}

	status := "completed"
	if theme.IsProcessing {
		status = "processing"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                theme.ID,
		"is_processing":     theme.IsProcessing,
		"processing_status": string(theme.ProcessingStatus),
		"status":            status,
		"has_topics":        len(theme.SuggestedTopics) > 0,
		"topics_count":      len(theme.SuggestedTopics),
	})
}

func (s *Server) handleGenerateTopics(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	s.enqueue(w, r, tasks.TypeGenerateTopics, tasks.Args{ThemeID: id})
}

func (s *Server) handleGeneratePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var request struct {
		Topic    string `json:"topic"`
		PostType string `json:"post_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.enqueue(w, r, tasks.TypeGeneratePost, tasks.Args{
		ThemeID:  id,
		Topic:    request.Topic,
		PostType: request.PostType,
	})
}

// Post handlers

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		log.Printf("post status: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load post")
		return
	}

	if healed, err := s.reaper.HealPost(r.Context(), post); err != nil {
		log.Printf("post status: self-heal failed: %v", err)
	} else if healed {
		log.Printf("post %s: released stale processing state", post.ID)
	}

	status := "completed"
	if post.IsProcessing {
		status = "processing"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                post.ID,
		"is_processing":     post.IsProcessing,
		"processing_status": string(post.ProcessingStatus),
		"status":            status,
		"title":             post.Title,
		"content_length":    len(post.Content),
	})
}

func (s *Server) handleImprovePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	s.enqueue(w, r, tasks.TypeImprovePost, tasks.Args{PostID: id})
}

func (s *Server) handleRegenerateImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	s.enqueue(w, r, tasks.TypeRegenerateImagePrompt, tasks.Args{PostID: id})
}

// handlePublishPost marks a generated post as published. This is a direct
// store operation, not a background task.
func (s *Server) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		log.Printf("publish post: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load post")
		return
	}

	if post.Status == storage.PostPublished {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "warning",
			"message": "post is already published",
			"post_id": post.ID,
		})
		return
	}
	if post.IsProcessing {
		writeError(w, http.StatusConflict, "post is being processed")
		return
	}

	now := time.Now()
	post.Status = storage.PostPublished
	post.PublishedAt = &now
	post.AppendLog("Published", now)

	if err := s.store.UpdatePost(r.Context(), post); err != nil {
		log.Printf("publish post: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to publish post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "success",
		"post_id":      post.ID,
		"published_at": post.PublishedAt,
	})
}

// Task handlers

// handleTaskStatus reports a task's lifecycle. The result payload is only
// exposed once the task succeeded; non-terminal states carry an info line
// instead, and failures carry the error.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	task := s.orch.Status(id)
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	writeJSON(w, http.StatusOK, taskStatusPayload(task))
}

func taskStatusPayload(task *tasks.Task) map[string]interface{} {
	payload := map[string]interface{}{
		"task_id": task.ID,
		"state":   string(task.State),
	}

	switch {
	case task.State == tasks.StateSuccess:
		payload["result"] = task.Result
	case task.State == tasks.StateFailure:
		payload["error"] = task.Error
		if task.Result != nil {
			payload["error"] = task.Result.Message
		}
	default:
		payload["info"] = "Task is still running"
	}

	return payload
}
