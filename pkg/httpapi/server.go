// Package httpapi exposes the content-generation operations and the
// polling surface over HTTP.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/postpilot/postpilot/pkg/storage"
	"github.com/postpilot/postpilot/pkg/tasks"
)

// Server wires the record store, the task orchestrator, and the reaper
// behind the HTTP surface.
type Server struct {
	store  storage.Store
	orch   *tasks.Orchestrator
	reaper *tasks.Reaper
}

// NewServer creates the HTTP API server.
func NewServer(store storage.Store, orch *tasks.Orchestrator, reaper *tasks.Reaper) *Server {
	return &Server{
		store:  store,
		orch:   orch,
		reaper: reaper,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/themes", s.handleListThemes)
	mux.HandleFunc("POST /api/themes", s.handleCreateTheme)
	mux.HandleFunc("GET /api/themes/{id}/status", s.handleThemeStatus)
	mux.HandleFunc("POST /api/themes/{id}/generate-topics", s.handleGenerateTopics)
	mux.HandleFunc("POST /api/themes/{id}/posts", s.handleGeneratePost)

	mux.HandleFunc("GET /api/posts/{id}/status", s.handlePostStatus)
	mux.HandleFunc("POST /api/posts/{id}/improve", s.handleImprovePost)
	mux.HandleFunc("POST /api/posts/{id}/regenerate-image", s.handleRegenerateImage)
	mux.HandleFunc("POST /api/posts/{id}/publish", s.handlePublishPost)

	mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /ws/tasks", s.handleTaskStream)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
