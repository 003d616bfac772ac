package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// handleTaskStream pushes task status updates over a websocket until the
// task reaches a terminal state. Clients connect with /ws/tasks?id=<task>.
func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	if s.orch.Status(taskID) == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	// Send the current state immediately, then on every tick.
	for {
		task := s.orch.Status(taskID)
		if task == nil {
			return
		}

		if err := conn.WriteJSON(taskStatusPayload(task)); err != nil {
			log.Printf("websocket write error: %v", err)
			return
		}

		if task.Terminal() {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
