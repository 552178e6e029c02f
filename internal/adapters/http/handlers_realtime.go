package web

import (
	"log/slog"
	"net/http"

	"gymhub/internal/adapters/realtime"
	"gymhub/internal/domain/presence"
	rt "gymhub/internal/domain/realtime"
)

type presenceResponse struct {
	Topic     string            `json:"topic"`
	Presences []presence.Record `json:"presences"`
}

// handleRealtime handles GET /api/realtime/{topic} (websocket upgrade)
func (s *server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess, ok := requireStaff(w, r)
	if !ok {
		return
	}
	topic := r.PathValue("topic")
	if !rt.ValidTopic(topic) {
		http.Error(w, rt.ErrUnknownTopic.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Warn("realtime_event", "event", "upgrade_failed", "topic", topic, "error", err.Error())
		return
	}
	who := realtime.Identity{UserID: sess.AccountID, DisplayName: sess.DisplayName, Role: sess.Role}
	if err := realtime.ServeConn(r.Context(), s.Hub, conn, topic, who, s.Socket); err != nil {
		slog.Warn("realtime_event", "event", "serve_failed", "topic", topic, "account_id", sess.AccountID, "error", err.Error())
	}
}

// handlePresence handles GET /api/presence/{topic}
func (s *server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireStaff(w, r); !ok {
		return
	}
	topic := r.PathValue("topic")
	roster, err := s.Hub.Roster(topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if roster == nil {
		roster = []presence.Record{}
	}
	writeJSON(w, http.StatusOK, presenceResponse{Topic: topic, Presences: roster})
}
