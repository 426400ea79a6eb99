// internal/handlers/admin.go
package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

const defaultEventLimit = 100

func (s *Server) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	stats["lobbies"] = s.engine.GetAllLobbies()
	if s.matcher != nil {
		stats["matchmaking"] = s.matcher.Stats()
	}
	if s.bots != nil {
		stats["bots"] = s.bots.Stats()
	}
	stats["ws_clients"] = s.hub.ClientCount()
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) AdminEvents(w http.ResponseWriter, r *http.Request) {
	history := s.engine.Bus.History(queryInt(r, "limit", defaultEventLimit))
	out := make([]map[string]interface{}, len(history))
	for i, ev := range history {
		out[i] = ev.ToMap()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (s *Server) AdminAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.analytics == nil {
		s.respondError(w, http.StatusNotFound, "Analytics disabled", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"analytics": s.analytics.Snapshot()})
}

// AdminKick unseats a player without a permission check.
func (s *Server) AdminKick(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil || req.PlayerID == "" {
		s.respondError(w, http.StatusBadRequest, "player_id is required", err)
		return
	}
	s.engine.RemovePlayerFromLobby(mux.Vars(r)["lobby_id"], req.PlayerID)
	s.ok(w, nil)
}

type clearRequest struct {
	Type string `json:"type"`
}

// AdminClear deletes every lobby, the event history, or both.
func (s *Server) AdminClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	kind := req.Type
	if kind == "" {
		kind = "all"
	}
	switch kind {
	case "lobbies", "events", "all":
	default:
		s.respondError(w, http.StatusBadRequest, "type must be lobbies, events or all", nil)
		return
	}
	deleted := 0
	if kind == "lobbies" || kind == "all" {
		for _, id := range s.engine.LobbyIDs() {
			if s.engine.DeleteLobby(id) {
				deleted++
			}
		}
	}
	if kind == "events" || kind == "all" {
		s.engine.Bus.ClearHistory()
	}
	s.ok(w, map[string]interface{}{"lobbies_deleted": deleted})
}
