// internal/handlers/lobbies.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/models"
)

type createLobbyRequest struct {
	LobbyID string                 `json:"lobby_id"`
	Config  map[string]interface{} `json:"config"`
}

type playerRequest struct {
	PlayerID string                 `json:"player_id"`
	Username string                 `json:"username"`
	Metadata map[string]interface{} `json:"metadata"`
	Ready    *bool                  `json:"ready"`
	ActorID  string                 `json:"actor_id"`
}

func (s *Server) ListLobbies(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"lobbies": s.engine.GetAllLobbies()})
}

func (s *Server) CreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	snap, err := s.createLobby(req.LobbyID, req.Config)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, lobby.ErrLobbyExists) {
			status = http.StatusConflict
		}
		s.respondError(w, status, "Could not create lobby", err)
		return
	}
	s.ok(w, map[string]interface{}{"lobby": snap})
}

// createLobby is shared with the websocket command path.
func (s *Server) createLobby(id string, raw map[string]interface{}) (map[string]interface{}, error) {
	cfg := s.lobbyDefaults.Merge(raw)
	if cfg.MaxPlayers <= 0 {
		return nil, errors.New("max_players must be positive")
	}
	l, err := s.engine.CreateLobby(id, cfg)
	if err != nil {
		return nil, err
	}
	return s.engine.GetLobby(l.ID), nil
}

func (s *Server) GetLobby(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.GetLobby(mux.Vars(r)["lobby_id"])
	if snap == nil {
		s.respondError(w, http.StatusNotFound, "Lobby not found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"lobby": snap})
}

func (s *Server) DeleteLobby(w http.ResponseWriter, r *http.Request) {
	s.engine.DeleteLobby(mux.Vars(r)["lobby_id"])
	s.ok(w, nil)
}

func (s *Server) JoinLobby(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil || req.PlayerID == "" {
		s.respondError(w, http.StatusBadRequest, "player_id is required", err)
		return
	}
	p := models.NewPlayerAt(req.PlayerID, req.Username, req.Metadata, s.engine.Now())
	if !s.engine.AddPlayerToLobby(mux.Vars(r)["lobby_id"], p) {
		s.respondError(w, http.StatusBadRequest, "Could not join lobby", nil)
		return
	}
	s.ok(w, map[string]interface{}{"player": s.engine.GetPlayer(p.ID)})
}

func (s *Server) LeaveLobby(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	s.engine.RemovePlayerFromLobby(mux.Vars(r)["lobby_id"], req.PlayerID)
	s.ok(w, nil)
}

func (s *Server) SetReady(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ready := true
	if req.Ready != nil {
		ready = *req.Ready
	}
	s.engine.SetPlayerReady(mux.Vars(r)["lobby_id"], req.PlayerID, ready)
	s.ok(w, nil)
}

// KickPlayer removes a player on behalf of an actor holding kick_player.
func (s *Server) KickPlayer(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeBody(r, &req); err != nil || req.PlayerID == "" {
		s.respondError(w, http.StatusBadRequest, "player_id is required", err)
		return
	}
	if !s.engine.KickPlayer(req.ActorID, mux.Vars(r)["lobby_id"], req.PlayerID) {
		s.respondError(w, http.StatusForbidden, "Could not kick player", nil)
		return
	}
	s.ok(w, nil)
}

func (s *Server) ListPlayers(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"players": s.engine.GetAllPlayers()})
}

func (s *Server) GetPlayer(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.GetPlayer(mux.Vars(r)["player_id"])
	if snap == nil {
		s.respondError(w, http.StatusNotFound, "Player not found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"player": snap})
}

func (s *Server) PlayerHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["player_id"]
	var ok bool
	if s.presence != nil {
		ok = s.presence.UpdatePresence(id)
	} else {
		ok = s.engine.Heartbeat(id)
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "Player not found", nil)
		return
	}
	s.ok(w, nil)
}
