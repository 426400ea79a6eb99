// internal/handlers/bots.go
package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jason-s-yu/joinly/internal/bots"
)

type botRequest struct {
	Profile string `json:"profile"`
	Count   int    `json:"count"`
}

func (r botRequest) profile() string {
	if r.Profile == "" {
		return bots.DefaultProfile
	}
	return r.Profile
}

func (s *Server) ListBots(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bots": s.bots.GetAllBots()})
}

// CreateBot builds one bot, or count bots, none of them seated.
func (s *Server) CreateBot(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Count > 1 {
		created := s.bots.CreateBots(req.Count, req.profile())
		s.ok(w, map[string]interface{}{"bots": s.engine.BotSnapshots(created)})
		return
	}
	b := s.bots.CreateBot(req.profile())
	s.ok(w, map[string]interface{}{"bot": s.bots.GetBot(b.ID)})
}

func (s *Server) GetBot(w http.ResponseWriter, r *http.Request) {
	snap := s.bots.GetBot(mux.Vars(r)["bot_id"])
	if snap == nil {
		s.respondError(w, http.StatusNotFound, "Bot not found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bot": snap})
}

func (s *Server) DeleteBot(w http.ResponseWriter, r *http.Request) {
	s.bots.RemoveBot(mux.Vars(r)["bot_id"])
	s.ok(w, nil)
}

func (s *Server) AddBotToLobby(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	b := s.bots.AddBotToLobby(mux.Vars(r)["lobby_id"], req.profile())
	if b == nil {
		s.respondError(w, http.StatusBadRequest, "Could not add bot", nil)
		return
	}
	s.ok(w, map[string]interface{}{"bot": s.bots.GetBot(b.ID)})
}

func (s *Server) FillLobbyWithBots(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	added := s.bots.FillLobbyWithBots(mux.Vars(r)["lobby_id"], req.profile())
	s.ok(w, map[string]interface{}{
		"bots_added": len(added),
		"bots":       s.engine.BotSnapshots(added),
	})
}

func (s *Server) BotProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := make(map[string]interface{})
	for name, p := range s.bots.Profiles() {
		profiles[name] = profileMap(p)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"profiles": profiles})
}

func (s *Server) BotStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"stats": s.bots.Stats()})
}

func profileMap(p bots.Profile) map[string]interface{} {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return map[string]interface{}{
		"name":        p.Name,
		"skill_range": []int{p.SkillMin, p.SkillMax},
		"behavior":    string(p.Behavior),
		"auto_ready":  p.AutoReady,
		"ready_delay": p.ReadyDelay.Seconds(),
		"metadata":    metadata,
	}
}

