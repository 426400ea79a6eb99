// internal/handlers/parties.go
package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

type partyRequest struct {
	PartyID  string `json:"party_id"`
	LeaderID string `json:"leader_id"`
	PlayerID string `json:"player_id"`
}

func (s *Server) ListParties(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"parties": s.engine.GetAllParties()})
}

func (s *Server) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decodeBody(r, &req); err != nil || req.LeaderID == "" {
		s.respondError(w, http.StatusBadRequest, "leader_id is required", err)
		return
	}
	s.ok(w, map[string]interface{}{"party": s.engine.CreateParty(req.PartyID, req.LeaderID)})
}

func (s *Server) GetParty(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.GetParty(mux.Vars(r)["party_id"])
	if snap == nil {
		s.respondError(w, http.StatusNotFound, "Party not found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"party": snap})
}

func (s *Server) AddPartyMember(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decodeBody(r, &req); err != nil || req.PlayerID == "" {
		s.respondError(w, http.StatusBadRequest, "player_id is required", err)
		return
	}
	partyID := mux.Vars(r)["party_id"]
	if !s.engine.AddPartyMember(partyID, req.PlayerID) {
		s.respondError(w, http.StatusBadRequest, "Could not join party", nil)
		return
	}
	s.ok(w, map[string]interface{}{"party": s.engine.GetParty(partyID)})
}

func (s *Server) RemovePartyMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.engine.RemovePartyMember(vars["party_id"], vars["player_id"])
	s.ok(w, nil)
}
