// internal/handlers/queues.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jason-s-yu/joinly/internal/matchmaking"
	"github.com/jason-s-yu/joinly/internal/models"
)

type createQueueRequest struct {
	QueueID string                 `json:"queue_id"`
	Config  map[string]interface{} `json:"config"`
}

type joinQueueRequest struct {
	PlayerID    string                 `json:"player_id"`
	Username    string                 `json:"username"`
	SkillRating *int                   `json:"skill_rating"`
	PartyID     string                 `json:"party_id"`
	Priority    int                    `json:"priority"`
	Metadata    map[string]interface{} `json:"metadata"`
	TicketID    string                 `json:"ticket_id"`
}

func (s *Server) ListQueues(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"queues": s.matcher.GetAllQueues()})
}

func (s *Server) CreateQueue(w http.ResponseWriter, r *http.Request) {
	var req createQueueRequest
	if err := decodeBody(r, &req); err != nil || req.QueueID == "" {
		s.respondError(w, http.StatusBadRequest, "queue_id is required", err)
		return
	}
	q, err := s.matcher.CreateQueue(req.QueueID, matchmaking.QueueConfigFromMap(req.Config))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, matchmaking.ErrQueueExists) {
			status = http.StatusConflict
		}
		s.respondError(w, status, "Could not create queue", err)
		return
	}
	s.ok(w, map[string]interface{}{"queue": q.ToMap()})
}

func (s *Server) GetQueue(w http.ResponseWriter, r *http.Request) {
	snap := s.matcher.GetQueue(mux.Vars(r)["queue_id"])
	if snap == nil {
		s.respondError(w, http.StatusNotFound, "Queue not found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"queue": snap})
}

func (s *Server) DeleteQueue(w http.ResponseWriter, r *http.Request) {
	if !s.matcher.DeleteQueue(mux.Vars(r)["queue_id"]) {
		s.respondError(w, http.StatusNotFound, "Queue not found", nil)
		return
	}
	s.ok(w, nil)
}

func (s *Server) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := decodeBody(r, &req); err != nil || req.PlayerID == "" {
		s.respondError(w, http.StatusBadRequest, "player_id is required", err)
		return
	}
	skill := models.DefaultSkillRating
	if req.SkillRating != nil {
		skill = *req.SkillRating
	}
	now := s.engine.Now()
	t := models.NewMatchTicket(req.PlayerID, req.Username, skill, req.Metadata, now)
	t.PartyID = req.PartyID
	t.Priority = req.Priority
	// The matcher owns t once queued.
	snapshot := t.ToMap(now)
	if !s.matcher.AddTicket(mux.Vars(r)["queue_id"], t) {
		s.respondError(w, http.StatusBadRequest, "Could not join queue", nil)
		return
	}
	s.ok(w, map[string]interface{}{"ticket": snapshot})
}

func (s *Server) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	var req joinQueueRequest
	if err := decodeBody(r, &req); err != nil || req.TicketID == "" {
		s.respondError(w, http.StatusBadRequest, "ticket_id is required", err)
		return
	}
	s.matcher.RemoveTicket(mux.Vars(r)["queue_id"], req.TicketID)
	s.ok(w, nil)
}

func (s *Server) GetTicket(w http.ResponseWriter, r *http.Request) {
	queueID, t, ok := s.matcher.FindTicket(mux.Vars(r)["ticket_id"])
	if !ok {
		s.respondError(w, http.StatusNotFound, "Ticket not found", nil)
		return
	}
	snap := t.ToMap(s.engine.Now())
	snap["queue_id"] = queueID
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ticket": snap})
}
