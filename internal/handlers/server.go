// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jason-s-yu/joinly/internal/bots"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/matchmaking"
	"github.com/jason-s-yu/joinly/internal/middleware"
	"github.com/jason-s-yu/joinly/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Deps are the components the HTTP surface drives.
type Deps struct {
	Engine    *lobby.Engine
	Matcher   *matchmaking.Matcher
	Bots      *bots.Manager
	Analytics *services.Analytics
	Presence  *services.Presence
	// Gatherer backs /metrics; nil omits the route.
	Gatherer prometheus.Gatherer
	// LobbyDefaults seeds lobbies created without an explicit config.
	LobbyDefaults *lobby.Config
	Logger        logrus.FieldLogger
}

// Server owns the REST handlers and the websocket hub.
type Server struct {
	engine        *lobby.Engine
	matcher       *matchmaking.Matcher
	bots          *bots.Manager
	analytics     *services.Analytics
	presence      *services.Presence
	gatherer      prometheus.Gatherer
	lobbyDefaults lobby.Config
	hub           *Hub
	logger        logrus.FieldLogger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	defaults := lobby.DefaultConfig()
	if d.LobbyDefaults != nil {
		defaults = *d.LobbyDefaults
	}
	s := &Server{
		engine:        d.Engine,
		matcher:       d.Matcher,
		bots:          d.Bots,
		analytics:     d.Analytics,
		presence:      d.Presence,
		gatherer:      d.Gatherer,
		lobbyDefaults: defaults,
		logger:        logger,
	}
	s.hub = NewHub(d.Engine.Bus, logger)
	return s
}

// Hub returns the websocket event hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close detaches the hub from the bus and drops every client.
func (s *Server) Close() { s.hub.Close() }

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.RecoverMiddleware(s.logger), middleware.LogMiddleware(s.logger))

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/lobbies", s.ListLobbies).Methods(http.MethodGet)
	api.HandleFunc("/lobbies", s.CreateLobby).Methods(http.MethodPost)
	api.HandleFunc("/lobbies/{lobby_id}", s.GetLobby).Methods(http.MethodGet)
	api.HandleFunc("/lobbies/{lobby_id}", s.DeleteLobby).Methods(http.MethodDelete)
	api.HandleFunc("/lobbies/{lobby_id}/join", s.JoinLobby).Methods(http.MethodPost)
	api.HandleFunc("/lobbies/{lobby_id}/leave", s.LeaveLobby).Methods(http.MethodPost)
	api.HandleFunc("/lobbies/{lobby_id}/ready", s.SetReady).Methods(http.MethodPost)
	api.HandleFunc("/lobbies/{lobby_id}/kick", s.KickPlayer).Methods(http.MethodPost)
	api.HandleFunc("/lobbies/{lobby_id}/bots", s.AddBotToLobby).Methods(http.MethodPost)
	api.HandleFunc("/lobbies/{lobby_id}/bots/fill", s.FillLobbyWithBots).Methods(http.MethodPost)

	api.HandleFunc("/players", s.ListPlayers).Methods(http.MethodGet)
	api.HandleFunc("/players/{player_id}", s.GetPlayer).Methods(http.MethodGet)
	api.HandleFunc("/players/{player_id}/heartbeat", s.PlayerHeartbeat).Methods(http.MethodPost)

	api.HandleFunc("/parties", s.ListParties).Methods(http.MethodGet)
	api.HandleFunc("/parties", s.CreateParty).Methods(http.MethodPost)
	api.HandleFunc("/parties/{party_id}", s.GetParty).Methods(http.MethodGet)
	api.HandleFunc("/parties/{party_id}/members", s.AddPartyMember).Methods(http.MethodPost)
	api.HandleFunc("/parties/{party_id}/members/{player_id}", s.RemovePartyMember).Methods(http.MethodDelete)

	api.HandleFunc("/queues", s.ListQueues).Methods(http.MethodGet)
	api.HandleFunc("/queues", s.CreateQueue).Methods(http.MethodPost)
	api.HandleFunc("/queues/{queue_id}", s.GetQueue).Methods(http.MethodGet)
	api.HandleFunc("/queues/{queue_id}", s.DeleteQueue).Methods(http.MethodDelete)
	api.HandleFunc("/queues/{queue_id}/join", s.JoinQueue).Methods(http.MethodPost)
	api.HandleFunc("/queues/{queue_id}/leave", s.LeaveQueue).Methods(http.MethodPost)
	api.HandleFunc("/tickets/{ticket_id}", s.GetTicket).Methods(http.MethodGet)

	api.HandleFunc("/bots", s.ListBots).Methods(http.MethodGet)
	api.HandleFunc("/bots", s.CreateBot).Methods(http.MethodPost)
	api.HandleFunc("/bots/profiles", s.BotProfiles).Methods(http.MethodGet)
	api.HandleFunc("/bots/stats", s.BotStats).Methods(http.MethodGet)
	api.HandleFunc("/bots/{bot_id}", s.GetBot).Methods(http.MethodGet)
	api.HandleFunc("/bots/{bot_id}", s.DeleteBot).Methods(http.MethodDelete)

	api.HandleFunc("/admin/stats", s.AdminStats).Methods(http.MethodGet)
	api.HandleFunc("/admin/events", s.AdminEvents).Methods(http.MethodGet)
	api.HandleFunc("/admin/analytics", s.AdminAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/admin/lobbies/{lobby_id}/kick", s.AdminKick).Methods(http.MethodPost)
	api.HandleFunc("/admin/clear", s.AdminClear).Methods(http.MethodPost)

	router.HandleFunc("/ws", s.hub.ServeWS(s)).Methods(http.MethodGet)
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}

// decodeBody reads a JSON object body. An empty body decodes to zero values.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string, err error) {
	entry := s.logger.WithFields(logrus.Fields{"status": status, "message": message})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Request error")

	resp := map[string]interface{}{"error": message}
	if err != nil {
		resp["details"] = err.Error()
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) ok(w http.ResponseWriter, extra map[string]interface{}) {
	resp := map[string]interface{}{"success": true}
	for k, v := range extra {
		resp[k] = v
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
