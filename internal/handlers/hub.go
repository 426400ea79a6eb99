// internal/handlers/hub.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/middleware"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
)

// wsClient is one websocket subscriber. A non-empty lobbyID restricts the
// stream to events carrying that lobby_id.
type wsClient struct {
	lobbyID string
	out     chan map[string]interface{}
}

// Hub fans bus events out to websocket clients. Delivery never blocks the
// emitter: a client whose buffer is full misses the message.
type Hub struct {
	bus  *events.Bus
	subs []uint64

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool

	dropped atomic.Int64
	logger  logrus.FieldLogger
}

func NewHub(bus *events.Bus, logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Hub{
		bus:     bus,
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
	h.subs = bus.OnAll(events.All, h.broadcast)
	return h
}

// Close unsubscribes from the bus and releases every client.
func (h *Hub) Close() {
	for i, name := range events.All {
		h.bus.Off(name, h.subs[i])
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		close(c.out)
		delete(h.clients, c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts messages discarded because a client fell behind.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) register(lobbyID string) *wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &wsClient{lobbyID: lobbyID, out: make(chan map[string]interface{}, clientBuffer)}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.out)
	}
}

func (h *Hub) setFilter(c *wsClient, lobbyID string) {
	h.mu.Lock()
	c.lobbyID = lobbyID
	h.mu.Unlock()
}

func (h *Hub) broadcast(ev events.Event) error {
	msg := ev.ToMap()
	lobbyID, _ := ev.Data["lobby_id"].(string)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.lobbyID != "" && c.lobbyID != lobbyID {
			continue
		}
		h.offerUnsafe(c, msg)
	}
	return nil
}

// send queues a direct reply to one client.
func (h *Hub) send(c *wsClient, msg map[string]interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.offerUnsafe(c, msg)
	}
}

func (h *Hub) offerUnsafe(c *wsClient, msg map[string]interface{}) {
	select {
	case c.out <- msg:
	default:
		h.dropped.Add(1)
	}
}

// ServeWS upgrades the request and streams events until the client leaves.
// The optional lobby_id query parameter narrows the stream to one lobby.
func (h *Hub) ServeWS(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID := r.URL.Query().Get("lobby_id")
		if lobbyID != "" && !s.engine.HasLobby(lobbyID) {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			h.logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		client := h.register(lobbyID)
		if client == nil {
			c.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		middleware.LogWebSocketConnect(h.logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		h.send(client, reply("connected", map[string]interface{}{
			"message":  "Connected to Joinly",
			"lobby_id": lobbyID,
		}))
		go h.writePump(ctx, cancel, c, client)
		err = h.readPump(ctx, c, client, s)

		h.unregister(client)
		middleware.LogWebSocketDisconnect(h.logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

func (h *Hub) writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, client *wsClient) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.out:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Warnf("failed to marshal outgoing message: %v", err)
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				h.logger.Debugf("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.logger.Debugf("websocket ping failed: %v", err)
				return
			}
		}
	}
}

// readPump handles client commands until the connection closes. A normal
// closure returns nil.
func (h *Hub) readPump(ctx context.Context, c *websocket.Conn, client *wsClient, s *Server) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.send(client, errorReply("invalid JSON"))
			continue
		}
		h.send(client, h.handleCommand(client, cmd, s))
	}
}

type wsCommand struct {
	Type     string                 `json:"type"`
	LobbyID  string                 `json:"lobby_id"`
	PlayerID string                 `json:"player_id"`
	Username string                 `json:"username"`
	Metadata map[string]interface{} `json:"metadata"`
	Ready    *bool                  `json:"ready"`
	Profile  string                 `json:"profile"`
	Config   map[string]interface{} `json:"config"`
}

func reply(name string, data interface{}) map[string]interface{} {
	return map[string]interface{}{"event": name, "data": data}
}

func errorReply(message string) map[string]interface{} {
	return reply("error", map[string]interface{}{"message": message})
}

func (h *Hub) handleCommand(client *wsClient, cmd wsCommand, s *Server) map[string]interface{} {
	switch cmd.Type {
	case "subscribe":
		if cmd.LobbyID != "" && !s.engine.HasLobby(cmd.LobbyID) {
			return errorReply("Lobby not found")
		}
		h.setFilter(client, cmd.LobbyID)
		return reply("subscribed", map[string]interface{}{"lobby_id": cmd.LobbyID})

	case "create_lobby":
		snap, err := s.createLobby(cmd.LobbyID, cmd.Config)
		if err != nil {
			return errorReply(err.Error())
		}
		return reply("lobby_state", snap)

	case "join_lobby":
		if cmd.PlayerID == "" {
			return errorReply("player_id is required")
		}
		p := models.NewPlayerAt(cmd.PlayerID, cmd.Username, cmd.Metadata, s.engine.Now())
		if !s.engine.AddPlayerToLobby(cmd.LobbyID, p) {
			return errorReply("Could not join lobby")
		}
		h.setFilter(client, cmd.LobbyID)
		return reply("lobby_state", s.engine.GetLobby(cmd.LobbyID))

	case "leave_lobby":
		s.engine.RemovePlayerFromLobby(cmd.LobbyID, cmd.PlayerID)
		h.setFilter(client, "")
		return reply("left_lobby", map[string]interface{}{"lobby_id": cmd.LobbyID})

	case "set_ready":
		ready := true
		if cmd.Ready != nil {
			ready = *cmd.Ready
		}
		if !s.engine.SetPlayerReady(cmd.LobbyID, cmd.PlayerID, ready) {
			return errorReply("Could not set ready")
		}
		return reply("lobby_state", s.engine.GetLobby(cmd.LobbyID))

	case "heartbeat":
		if !s.engine.Heartbeat(cmd.PlayerID) {
			return errorReply("Player not found")
		}
		return reply("heartbeat_ack", map[string]interface{}{"player_id": cmd.PlayerID})

	case "add_bot":
		profile := botRequest{Profile: cmd.Profile}.profile()
		if s.bots == nil || s.bots.AddBotToLobby(cmd.LobbyID, profile) == nil {
			return errorReply("Could not add bot")
		}
		return reply("lobby_state", s.engine.GetLobby(cmd.LobbyID))

	case "get_lobby":
		snap := s.engine.GetLobby(cmd.LobbyID)
		if snap == nil {
			return errorReply("Lobby not found")
		}
		return reply("lobby_state", snap)

	case "get_lobbies":
		return reply("lobbies_list", map[string]interface{}{"lobbies": s.engine.GetAllLobbies()})

	default:
		return errorReply("unknown command " + cmd.Type)
	}
}
