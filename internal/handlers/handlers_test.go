// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/joinly/internal/auth"
	"github.com/jason-s-yu/joinly/internal/bots"
	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/matchmaking"
	"github.com/jason-s-yu/joinly/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine  *lobby.Engine
	matcher *matchmaking.Matcher
	server  *Server
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := lobby.NewEngine(events.NewBus(logger), lobby.WithLogger(logger))
	matcher := matchmaking.NewMatcher(engine, matchmaking.WithLogger(logger))
	botManager := bots.NewManager(engine, bots.NewLibrary(7), time.Hour, logger)
	reg := prometheus.NewRegistry()
	analytics, err := services.NewAnalytics(engine, reg)
	require.NoError(t, err)

	s := NewServer(Deps{
		Engine:    engine,
		Matcher:   matcher,
		Bots:      botManager,
		Analytics: analytics,
		Presence:  services.NewPresence(engine, time.Hour, 30*time.Second, logger),
		Gatherer:  reg,
		Logger:    logger,
	})
	t.Cleanup(s.Close)
	return &fixture{engine: engine, matcher: matcher, server: s, handler: s.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(method, path, buf))
	var out map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestLobbyLifecycle(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/lobbies", map[string]interface{}{
		"lobby_id": "l1",
		"config":   map[string]interface{}{"max_players": 2},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	code, _ = f.do(t, http.MethodPost, "/api/lobbies", map[string]interface{}{"lobby_id": "l1"})
	assert.Equal(t, http.StatusConflict, code)

	for _, id := range []string{"p1", "p2"} {
		code, _ = f.do(t, http.MethodPost, "/api/lobbies/l1/join", map[string]interface{}{"player_id": id, "username": id})
		require.Equal(t, http.StatusOK, code)
	}
	code, body = f.do(t, http.MethodPost, "/api/lobbies/l1/join", map[string]interface{}{"player_id": "p3"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Could not join lobby", body["error"])

	for _, id := range []string{"p1", "p2"} {
		code, _ = f.do(t, http.MethodPost, "/api/lobbies/l1/ready", map[string]interface{}{"player_id": id})
		require.Equal(t, http.StatusOK, code)
	}
	_, body = f.do(t, http.MethodGet, "/api/lobbies/l1", nil)
	snap := body["lobby"].(map[string]interface{})
	assert.Equal(t, "ready", snap["state"])
	assert.Equal(t, float64(2), snap["max_players"])

	code, _ = f.do(t, http.MethodPost, "/api/lobbies/l1/leave", map[string]interface{}{"player_id": "p2"})
	require.Equal(t, http.StatusOK, code)
	_, body = f.do(t, http.MethodGet, "/api/players", nil)
	assert.Len(t, body["players"], 1)

	code, _ = f.do(t, http.MethodPost, "/api/players/p1/heartbeat", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPost, "/api/players/p2/heartbeat", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodDelete, "/api/lobbies/l1", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodGet, "/api/lobbies/l1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodGet, "/api/players/p1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestJoinRequiresPlayerID(t *testing.T) {
	f := newFixture(t)
	f.engine.CreateLobby("l1", lobby.DefaultConfig())
	code, _ := f.do(t, http.MethodPost, "/api/lobbies/l1/join", map[string]interface{}{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestQueueFlow(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/queues", map[string]interface{}{
		"queue_id": "ranked",
		"config":   map[string]interface{}{"players_per_match": 2, "max_skill_diff": 100},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["queue"].(map[string]interface{})["players_per_match"])

	code, body = f.do(t, http.MethodPost, "/api/queues/ranked/join", map[string]interface{}{
		"player_id": "a", "username": "a", "skill_rating": 1500,
	})
	require.Equal(t, http.StatusOK, code)
	ticketID := body["ticket"].(map[string]interface{})["ticket_id"].(string)

	code, _ = f.do(t, http.MethodPost, "/api/queues/ranked/join", map[string]interface{}{"player_id": "a"})
	assert.Equal(t, http.StatusBadRequest, code, "second ticket for the same player")

	_, body = f.do(t, http.MethodGet, "/api/tickets/"+ticketID, nil)
	ticket := body["ticket"].(map[string]interface{})
	assert.Equal(t, "queued", ticket["status"])
	assert.Equal(t, "ranked", ticket["queue_id"])

	code, _ = f.do(t, http.MethodPost, "/api/queues/ranked/join", map[string]interface{}{
		"player_id": "b", "username": "b", "skill_rating": 1550,
	})
	require.Equal(t, http.StatusOK, code)

	matches, err := f.matcher.ProcessQueues()
	require.NoError(t, err)
	assert.Equal(t, 1, matches)

	_, body = f.do(t, http.MethodGet, "/api/lobbies", nil)
	lobbies := body["lobbies"].([]interface{})
	require.Len(t, lobbies, 1)
	assert.Equal(t, float64(2), lobbies[0].(map[string]interface{})["player_count"])

	code, _ = f.do(t, http.MethodGet, "/api/tickets/"+ticketID, nil)
	assert.Equal(t, http.StatusNotFound, code, "matched tickets leave the queue")

	code, _ = f.do(t, http.MethodDelete, "/api/queues/ranked", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodGet, "/api/queues/ranked", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLeaveQueue(t *testing.T) {
	f := newFixture(t)
	_, err := f.matcher.CreateQueue("q", matchmaking.DefaultQueueConfig())
	require.NoError(t, err)

	_, body := f.do(t, http.MethodPost, "/api/queues/q/join", map[string]interface{}{"player_id": "a"})
	ticketID := body["ticket"].(map[string]interface{})["ticket_id"].(string)

	code, _ := f.do(t, http.MethodPost, "/api/queues/q/leave", map[string]interface{}{"ticket_id": ticketID})
	require.Equal(t, http.StatusOK, code)
	_, body = f.do(t, http.MethodGet, "/api/queues/q", nil)
	assert.Equal(t, float64(0), body["queue"].(map[string]interface{})["queue_length"])
}

func TestJoinQueueWhileMatching(t *testing.T) {
	f := newFixture(t)
	_, err := f.matcher.CreateQueue("q", matchmaking.QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 1000})
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				f.matcher.ProcessQueues()
			}
		}
	}()

	for i := 0; i < 400; i++ {
		code, body := f.do(t, http.MethodPost, "/api/queues/q/join", map[string]interface{}{
			"player_id": fmt.Sprintf("p%d", i), "skill_rating": 1000 + i%50, "priority": i % 3,
		})
		require.Equal(t, http.StatusOK, code)
		ticket := body["ticket"].(map[string]interface{})
		assert.Equal(t, "queued", ticket["status"])
		assert.Equal(t, float64(i%3), ticket["priority"])
	}
	close(done)
	wg.Wait()
}

func TestBotEndpoints(t *testing.T) {
	f := newFixture(t)
	f.engine.CreateLobby("l1", lobby.DefaultConfig())

	code, body := f.do(t, http.MethodPost, "/api/lobbies/l1/bots/fill", map[string]interface{}{"profile": "expert"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(lobby.DefaultMaxBots), body["bots_added"])

	code, _ = f.do(t, http.MethodPost, "/api/lobbies/l1/bots", nil)
	assert.Equal(t, http.StatusBadRequest, code, "bot capacity reached")

	_, body = f.do(t, http.MethodGet, "/api/bots/stats", nil)
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(lobby.DefaultMaxBots), stats["total_bots"])
	assert.Equal(t, float64(lobby.DefaultMaxBots), stats["bots_in_lobbies"])

	_, body = f.do(t, http.MethodGet, "/api/bots/profiles", nil)
	profiles := body["profiles"].(map[string]interface{})
	assert.Contains(t, profiles, "expert")
	assert.Equal(t, "aggressive", profiles["expert"].(map[string]interface{})["behavior"])

	code, body = f.do(t, http.MethodPost, "/api/bots", map[string]interface{}{"profile": "beginner"})
	require.Equal(t, http.StatusOK, code)
	botID := body["bot"].(map[string]interface{})["bot_id"].(string)

	code, _ = f.do(t, http.MethodGet, "/api/bots/"+botID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodDelete, "/api/bots/"+botID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodGet, "/api/bots/"+botID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestKickRequiresPermission(t *testing.T) {
	f := newFixture(t)
	f.engine.CreateLobby("l1", lobby.DefaultConfig())
	f.do(t, http.MethodPost, "/api/lobbies/l1/join", map[string]interface{}{"player_id": "p1"})

	code, _ := f.do(t, http.MethodPost, "/api/lobbies/l1/kick", map[string]interface{}{"actor_id": "nobody", "player_id": "p1"})
	assert.Equal(t, http.StatusForbidden, code)

	f.engine.Permissions.AssignRole("mod", auth.RoleModerator)
	code, _ = f.do(t, http.MethodPost, "/api/lobbies/l1/kick", map[string]interface{}{"actor_id": "mod", "player_id": "p1"})
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, f.engine.GetPlayer("p1"))
}

func TestParties(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/api/parties", map[string]interface{}{"party_id": "pty", "leader_id": "a"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "a", body["party"].(map[string]interface{})["leader_id"])

	code, _ = f.do(t, http.MethodPost, "/api/parties/pty/members", map[string]interface{}{"player_id": "b"})
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPost, "/api/parties/pty/members", map[string]interface{}{"player_id": "b"})
	assert.Equal(t, http.StatusBadRequest, code)

	f.do(t, http.MethodDelete, "/api/parties/pty/members/a", nil)
	f.do(t, http.MethodDelete, "/api/parties/pty/members/b", nil)
	code, _ = f.do(t, http.MethodGet, "/api/parties/pty", nil)
	assert.Equal(t, http.StatusNotFound, code, "empty party is disbanded")
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	f.engine.CreateLobby("l1", lobby.DefaultConfig())
	f.engine.CreateLobby("l2", lobby.DefaultConfig())
	f.do(t, http.MethodPost, "/api/lobbies/l1/join", map[string]interface{}{"player_id": "p1"})

	_, body := f.do(t, http.MethodGet, "/api/admin/stats", nil)
	assert.Equal(t, float64(2), body["total_lobbies"])
	assert.Equal(t, float64(1), body["total_players"])

	_, body = f.do(t, http.MethodGet, "/api/admin/events?limit=1", nil)
	evs := body["events"].([]interface{})
	require.Len(t, evs, 1)
	assert.Equal(t, events.PlayerJoined, evs[0].(map[string]interface{})["event"])

	_, body = f.do(t, http.MethodGet, "/api/admin/analytics", nil)
	analytics := body["analytics"].(map[string]interface{})
	counts := analytics["event_counts"].(map[string]interface{})
	assert.Equal(t, float64(2), counts[events.LobbyCreated])

	code, _ := f.do(t, http.MethodPost, "/api/admin/lobbies/l1/kick", map[string]interface{}{"player_id": "p1"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodPost, "/api/admin/clear", map[string]interface{}{"type": "everything"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = f.do(t, http.MethodPost, "/api/admin/clear", map[string]interface{}{"type": "lobbies"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["lobbies_deleted"])
	assert.Empty(t, f.engine.LobbyIDs())
	assert.NotZero(t, f.engine.Bus.HistoryLen())

	f.do(t, http.MethodPost, "/api/admin/clear", nil)
	assert.Zero(t, f.engine.Bus.HistoryLen())
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.engine.CreateLobby("l1", lobby.DefaultConfig())

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `joinly_events_total{event="lobby_created"} 1`)
	assert.Contains(t, w.Body.String(), "joinly_lobbies 1")
}
