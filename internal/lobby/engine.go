// internal/lobby/engine.go
package lobby

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/joinly/internal/auth"
	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrLobbyExists   = errors.New("lobby already exists")
	ErrLobbyNotFound = errors.New("lobby not found")
	ErrPlayerSeated  = errors.New("player already seated in a lobby")
	ErrMatchRejected = errors.New("match players could not be seated")
)

// Engine is the authoritative owner of every lobby, seated player, seated bot
// and party. One mutex guards the whole graph; helpers with an Unsafe suffix
// expect it to be held.
//
// Events are emitted while the lock is held, so bus listeners must not call
// back into the Engine.
type Engine struct {
	mu sync.Mutex

	lobbies map[string]*Lobby
	players map[string]*models.Player
	bots    map[string]*models.Bot
	parties map[string]*models.Party

	Bus         *events.Bus
	Rules       *RuleEngine
	Permissions *auth.PermissionManager

	clock  models.Clock
	logger logrus.FieldLogger
}

// Option customizes an Engine.
type Option func(*Engine)

func WithClock(c models.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithRules(re *RuleEngine) Option {
	return func(e *Engine) { e.Rules = re }
}

func WithPermissions(pm *auth.PermissionManager) Option {
	return func(e *Engine) { e.Permissions = pm }
}

// NewEngine builds an engine emitting on bus. A nil bus gets a private one.
func NewEngine(bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		lobbies: make(map[string]*Lobby),
		players: make(map[string]*models.Player),
		bots:    make(map[string]*models.Bot),
		parties: make(map[string]*models.Party),
		Bus:     bus,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.Bus == nil {
		e.Bus = events.NewBus(e.logger)
	}
	if e.Rules == nil {
		e.Rules = NewRuleEngine(e.logger)
	}
	if e.Permissions == nil {
		e.Permissions = auth.NewPermissionManager()
	}
	return e
}

// Now reads the engine's clock.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// CreateLobby registers a new lobby. An empty id gets a generated one. A
// duplicate id is refused with ErrLobbyExists; the existing lobby is untouched.
func (e *Engine) CreateLobby(id string, cfg Config) (*Lobby, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createLobbyUnsafe(id, cfg)
}

func (e *Engine) createLobbyUnsafe(id string, cfg Config) (*Lobby, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := e.lobbies[id]; exists {
		return nil, fmt.Errorf("create lobby %s: %w", id, ErrLobbyExists)
	}
	l := newLobby(id, cfg, e.Bus, e.Now())
	e.lobbies[id] = l
	e.logger.WithField("lobby_id", id).Info("lobby created")
	e.Bus.Emit(events.LobbyCreated, map[string]interface{}{
		"lobby_id":    id,
		"max_players": l.MaxPlayers,
		"max_bots":    l.MaxBots,
	})
	return l, nil
}

// DeleteLobby evicts every player and bot through the normal remove paths,
// then drops the lobby. It reports whether the lobby existed.
func (e *Engine) DeleteLobby(lobbyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleteLobbyUnsafe(lobbyID)
}

func (e *Engine) deleteLobbyUnsafe(lobbyID string) bool {
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	for _, id := range sortedKeys(l.Players) {
		e.removePlayerUnsafe(l, id, "lobby_deleted")
	}
	for _, id := range sortedKeys(l.Bots) {
		e.removeBotUnsafe(l, id)
	}
	for _, party := range e.parties {
		if party.LobbyID == lobbyID {
			party.LobbyID = ""
		}
	}
	delete(e.lobbies, lobbyID)
	e.logger.WithField("lobby_id", lobbyID).Info("lobby deleted")
	e.Bus.Emit(events.LobbyDeleted, map[string]interface{}{"lobby_id": lobbyID})
	return true
}

// AddPlayerToLobby seats p in the lobby if every admission rule passes. It
// returns false, with nothing mutated, when the lobby is missing, a rule
// rejects, or p is already seated in another lobby.
func (e *Engine) AddPlayerToLobby(lobbyID string, p *models.Player) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addPlayerUnsafe(lobbyID, p)
}

func (e *Engine) addPlayerUnsafe(lobbyID string, p *models.Player) bool {
	if p == nil {
		return false
	}
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	if !e.Rules.CanJoin(l, p) {
		return false
	}
	if seated, ok := e.players[p.ID]; ok {
		e.logger.WithFields(logrus.Fields{
			"lobby_id":  lobbyID,
			"player_id": p.ID,
			"seated_in": seated.LobbyID,
		}).Warn("player already seated elsewhere")
		return false
	}
	if !l.addPlayer(p) {
		return false
	}
	e.players[p.ID] = p
	e.Bus.Emit(events.PlayerJoined, map[string]interface{}{
		"lobby_id":  lobbyID,
		"player_id": p.ID,
		"username":  p.Username,
	})
	l.CheckAllReady()
	return true
}

// RemovePlayerFromLobby unseats a player. Removing an absent player is a
// no-op that emits nothing.
func (e *Engine) RemovePlayerFromLobby(lobbyID, playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	return e.removePlayerUnsafe(l, playerID, "left")
}

func (e *Engine) removePlayerUnsafe(l *Lobby, playerID, reason string) bool {
	p := l.removePlayer(playerID)
	if p == nil {
		return false
	}
	delete(e.players, playerID)
	p.LobbyID = ""
	p.Ready = false
	p.Team = nil
	e.Bus.Emit(events.PlayerLeft, map[string]interface{}{
		"lobby_id":  l.ID,
		"player_id": playerID,
		"reason":    reason,
	})
	l.CheckAllReady()
	return true
}

// SetPlayerReady updates a seated player's readiness and re-checks the lobby.
func (e *Engine) SetPlayerReady(lobbyID, playerID string, ready bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	p, ok := l.Players[playerID]
	if !ok {
		return false
	}
	p.SetReady(ready)
	e.Bus.Emit(events.PlayerReadyChanged, map[string]interface{}{
		"lobby_id":  lobbyID,
		"player_id": playerID,
		"ready":     ready,
	})
	l.CheckAllReady()
	return true
}

// AddBotToLobby seats a bot if the lobby has bot capacity. The bot's join
// time is reset so its ready delay counts from the moment it is seated.
func (e *Engine) AddBotToLobby(lobbyID string, b *models.Bot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addBotUnsafe(lobbyID, b)
}

func (e *Engine) addBotUnsafe(lobbyID string, b *models.Bot) bool {
	if b == nil {
		return false
	}
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	if !e.Rules.ValidateAction(ActionAddBot, ActionContext{Lobby: l, BotCount: l.BotCount(), MaxBots: l.MaxBots}) {
		return false
	}
	if _, seated := e.bots[b.ID]; seated {
		return false
	}
	if !l.addBot(b) {
		return false
	}
	now := e.Now()
	b.JoinedAt = now
	b.LastAction = now
	b.Ready = false
	e.bots[b.ID] = b
	e.Bus.Emit(events.BotJoined, map[string]interface{}{
		"lobby_id": lobbyID,
		"bot_id":   b.ID,
		"username": b.Username,
	})
	return true
}

// RemoveBotFromLobby unseats a bot; absent bots are a no-op.
func (e *Engine) RemoveBotFromLobby(lobbyID, botID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	return e.removeBotUnsafe(l, botID)
}

func (e *Engine) removeBotUnsafe(l *Lobby, botID string) bool {
	b := l.removeBot(botID)
	if b == nil {
		return false
	}
	delete(e.bots, botID)
	b.LobbyID = ""
	b.Ready = false
	e.Bus.Emit(events.BotLeft, map[string]interface{}{
		"lobby_id": l.ID,
		"bot_id":   botID,
	})
	l.CheckAllReady()
	return true
}

// Tick advances time-dependent state: seated bots may auto-ready, and each
// change re-checks its lobby.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.Now()
	for _, id := range sortedKeys(e.lobbies) {
		l := e.lobbies[id]
		e.emitBotChangesUnsafe(l, l.tick(now))
	}
}

// UpdateBots runs Update on the given bots. Seated bots that change
// readiness trigger their lobby's all-ready check.
func (e *Engine) UpdateBots(bots []*models.Bot) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.Now()
	changed := 0
	for _, b := range bots {
		if !b.Update(now) {
			continue
		}
		changed++
		if l, ok := e.lobbies[b.LobbyID]; ok && l.Bots[b.ID] == b {
			e.emitBotChangesUnsafe(l, []*models.Bot{b})
		}
	}
	return changed
}

func (e *Engine) emitBotChangesUnsafe(l *Lobby, changed []*models.Bot) {
	if len(changed) == 0 {
		return
	}
	for _, b := range changed {
		e.Bus.Emit(events.BotReadyChanged, map[string]interface{}{
			"lobby_id": l.ID,
			"bot_id":   b.ID,
			"ready":    b.Ready,
		})
	}
	l.CheckAllReady()
}

// Heartbeat refreshes a seated player's presence.
func (e *Engine) Heartbeat(playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[playerID]
	if !ok {
		return false
	}
	p.Heartbeat(e.Now())
	return true
}

// StalePlayers lists seated players whose last heartbeat is older than timeout.
func (e *Engine) StalePlayers(timeout time.Duration) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.Now()
	var stale []string
	for _, id := range sortedKeys(e.players) {
		if !e.players[id].IsAlive(now, timeout) {
			stale = append(stale, id)
		}
	}
	return stale
}

// DisconnectIfStale marks a player disconnected and unseats it when its
// heartbeat is still older than timeout. The check is repeated under the lock
// so a heartbeat arriving after StalePlayers wins.
func (e *Engine) DisconnectIfStale(playerID string, timeout time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[playerID]
	if !ok || p.IsAlive(e.Now(), timeout) {
		return false
	}
	p.Connected = false
	lobbyID := p.LobbyID
	if l, ok := e.lobbies[lobbyID]; ok {
		e.removePlayerUnsafe(l, playerID, "disconnected")
	} else {
		delete(e.players, playerID)
	}
	e.logger.WithFields(logrus.Fields{"player_id": playerID, "lobby_id": lobbyID}).Info("player timed out")
	e.Bus.Emit(events.PlayerDisconnected, map[string]interface{}{
		"player_id": playerID,
		"lobby_id":  lobbyID,
	})
	return true
}

// OnlineCount counts seated players currently marked connected.
func (e *Engine) OnlineCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// KickPlayer removes playerID from the lobby on behalf of actorID, who must
// hold the kick_player permission.
func (e *Engine) KickPlayer(actorID, lobbyID, playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	allowed := e.Permissions.Has(actorID, auth.PermKickPlayer)
	if !e.Rules.ValidateAction(ActionKickPlayer, ActionContext{Lobby: l, HasPermission: allowed}) {
		return false
	}
	if !e.removePlayerUnsafe(l, playerID, "kicked") {
		return false
	}
	e.Bus.Emit(events.PlayerKicked, map[string]interface{}{
		"lobby_id":  lobbyID,
		"player_id": playerID,
		"kicked_by": actorID,
	})
	return true
}

// CanStartMatch reports whether the lobby passes the start_match check.
func (e *Engine) CanStartMatch(lobbyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	return e.Rules.ValidateAction(ActionStartMatch, ActionContext{Lobby: l})
}

// CreateMatch creates a lobby and seats every player in it as one step. If
// any player cannot be seated nothing is left behind: no lobby, no seats, no
// events. Players are checked against a detached copy of the lobby first.
func (e *Engine) CreateMatch(lobbyID string, cfg Config, players []*models.Player, metadata map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lobbyID == "" {
		lobbyID = uuid.NewString()
	}
	if _, exists := e.lobbies[lobbyID]; exists {
		return fmt.Errorf("create match %s: %w", lobbyID, ErrLobbyExists)
	}
	for _, p := range players {
		if p == nil {
			return fmt.Errorf("create match %s: nil player: %w", lobbyID, ErrMatchRejected)
		}
		if _, seated := e.players[p.ID]; seated {
			return fmt.Errorf("create match %s: player %s: %w", lobbyID, p.ID, ErrPlayerSeated)
		}
	}
	if cfg.Metadata == nil {
		cfg.Metadata = metadata
	}

	scratch := newLobby(lobbyID, cfg, nil, e.Now())
	for _, p := range players {
		seat := *p
		if !e.Rules.CanJoin(scratch, &seat) || !scratch.addPlayer(&seat) {
			return fmt.Errorf("create match %s: player %s: %w", lobbyID, p.ID, ErrMatchRejected)
		}
	}

	l, err := e.createLobbyUnsafe(lobbyID, cfg)
	if err != nil {
		return err
	}
	for _, p := range players {
		if !e.addPlayerUnsafe(l.ID, p) {
			e.deleteLobbyUnsafe(l.ID)
			return fmt.Errorf("create match %s: player %s: %w", l.ID, p.ID, ErrMatchRejected)
		}
	}
	return nil
}

// View runs fn with the lobby while holding the engine lock. fn must not call
// back into the Engine.
func (e *Engine) View(lobbyID string, fn func(*Lobby)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return false
	}
	fn(l)
	return true
}

// GetLobby returns a snapshot of the lobby, or nil if it does not exist.
func (e *Engine) GetLobby(lobbyID string) map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return nil
	}
	return l.ToMap()
}

// HasLobby reports whether lobbyID exists.
func (e *Engine) HasLobby(lobbyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.lobbies[lobbyID]
	return ok
}

// GetAllLobbies returns snapshots of every lobby ordered by ID.
func (e *Engine) GetAllLobbies() []map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(e.lobbies))
	for _, id := range sortedKeys(e.lobbies) {
		out = append(out, e.lobbies[id].ToMap())
	}
	return out
}

// LobbyIDs lists every lobby ID in order.
func (e *Engine) LobbyIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.lobbies)
}

// GetPlayer returns a snapshot of a seated player, or nil.
func (e *Engine) GetPlayer(playerID string) map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[playerID]
	if !ok {
		return nil
	}
	return p.ToMap()
}

// GetAllPlayers returns snapshots of every seated player ordered by ID.
func (e *Engine) GetAllPlayers() []map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(e.players))
	for _, id := range sortedKeys(e.players) {
		out = append(out, e.players[id].ToMap())
	}
	return out
}

// PlayerLobby returns the lobby a player is seated in.
func (e *Engine) PlayerLobby(playerID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[playerID]
	if !ok {
		return "", false
	}
	return p.LobbyID, true
}

// Stats summarizes the engine's population.
func (e *Engine) Stats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ready := 0
	for _, l := range e.lobbies {
		if l.State == StateReady {
			ready++
		}
	}
	return map[string]interface{}{
		"total_lobbies": len(e.lobbies),
		"ready_lobbies": ready,
		"total_players": len(e.players),
		"total_bots":    len(e.bots),
		"total_parties": len(e.parties),
	}
}

// BotLobby returns the lobby a bot is seated in.
func (e *Engine) BotLobby(botID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bots[botID]
	if !ok {
		return "", false
	}
	return b.LobbyID, true
}

// BotSnapshots renders bots under the engine lock, since seated bots are
// mutated by Tick.
func (e *Engine) BotSnapshots(bots []*models.Bot) []map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.ToMap())
	}
	return out
}

// OpenSlots reports how many more players and bots a lobby can take.
func (e *Engine) OpenSlots(lobbyID string) (players, bots int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lobbies[lobbyID]
	if !ok {
		return 0, 0, false
	}
	return l.MaxPlayers - l.PlayerCount(), l.MaxBots - l.BotCount(), true
}
