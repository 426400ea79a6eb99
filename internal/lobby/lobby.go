// internal/lobby/lobby.go
package lobby

import (
	"sort"
	"time"

	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/models"
)

// State is a lobby's position in its readiness state machine.
type State string

const (
	StateWaiting State = "waiting"
	StateOpen    State = "open"
	StateReady   State = "ready"
)

const (
	DefaultMaxPlayers = 10
	DefaultMaxBots    = 4
)

// Config describes a lobby at creation time.
type Config struct {
	MaxPlayers      int                    `json:"max_players" yaml:"max_players"`
	MaxBots         int                    `json:"max_bots" yaml:"max_bots"`
	RequireAllReady bool                   `json:"require_all_ready" yaml:"require_all_ready"`
	// Open lobbies idle in the "open" state instead of "waiting".
	Open     bool                   `json:"open" yaml:"open"`
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DefaultConfig returns the configuration used when a caller supplies none.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:      DefaultMaxPlayers,
		MaxBots:         DefaultMaxBots,
		RequireAllReady: true,
	}
}

// ConfigFromMap reads a loosely typed config, as decoded from JSON. Missing
// keys take their defaults.
func ConfigFromMap(m map[string]interface{}) Config {
	return DefaultConfig().Merge(m)
}

// Merge overlays the keys present in m onto c.
func (c Config) Merge(m map[string]interface{}) Config {
	cfg := c
	if v, ok := numberFrom(m["max_players"]); ok {
		cfg.MaxPlayers = v
	}
	if v, ok := numberFrom(m["max_bots"]); ok {
		cfg.MaxBots = v
	}
	if v, ok := m["require_all_ready"].(bool); ok {
		cfg.RequireAllReady = v
	}
	if v, ok := m["open"].(bool); ok {
		cfg.Open = v
	}
	if v, ok := m["metadata"].(map[string]interface{}); ok {
		cfg.Metadata = v
	}
	return cfg
}

func numberFrom(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Lobby is one lobby's membership and readiness state. It is not safe for
// concurrent use on its own; every method expects the owning Engine's lock.
type Lobby struct {
	ID              string
	State           State
	MaxPlayers      int
	MaxBots         int
	RequireAllReady bool
	Players         map[string]*models.Player
	Bots            map[string]*models.Bot
	CreatedAt       time.Time
	Metadata        map[string]interface{}

	// baseState is where the lobby returns when it stops being ready.
	baseState State
	bus       *events.Bus
}

func newLobby(id string, cfg Config, bus *events.Bus, now time.Time) *Lobby {
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = DefaultMaxPlayers
	}
	if cfg.MaxBots < 0 {
		cfg.MaxBots = 0
	}
	base := StateWaiting
	if cfg.Open {
		base = StateOpen
	}
	metadata := make(map[string]interface{}, len(cfg.Metadata))
	for k, v := range cfg.Metadata {
		metadata[k] = v
	}
	return &Lobby{
		ID:              id,
		State:           base,
		MaxPlayers:      cfg.MaxPlayers,
		MaxBots:         cfg.MaxBots,
		RequireAllReady: cfg.RequireAllReady,
		Players:         make(map[string]*models.Player),
		Bots:            make(map[string]*models.Bot),
		CreatedAt:       now,
		Metadata:        metadata,
		baseState:       base,
		bus:             bus,
	}
}

func (l *Lobby) PlayerCount() int { return len(l.Players) }
func (l *Lobby) BotCount() int    { return len(l.Bots) }

func (l *Lobby) IsFull() bool {
	return len(l.Players) >= l.MaxPlayers
}

func (l *Lobby) HasPlayer(playerID string) bool {
	_, ok := l.Players[playerID]
	return ok
}

// IsAccepting reports whether the lobby's state admits new players.
func (l *Lobby) IsAccepting() bool {
	return l.State == StateWaiting || l.State == StateOpen
}

func (l *Lobby) addPlayer(p *models.Player) bool {
	if l.IsFull() || l.HasPlayer(p.ID) {
		return false
	}
	l.Players[p.ID] = p
	p.LobbyID = l.ID
	return true
}

func (l *Lobby) removePlayer(playerID string) *models.Player {
	p, ok := l.Players[playerID]
	if !ok {
		return nil
	}
	delete(l.Players, playerID)
	return p
}

func (l *Lobby) addBot(b *models.Bot) bool {
	if len(l.Bots) >= l.MaxBots {
		return false
	}
	if _, ok := l.Bots[b.ID]; ok {
		return false
	}
	l.Bots[b.ID] = b
	b.LobbyID = l.ID
	return true
}

func (l *Lobby) removeBot(botID string) *models.Bot {
	b, ok := l.Bots[botID]
	if !ok {
		return nil
	}
	delete(l.Bots, botID)
	return b
}

// AllPlayersReady reports whether the lobby has players and all are ready.
// Bots are never required.
func (l *Lobby) AllPlayersReady() bool {
	if len(l.Players) == 0 {
		return false
	}
	for _, p := range l.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// CheckAllReady re-evaluates the ready state. The lobby is ready exactly when
// it requires all-ready, has players, and every player is ready; otherwise a
// ready lobby falls back to its base state. lobby_all_ready is emitted only
// on the transition into ready.
func (l *Lobby) CheckAllReady() bool {
	ready := l.RequireAllReady && l.AllPlayersReady()
	switch {
	case ready && l.State != StateReady:
		l.State = StateReady
		if l.bus != nil {
			l.bus.Emit(events.LobbyAllReady, map[string]interface{}{"lobby_id": l.ID})
		}
	case !ready && l.State == StateReady:
		l.State = l.baseState
	}
	return ready
}

// tick advances every seated bot and reports the bots whose readiness changed.
func (l *Lobby) tick(now time.Time) []*models.Bot {
	var changed []*models.Bot
	for _, id := range sortedKeys(l.Bots) {
		b := l.Bots[id]
		if b.Tick(now) {
			changed = append(changed, b)
		}
	}
	return changed
}

// ToMap renders the transport-safe snapshot of the lobby.
func (l *Lobby) ToMap() map[string]interface{} {
	players := make([]map[string]interface{}, 0, len(l.Players))
	for _, id := range sortedKeys(l.Players) {
		players = append(players, l.Players[id].ToMap())
	}
	bots := make([]map[string]interface{}, 0, len(l.Bots))
	for _, id := range sortedKeys(l.Bots) {
		bots = append(bots, l.Bots[id].ToMap())
	}
	metadata := make(map[string]interface{}, len(l.Metadata))
	for k, v := range l.Metadata {
		metadata[k] = v
	}
	return map[string]interface{}{
		"lobby_id":     l.ID,
		"state":        string(l.State),
		"player_count": len(l.Players),
		"bot_count":    len(l.Bots),
		"max_players":  l.MaxPlayers,
		"max_bots":     l.MaxBots,
		"players":      players,
		"bots":         bots,
		"created_at":   float64(l.CreatedAt.UnixNano()) / float64(time.Second),
		"metadata":     metadata,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
