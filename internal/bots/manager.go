// internal/bots/manager.go
package bots

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/jason-s-yu/joinly/internal/worker"
	"github.com/sirupsen/logrus"
)

// DefaultTickInterval is how often the manager advances its bots.
const DefaultTickInterval = time.Second

// Manager creates bots and owns them for their whole life. Seated bots are
// also referenced by their lobby on the engine.
type Manager struct {
	mu   sync.Mutex
	bots map[string]*models.Bot

	engine  *lobby.Engine
	library *Library
	loop    *worker.Loop
	logger  logrus.FieldLogger
}

// NewManager builds a manager seating bots on engine. A nil library gets the
// built-in profiles.
func NewManager(engine *lobby.Engine, library *Library, interval time.Duration, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if library == nil {
		library = NewLibrary(time.Now().UnixNano())
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	m := &Manager{
		bots:    make(map[string]*models.Bot),
		engine:  engine,
		library: library,
		logger:  logger,
	}
	m.loop = worker.NewLoop("bot_ticker", interval, func(context.Context) error {
		m.UpdateAll()
		return nil
	}, logger)
	return m
}

func (m *Manager) Start(ctx context.Context) { m.loop.Start(ctx) }
func (m *Manager) Stop()                     { m.loop.Stop() }

func (m *Manager) Library() *Library { return m.library }

// CreateBot builds an unseated bot from the named profile.
func (m *Manager) CreateBot(profile string) *models.Bot {
	id := "bot_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	b := models.NewBotWithRoll(id, m.library.Get(profile), m.engine.Now(), m.library.roll())

	m.mu.Lock()
	m.bots[id] = b
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{"bot_id": id, "behavior": b.Behavior}).Debug("bot created")
	return b
}

// CreateBots builds count unseated bots.
func (m *Manager) CreateBots(count int, profile string) []*models.Bot {
	out := make([]*models.Bot, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, m.CreateBot(profile))
	}
	return out
}

// AddBotToLobby creates a bot and seats it. When the lobby refuses the bot
// it is discarded and nil is returned.
func (m *Manager) AddBotToLobby(lobbyID, profile string) *models.Bot {
	b := m.CreateBot(profile)
	if m.engine.AddBotToLobby(lobbyID, b) {
		return b
	}
	m.mu.Lock()
	delete(m.bots, b.ID)
	m.mu.Unlock()
	return nil
}

// RemoveBot unseats the bot if needed and forgets it.
func (m *Manager) RemoveBot(botID string) bool {
	m.mu.Lock()
	_, ok := m.bots[botID]
	delete(m.bots, botID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	if lobbyID, seated := m.engine.BotLobby(botID); seated {
		m.engine.RemoveBotFromLobby(lobbyID, botID)
	}
	return true
}

// Bot returns the live bot.
func (m *Manager) Bot(botID string) (*models.Bot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[botID]
	return b, ok
}

// GetBot returns a snapshot of a bot, or nil.
func (m *Manager) GetBot(botID string) map[string]interface{} {
	b, ok := m.Bot(botID)
	if !ok {
		return nil
	}
	return m.engine.BotSnapshots([]*models.Bot{b})[0]
}

// GetAllBots returns snapshots of every bot ordered by ID.
func (m *Manager) GetAllBots() []map[string]interface{} {
	return m.engine.BotSnapshots(m.all())
}

func (m *Manager) all() []*models.Bot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Bot, 0, len(m.bots))
	for _, b := range m.bots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FillLobbyWithBots seats bots until the lobby runs out of player room or
// bot room, whichever comes first.
func (m *Manager) FillLobbyWithBots(lobbyID, profile string) []*models.Bot {
	playerSlots, botSlots, ok := m.engine.OpenSlots(lobbyID)
	if !ok {
		return nil
	}
	n := min(playerSlots, botSlots)
	added := make([]*models.Bot, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if b := m.AddBotToLobby(lobbyID, profile); b != nil {
			added = append(added, b)
		}
	}
	if len(added) > 0 {
		m.logger.WithFields(logrus.Fields{"lobby_id": lobbyID, "count": len(added)}).Info("filled lobby with bots")
	}
	return added
}

// UpdateAll advances every bot and returns how many changed readiness.
func (m *Manager) UpdateAll() int {
	return m.engine.UpdateBots(m.all())
}

// Stats counts bots overall, per behavior, and seated.
func (m *Manager) Stats() map[string]interface{} {
	bots := m.all()
	byBehavior := make(map[string]int)
	seated := 0
	for _, b := range bots {
		byBehavior[string(b.Behavior)]++
		if _, ok := m.engine.BotLobby(b.ID); ok {
			seated++
		}
	}
	return map[string]interface{}{
		"total_bots":       len(bots),
		"bots_by_behavior": byBehavior,
		"bots_in_lobbies":  seated,
	}
}

// Profiles returns every profile template.
func (m *Manager) Profiles() map[string]Profile {
	return m.library.All()
}
