// internal/bots/bots_test.go
package bots

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, now *time.Time) (*Manager, *lobby.Engine) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine := lobby.NewEngine(events.NewBus(logger), lobby.WithLogger(logger), lobby.WithClock(func() time.Time { return *now }))
	return NewManager(engine, NewLibrary(42), time.Hour, logger), engine
}

func TestLibraryProfiles(t *testing.T) {
	lib := NewLibrary(1)
	assert.Equal(t, []string{"beginner", "default", "expert", "intermediate", "master"}, lib.Names())

	for i := 0; i < 50; i++ {
		p := lib.Get("expert")
		assert.GreaterOrEqual(t, p.SkillRating, 1400)
		assert.LessOrEqual(t, p.SkillRating, 1800)
		assert.Equal(t, models.BehaviorAggressive, p.Behavior)
		assert.True(t, strings.HasPrefix(p.Username, "Expert"), p.Username)
	}

	p := lib.Get("no_such_profile")
	assert.Equal(t, 1000, p.SkillRating)
	assert.True(t, strings.HasPrefix(p.Username, "Bot"))
	assert.Equal(t, "default", p.Metadata["profile"])
}

func TestLibraryAdd(t *testing.T) {
	lib := NewLibrary(1)
	lib.Add(Profile{Name: "custom", SkillMin: 300, SkillMax: 100, Behavior: "weird"})
	p := lib.Get("custom")
	assert.Equal(t, 300, p.SkillRating)
	assert.Equal(t, models.BehaviorNormal, p.Behavior)
	assert.True(t, lib.Has("custom"))
}

func TestCreateAndRemoveBots(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, engine := newManager(t, &now)
	engine.CreateLobby("l1", lobby.DefaultConfig())

	created := m.CreateBots(3, "beginner")
	require.Len(t, created, 3)
	for _, b := range created {
		assert.True(t, strings.HasPrefix(b.ID, "bot_"))
		assert.Len(t, b.ID, len("bot_")+8)
	}

	seated := m.AddBotToLobby("l1", "master")
	require.NotNil(t, seated)
	assert.Nil(t, m.AddBotToLobby("missing", "master"))

	stats := m.Stats()
	assert.Equal(t, 4, stats["total_bots"])
	assert.Equal(t, 1, stats["bots_in_lobbies"])
	assert.Equal(t, 3, stats["bots_by_behavior"].(map[string]int)["passive"])

	assert.True(t, m.RemoveBot(seated.ID))
	assert.False(t, m.RemoveBot(seated.ID))
	assert.Equal(t, 0, engine.GetLobby("l1")["bot_count"])
	assert.Len(t, m.GetAllBots(), 3)
	assert.Nil(t, m.GetBot(seated.ID))
}

func TestFillLobbyWithBots(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, engine := newManager(t, &now)
	engine.CreateLobby("l1", lobby.Config{MaxPlayers: 4, MaxBots: 3, RequireAllReady: true})
	engine.AddPlayerToLobby("l1", models.NewPlayerAt("p1", "p1", nil, now))
	engine.AddPlayerToLobby("l1", models.NewPlayerAt("p2", "p2", nil, now))

	added := m.FillLobbyWithBots("l1", "default")
	assert.Len(t, added, 2, "limited by free player slots")
	assert.Empty(t, m.FillLobbyWithBots("missing", "default"))
}

func TestUpdateAllReadiesSeatedBots(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, engine := newManager(t, &now)
	engine.CreateLobby("l1", lobby.DefaultConfig())
	b := m.AddBotToLobby("l1", "expert")
	require.NotNil(t, b)

	assert.Equal(t, 0, m.UpdateAll())
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, m.UpdateAll())
	assert.Equal(t, true, m.GetBot(b.ID)["ready"])
}
