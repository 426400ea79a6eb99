// internal/config/config_test.go
package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/matchmaking"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 30*time.Second, cfg.PresenceTimeout)
	assert.Equal(t, 10, cfg.File.Lobby.MaxPlayers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"PORT":                    "9000",
		"JOINLY_STORAGE":          "redis",
		"REDIS_DB":                "3",
		"JOINLY_PRESENCE_TIMEOUT": "45",
		"JOINLY_MATCH_INTERVAL":   "250ms",
		"JOINLY_LOG_FORMAT":       "json",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 45*time.Second, cfg.PresenceTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.MatchInterval)
	assert.NoError(t, cfg.Validate())

	_, ok := cfg.NewLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		"REDIS_DB":                "three",
		"JOINLY_CLEANUP_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Contains(t, err.Error(), "JOINLY_CLEANUP_INTERVAL")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage = StoragePostgres
	cfg.LogLevel = "loud"
	cfg.MatchInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "match interval")

	cfg = Default()
	cfg.Storage = "sqlite"
	assert.Error(t, cfg.Validate())
}

const sampleFile = `
lobby:
  max_players: 4
  max_bots: 2
  require_all_ready: true
queues:
  - id: ranked
    config:
      players_per_match: 2
      max_skill_diff: 100
      max_wait_time: 2m
  - id: casual
    config:
      players_per_match: 4
      team_mode: true
      team_size: 2
bot_profiles:
  - name: sparring
    skill_min: 1000
    skill_max: 1100
    behavior: aggressive
    auto_ready: true
    ready_delay: 1500ms
`

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joinly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0o600))

	cfg, err := LoadFrom(env(map[string]string{"JOINLY_CONFIG": path}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.File.Lobby.MaxPlayers)
	assert.Equal(t, 2, cfg.File.Lobby.MaxBots)
	assert.True(t, cfg.File.Lobby.RequireAllReady)

	require.Len(t, cfg.File.Queues, 2)
	assert.Equal(t, "ranked", cfg.File.Queues[0].ID)
	assert.Equal(t, 2, cfg.File.Queues[0].Config.PlayersPerMatch)
	assert.Equal(t, 2*time.Minute, cfg.File.Queues[0].Config.MaxWaitTime)
	assert.True(t, cfg.File.Queues[1].Config.TeamMode)

	require.Len(t, cfg.File.BotProfiles, 1)
	p := cfg.File.BotProfiles[0]
	assert.Equal(t, models.BehaviorAggressive, p.Behavior)
	assert.Equal(t, 1500*time.Millisecond, p.ReadyDelay)
}

func TestLoadYAMLDuplicateQueue(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.parseFile([]byte("queues:\n  - id: a\n  - id: a\n")))
	assert.Error(t, cfg.Validate())
}

func TestLoadYAMLQueueDefaults(t *testing.T) {
	cfg := Default()
	raw := "queues: [{id: ranked, config: {players_per_match: 2, priority_enabled: true}}]\n"
	require.NoError(t, cfg.parseFile([]byte(raw)))
	require.Len(t, cfg.File.Queues, 1)

	def := matchmaking.DefaultQueueConfig()
	got := cfg.File.Queues[0].Config
	assert.Equal(t, 2, got.PlayersPerMatch)
	assert.True(t, got.PriorityEnabled)
	assert.Equal(t, 200, got.MaxSkillDiff)
	assert.Equal(t, 50, got.SkillExpansion)
	assert.Equal(t, def.SkillExpansionInterval, got.SkillExpansionInterval)
	assert.Equal(t, def.MaxWaitTime, got.MaxWaitTime)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine := lobby.NewEngine(events.NewBus(logger), lobby.WithLogger(logger))
	matcher := matchmaking.NewMatcher(engine, matchmaking.WithLogger(logger))
	q, err := matcher.CreateQueue(cfg.File.Queues[0].ID, got)
	require.NoError(t, err)
	assert.Equal(t, 200, q.Config.MaxSkillDiff)
	assert.Equal(t, 50, q.Config.SkillExpansion)
	assert.Equal(t, 200, q.ToMap()["max_skill_diff"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{"JOINLY_CONFIG": "/nonexistent/joinly.yaml"}))
	assert.Error(t, err)
}
