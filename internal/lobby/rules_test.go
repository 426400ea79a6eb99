// internal/lobby/rules_test.go
package lobby

import (
	"testing"
	"time"

	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDefaultRuleOrder(t *testing.T) {
	re := NewRuleEngine(nil)
	assert.Equal(t, []string{"lobby_not_full", "player_not_in_lobby", "lobby_accepting"}, re.RuleNames())
	assert.False(t, re.RemoveRule("nonexistent"))
}

func TestRulesShortCircuit(t *testing.T) {
	re := NewRuleEngine(nil)
	l := newLobby("l1", Config{MaxPlayers: 1}, nil, time.Now())
	l.addPlayer(models.NewPlayer("p1", "a", nil))

	called := false
	re.AddRule("later", func(*Lobby, *models.Player) error {
		called = true
		return nil
	})
	assert.False(t, re.CanJoin(l, models.NewPlayer("p2", "b", nil)))
	assert.False(t, called, "rules after a rejection do not run")
}

func TestValidateAction(t *testing.T) {
	re := NewRuleEngine(nil)
	l := newLobby("l1", DefaultConfig(), nil, time.Now())
	p := models.NewPlayer("p1", "a", nil)
	l.addPlayer(p)

	assert.False(t, re.ValidateAction(ActionStartMatch, ActionContext{Lobby: l}))
	p.SetReady(true)
	assert.True(t, re.ValidateAction(ActionStartMatch, ActionContext{Lobby: l}))

	assert.True(t, re.ValidateAction(ActionAddBot, ActionContext{BotCount: 1, MaxBots: 2}))
	assert.False(t, re.ValidateAction(ActionAddBot, ActionContext{BotCount: 2, MaxBots: 2}))
	assert.False(t, re.ValidateAction(ActionKickPlayer, ActionContext{}))
	assert.True(t, re.ValidateAction("dance", ActionContext{}))
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]interface{}{"max_players": 6.0, "require_all_ready": false, "open": true})
	assert.Equal(t, 6, cfg.MaxPlayers)
	assert.Equal(t, DefaultMaxBots, cfg.MaxBots)
	assert.False(t, cfg.RequireAllReady)
	assert.True(t, cfg.Open)
}
