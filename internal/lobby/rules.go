// internal/lobby/rules.go
package lobby

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/sirupsen/logrus"
)

// Admission failures reported by the default rules.
var (
	ErrLobbyFull         = errors.New("lobby is full")
	ErrAlreadyInLobby    = errors.New("player already in lobby")
	ErrLobbyNotAccepting = errors.New("lobby is not accepting players")
)

// RuleFunc admits a player into a lobby by returning nil.
type RuleFunc func(l *Lobby, p *models.Player) error

// Rule is a named admission check.
type Rule struct {
	Name  string
	Check RuleFunc
}

// Actions checked by ValidateAction.
const (
	ActionStartMatch = "start_match"
	ActionAddBot     = "add_bot"
	ActionKickPlayer = "kick_player"
)

// ActionContext carries what ValidateAction needs to judge an action.
type ActionContext struct {
	Lobby         *Lobby
	BotCount      int
	MaxBots       int
	HasPermission bool
}

// RuleEngine is the ordered set of admission rules gating joins. Rules run in
// registration order and stop at the first rejection.
type RuleEngine struct {
	mu     sync.RWMutex
	rules  []Rule
	logger logrus.FieldLogger
}

// NewRuleEngine returns an engine loaded with the default rules.
func NewRuleEngine(logger logrus.FieldLogger) *RuleEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	re := &RuleEngine{logger: logger}
	re.AddRule("lobby_not_full", func(l *Lobby, _ *models.Player) error {
		if l.IsFull() {
			return ErrLobbyFull
		}
		return nil
	})
	re.AddRule("player_not_in_lobby", func(l *Lobby, p *models.Player) error {
		if l.HasPlayer(p.ID) {
			return ErrAlreadyInLobby
		}
		return nil
	})
	re.AddRule("lobby_accepting", func(l *Lobby, _ *models.Player) error {
		if !l.IsAccepting() {
			return ErrLobbyNotAccepting
		}
		return nil
	})
	return re
}

// AddRule appends a rule. It runs after every rule already registered.
func (re *RuleEngine) AddRule(name string, check RuleFunc) {
	re.mu.Lock()
	defer re.mu.Unlock()
	re.rules = append(re.rules, Rule{Name: name, Check: check})
}

// RemoveRule drops every rule registered under name.
func (re *RuleEngine) RemoveRule(name string) bool {
	re.mu.Lock()
	defer re.mu.Unlock()
	kept := re.rules[:0:0]
	for _, r := range re.rules {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	removed := len(kept) != len(re.rules)
	re.rules = kept
	return removed
}

// RuleNames lists the registered rules in evaluation order.
func (re *RuleEngine) RuleNames() []string {
	re.mu.RLock()
	defer re.mu.RUnlock()
	names := make([]string, len(re.rules))
	for i, r := range re.rules {
		names[i] = r.Name
	}
	return names
}

// CanJoin reports whether p may join l. A rule that errors or panics rejects.
func (re *RuleEngine) CanJoin(l *Lobby, p *models.Player) bool {
	re.mu.RLock()
	rules := re.rules
	re.mu.RUnlock()

	for _, r := range rules {
		if err := re.run(r, l, p); err != nil {
			re.logger.WithFields(logrus.Fields{
				"rule":      r.Name,
				"lobby_id":  l.ID,
				"player_id": p.ID,
			}).WithError(err).Debug("join rejected")
			return false
		}
	}
	return true
}

func (re *RuleEngine) run(r Rule, l *Lobby, p *models.Player) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rule %s panicked: %v", r.Name, rec)
			re.logger.WithField("rule", r.Name).Error(err)
		}
	}()
	return r.Check(l, p)
}

// ValidateAction judges a lobby action. Unknown actions are allowed.
func (re *RuleEngine) ValidateAction(action string, ctx ActionContext) bool {
	switch action {
	case ActionStartMatch:
		return ctx.Lobby != nil && ctx.Lobby.AllPlayersReady()
	case ActionAddBot:
		return ctx.BotCount < ctx.MaxBots
	case ActionKickPlayer:
		return ctx.HasPermission
	default:
		return true
	}
}
