package models

import (
	"math/rand"
	"time"
)

// Behavior is the closed set of bot personalities. Each one scales the
// bot's configured ready delay differently.
type Behavior string

const (
	BehaviorNormal     Behavior = "normal"
	BehaviorAggressive Behavior = "aggressive"
	BehaviorPassive    Behavior = "passive"
	BehaviorRandom     Behavior = "random"
)

// Behaviors lists every supported behavior.
var Behaviors = []Behavior{BehaviorNormal, BehaviorAggressive, BehaviorPassive, BehaviorRandom}

// ParseBehavior maps a name to a Behavior; unknown names become normal.
func ParseBehavior(name string) Behavior {
	switch Behavior(name) {
	case BehaviorAggressive, BehaviorPassive, BehaviorRandom:
		return Behavior(name)
	default:
		return BehaviorNormal
	}
}

// delayScale returns the [lo, hi) multiplier range applied to the ready delay.
func (b Behavior) delayScale() (lo, hi float64) {
	switch b {
	case BehaviorAggressive:
		return 0.5, 0.5
	case BehaviorPassive:
		return 1.5, 1.5
	case BehaviorRandom:
		return 0.5, 2.0
	default:
		return 1.0, 1.0
	}
}

// actionInterval is how often the behavior refreshes LastAction; zero means never.
func (b Behavior) actionInterval() time.Duration {
	switch b {
	case BehaviorAggressive:
		return time.Second
	case BehaviorPassive:
		return 5 * time.Second
	default:
		return 0
	}
}

// EffectiveDelay scales base by the behavior. roll must be in [0, 1) and only
// matters for behaviors with a range (random).
func (b Behavior) EffectiveDelay(base time.Duration, roll float64) time.Duration {
	lo, hi := b.delayScale()
	return time.Duration(float64(base) * (lo + (hi-lo)*roll))
}

// BotProfile is the template a bot is created from.
type BotProfile struct {
	Username    string                 `json:"username" yaml:"username"`
	SkillRating int                    `json:"skill_rating" yaml:"skill_rating"`
	Behavior    Behavior               `json:"behavior" yaml:"behavior"`
	AutoReady   bool                   `json:"auto_ready" yaml:"auto_ready"`
	ReadyDelay  time.Duration          `json:"ready_delay" yaml:"ready_delay"`
	Metadata    map[string]interface{} `json:"metadata" yaml:"metadata"`
}

// Bot is a simulated participant. It is seated like a player but never
// counts toward a lobby's all-ready check.
type Bot struct {
	ID          string                 `json:"bot_id"`
	Username    string                 `json:"username"`
	Ready       bool                   `json:"ready"`
	Team        *int                   `json:"team"`
	LobbyID     string                 `json:"lobby_id,omitempty"`
	SkillRating int                    `json:"skill_rating"`
	Behavior    Behavior               `json:"behavior"`
	AutoReady   bool                   `json:"auto_ready"`
	ReadyDelay  time.Duration          `json:"ready_delay"`
	JoinedAt    time.Time              `json:"joined_at"`
	LastAction  time.Time              `json:"last_action"`
	Metadata    map[string]interface{} `json:"metadata"`

	// readyAfter is the behavior-scaled delay, rolled once per bot.
	readyAfter time.Duration
}

// NewBot creates a bot from a profile.
func NewBot(id string, profile BotProfile, now time.Time) *Bot {
	return NewBotWithRoll(id, profile, now, rand.Float64())
}

// NewBotWithRoll is NewBot with the random-behavior roll supplied by the caller.
func NewBotWithRoll(id string, profile BotProfile, now time.Time, roll float64) *Bot {
	username := profile.Username
	if username == "" {
		short := id
		if len(short) > 4 {
			short = short[:4]
		}
		username = "Bot_" + short
	}
	skill := profile.SkillRating
	if skill == 0 {
		skill = DefaultSkillRating
	}
	behavior := ParseBehavior(string(profile.Behavior))
	metadata := profile.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Bot{
		ID:          id,
		Username:    username,
		SkillRating: skill,
		Behavior:    behavior,
		AutoReady:   profile.AutoReady,
		ReadyDelay:  profile.ReadyDelay,
		JoinedAt:    now,
		LastAction:  now,
		Metadata:    copyMetadata(metadata),
		readyAfter:  behavior.EffectiveDelay(profile.ReadyDelay, roll),
	}
}

// ReadyAfter is how long after JoinedAt an auto-ready bot flips to ready.
func (b *Bot) ReadyAfter() time.Duration {
	return b.readyAfter
}

func (b *Bot) SetTeam(team int) {
	b.Team = &team
}

// Update flips the bot to ready once its scaled delay has elapsed. It reports
// whether readiness changed.
func (b *Bot) Update(now time.Time) bool {
	if !b.AutoReady || b.Ready {
		return false
	}
	if now.Sub(b.JoinedAt) > b.readyAfter {
		b.Ready = true
		return true
	}
	return false
}

// Tick advances the bot's simulated activity, then runs Update.
func (b *Bot) Tick(now time.Time) bool {
	if interval := b.Behavior.actionInterval(); interval > 0 && now.Sub(b.LastAction) > interval {
		b.LastAction = now
	}
	return b.Update(now)
}

// ToMap renders the transport-safe snapshot of the bot.
func (b *Bot) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"bot_id":       b.ID,
		"username":     b.Username,
		"ready":        b.Ready,
		"team":         optionalInt(b.Team),
		"lobby_id":     optionalString(b.LobbyID),
		"skill_rating": b.SkillRating,
		"behavior":     string(b.Behavior),
		"is_bot":       true,
		"metadata":     copyMetadata(b.Metadata),
	}
}
