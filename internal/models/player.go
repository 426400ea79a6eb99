package models

import "time"

// DefaultSkillRating is assigned when a player carries no skill_rating metadata.
const DefaultSkillRating = 1000

// DefaultPresenceTimeout is how long a player may go without a heartbeat
// before it is considered gone.
const DefaultPresenceTimeout = 30 * time.Second

// Player is a human participant. While seated it is referenced by exactly one
// lobby; the engine's player index remains the authoritative lookup by ID.
type Player struct {
	ID            string                 `json:"player_id"`
	Username      string                 `json:"username"`
	Ready         bool                   `json:"ready"`
	Team          *int                   `json:"team"`
	LobbyID       string                 `json:"lobby_id,omitempty"`
	PartyID       string                 `json:"party_id,omitempty"`
	Connected     bool                   `json:"connected"`
	LastHeartbeat time.Time              `json:"last_heartbeat"`
	JoinedAt      time.Time              `json:"joined_at"`
	SkillRating   int                    `json:"skill_rating"`
	Metadata      map[string]interface{} `json:"metadata"`
}

// NewPlayer builds a connected player. The skill rating is read from the
// "skill_rating" metadata key, falling back to DefaultSkillRating.
func NewPlayer(id, username string, metadata map[string]interface{}) *Player {
	return NewPlayerAt(id, username, metadata, time.Now())
}

// NewPlayerAt is NewPlayer with an explicit creation time.
func NewPlayerAt(id, username string, metadata map[string]interface{}, now time.Time) *Player {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Player{
		ID:            id,
		Username:      username,
		Connected:     true,
		LastHeartbeat: now,
		JoinedAt:      now,
		SkillRating:   intFromMetadata(metadata, "skill_rating", DefaultSkillRating),
		Metadata:      metadata,
	}
}

func (p *Player) SetReady(ready bool) {
	p.Ready = ready
}

func (p *Player) SetTeam(team int) {
	p.Team = &team
}

// Heartbeat records liveness and marks the player connected again.
func (p *Player) Heartbeat(now time.Time) {
	p.LastHeartbeat = now
	p.Connected = true
}

// IsAlive reports whether the last heartbeat is within timeout of now.
func (p *Player) IsAlive(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.LastHeartbeat) <= timeout
}

// ToMap renders the transport-safe snapshot of the player.
func (p *Player) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"player_id":    p.ID,
		"username":     p.Username,
		"ready":        p.Ready,
		"team":         optionalInt(p.Team),
		"lobby_id":     optionalString(p.LobbyID),
		"party_id":     optionalString(p.PartyID),
		"connected":    p.Connected,
		"skill_rating": p.SkillRating,
		"joined_at":    unixSeconds(p.JoinedAt),
		"metadata":     copyMetadata(p.Metadata),
	}
}
