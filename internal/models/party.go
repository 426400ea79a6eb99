package models

import "time"

// MaxPartyMembers caps party size.
const MaxPartyMembers = 5

const (
	PartyRoleLeader = "leader"
	PartyRoleMember = "member"
)

// PartyMember is one entry in a party's roster.
type PartyMember struct {
	PlayerID string    `json:"player_id"`
	JoinedAt time.Time `json:"joined_at"`
	Role     string    `json:"role"`
}

// Party groups players who queue and join together. The leader is always a
// member while the party has any members.
type Party struct {
	ID         string                  `json:"party_id"`
	LeaderID   string                  `json:"leader_id"`
	Members    map[string]*PartyMember `json:"members"`
	MaxMembers int                     `json:"max_members"`
	LobbyID    string                  `json:"lobby_id,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NewParty creates a party with leaderID as its only member.
func NewParty(id, leaderID string, now time.Time) *Party {
	return &Party{
		ID:         id,
		LeaderID:   leaderID,
		MaxMembers: MaxPartyMembers,
		CreatedAt:  now,
		Members: map[string]*PartyMember{
			leaderID: {PlayerID: leaderID, JoinedAt: now, Role: PartyRoleLeader},
		},
	}
}

// AddMember adds a player. It fails when the party is full or the player is
// already a member.
func (p *Party) AddMember(playerID string, now time.Time) bool {
	if len(p.Members) >= p.MaxMembers {
		return false
	}
	if _, ok := p.Members[playerID]; ok {
		return false
	}
	p.Members[playerID] = &PartyMember{PlayerID: playerID, JoinedAt: now, Role: PartyRoleMember}
	return true
}

// RemoveMember drops a player. If the leader leaves, leadership passes to the
// longest-standing remaining member.
func (p *Party) RemoveMember(playerID string) bool {
	if _, ok := p.Members[playerID]; !ok {
		return false
	}
	delete(p.Members, playerID)

	if playerID != p.LeaderID || len(p.Members) == 0 {
		return true
	}
	var next *PartyMember
	for _, m := range p.Members {
		if next == nil || m.JoinedAt.Before(next.JoinedAt) ||
			(m.JoinedAt.Equal(next.JoinedAt) && m.PlayerID < next.PlayerID) {
			next = m
		}
	}
	next.Role = PartyRoleLeader
	p.LeaderID = next.PlayerID
	return true
}

func (p *Party) IsLeader(playerID string) bool {
	return playerID == p.LeaderID
}

func (p *Party) MemberCount() int {
	return len(p.Members)
}

func (p *Party) MemberIDs() []string {
	ids := make([]string, 0, len(p.Members))
	for id := range p.Members {
		ids = append(ids, id)
	}
	return ids
}

// ToMap renders the transport-safe snapshot of the party.
func (p *Party) ToMap() map[string]interface{} {
	members := make([]map[string]interface{}, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, map[string]interface{}{
			"player_id": m.PlayerID,
			"joined_at": unixSeconds(m.JoinedAt),
			"role":      m.Role,
		})
	}
	return map[string]interface{}{
		"party_id":     p.ID,
		"leader_id":    p.LeaderID,
		"members":      members,
		"member_count": len(p.Members),
		"max_members":  p.MaxMembers,
		"lobby_id":     optionalString(p.LobbyID),
		"created_at":   unixSeconds(p.CreatedAt),
	}
}
