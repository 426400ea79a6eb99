package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a MatchTicket.
type TicketStatus string

const (
	TicketQueued    TicketStatus = "queued"
	TicketMatched   TicketStatus = "matched"
	TicketTimeout   TicketStatus = "timeout"
	TicketCancelled TicketStatus = "cancelled"
)

// MatchTicket is a queued request to be matched.
type MatchTicket struct {
	ID          string                 `json:"ticket_id"`
	PlayerID    string                 `json:"player_id"`
	Username    string                 `json:"username"`
	SkillRating int                    `json:"skill_rating"`
	Status      TicketStatus           `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	QueuedAt    time.Time              `json:"queued_at"`
	MatchedAt   *time.Time             `json:"matched_at,omitempty"`
	PartyID     string                 `json:"party_id,omitempty"`
	Priority    int                    `json:"priority"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// NewMatchTicket creates a queued ticket with a fresh ID.
func NewMatchTicket(playerID, username string, skillRating int, metadata map[string]interface{}, now time.Time) *MatchTicket {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &MatchTicket{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		Username:    username,
		SkillRating: skillRating,
		Status:      TicketQueued,
		CreatedAt:   now,
		QueuedAt:    now,
		Metadata:    metadata,
	}
}

// SetStatus moves the ticket to status, stamping MatchedAt when matched.
func (t *MatchTicket) SetStatus(status TicketStatus, now time.Time) {
	t.Status = status
	if status == TicketMatched {
		t.MatchedAt = &now
	}
}

// WaitTime is the time spent queued, frozen once the ticket is matched.
func (t *MatchTicket) WaitTime(now time.Time) time.Duration {
	if t.MatchedAt != nil {
		return t.MatchedAt.Sub(t.QueuedAt)
	}
	return now.Sub(t.QueuedAt)
}

// ToPlayer builds the player that will be seated for this ticket.
func (t *MatchTicket) ToPlayer(now time.Time) *Player {
	metadata := copyMetadata(t.Metadata)
	metadata["skill_rating"] = t.SkillRating
	p := NewPlayerAt(t.PlayerID, t.Username, metadata, now)
	p.PartyID = t.PartyID
	return p
}

// ToMap renders the transport-safe snapshot of the ticket.
func (t *MatchTicket) ToMap(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"ticket_id":    t.ID,
		"player_id":    t.PlayerID,
		"username":     t.Username,
		"skill_rating": t.SkillRating,
		"status":       string(t.Status),
		"wait_time":    t.WaitTime(now).Seconds(),
		"created_at":   unixSeconds(t.CreatedAt),
		"party_id":     optionalString(t.PartyID),
		"priority":     t.Priority,
		"metadata":     copyMetadata(t.Metadata),
	}
}
