// internal/lobby/party.go
package lobby

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/models"
)

// CreateParty registers a party led by leaderID. An empty id gets a generated
// one; an existing id returns the party already registered.
func (e *Engine) CreateParty(partyID, leaderID string) map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if partyID == "" {
		partyID = uuid.NewString()
	}
	if existing, ok := e.parties[partyID]; ok {
		return existing.ToMap()
	}
	party := models.NewParty(partyID, leaderID, e.Now())
	e.parties[partyID] = party
	e.setPartyUnsafe(leaderID, partyID)
	e.Bus.Emit(events.PartyCreated, map[string]interface{}{
		"party_id":  partyID,
		"leader_id": leaderID,
	})
	return party.ToMap()
}

// GetParty returns a snapshot of the party, or nil.
func (e *Engine) GetParty(partyID string) map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	party, ok := e.parties[partyID]
	if !ok {
		return nil
	}
	return party.ToMap()
}

func (e *Engine) GetAllParties() []map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(e.parties))
	for _, id := range sortedKeys(e.parties) {
		out = append(out, e.parties[id].ToMap())
	}
	return out
}

// PartyMembers returns the member IDs of a party.
func (e *Engine) PartyMembers(partyID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	party, ok := e.parties[partyID]
	if !ok {
		return nil
	}
	return party.MemberIDs()
}

// AddPartyMember adds playerID to the party; full parties and duplicates fail.
func (e *Engine) AddPartyMember(partyID, playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	party, ok := e.parties[partyID]
	if !ok {
		return false
	}
	if !party.AddMember(playerID, e.Now()) {
		return false
	}
	e.setPartyUnsafe(playerID, partyID)
	return true
}

// RemovePartyMember drops playerID. The party is disbanded once empty.
func (e *Engine) RemovePartyMember(partyID, playerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	party, ok := e.parties[partyID]
	if !ok || !party.RemoveMember(playerID) {
		return false
	}
	e.setPartyUnsafe(playerID, "")
	if party.MemberCount() == 0 {
		delete(e.parties, partyID)
		e.Bus.Emit(events.PartyDisbanded, map[string]interface{}{"party_id": partyID})
	}
	return true
}

// setPartyUnsafe mirrors party membership onto a seated player.
func (e *Engine) setPartyUnsafe(playerID, partyID string) {
	if p, ok := e.players[playerID]; ok {
		p.PartyID = partyID
	}
}
