// internal/matchmaking/queue.go
package matchmaking

import (
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/joinly/internal/models"
)

// ticketRetention is how long any ticket may live before cleanup drops it.
const ticketRetention = time.Hour

// QueueConfig shapes how a queue forms matches.
type QueueConfig struct {
	PlayersPerMatch int           `json:"players_per_match" yaml:"players_per_match"`
	MaxSkillDiff    int           `json:"max_skill_diff" yaml:"max_skill_diff"`
	TeamMode        bool          `json:"team_mode" yaml:"team_mode"`
	TeamSize        int           `json:"team_size" yaml:"team_size"`
	MaxWaitTime     time.Duration `json:"max_wait_time" yaml:"max_wait_time"`
	PriorityEnabled bool          `json:"priority_enabled" yaml:"priority_enabled"`

	// With PriorityEnabled, the allowed skill difference of a window grows
	// by SkillExpansion for every SkillExpansionInterval its oldest ticket
	// has waited.
	SkillExpansion         int           `json:"skill_expansion" yaml:"skill_expansion"`
	SkillExpansionInterval time.Duration `json:"skill_expansion_interval" yaml:"skill_expansion_interval"`

	BalanceMethod BalanceMethod `json:"balance_method" yaml:"balance_method"`
}

// DefaultQueueConfig returns the settings used for fields left unset.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		PlayersPerMatch:        10,
		MaxSkillDiff:           200,
		TeamSize:               5,
		MaxWaitTime:            300 * time.Second,
		SkillExpansion:         50,
		SkillExpansionInterval: 30 * time.Second,
		BalanceMethod:          BalanceSkill,
	}
}

// withDefaults fills zero values from DefaultQueueConfig.
func (c QueueConfig) withDefaults() QueueConfig {
	def := DefaultQueueConfig()
	if c.PlayersPerMatch <= 0 {
		c.PlayersPerMatch = def.PlayersPerMatch
	}
	if c.MaxSkillDiff < 0 {
		c.MaxSkillDiff = 0
	}
	if c.TeamSize <= 0 {
		c.TeamSize = def.TeamSize
	}
	if c.MaxWaitTime <= 0 {
		c.MaxWaitTime = def.MaxWaitTime
	}
	if c.SkillExpansionInterval <= 0 {
		c.SkillExpansionInterval = def.SkillExpansionInterval
	}
	if c.BalanceMethod == "" {
		c.BalanceMethod = BalanceSkill
	}
	return c
}

// QueueConfigFromMap reads a loosely typed config as decoded from JSON.
// Durations are given in seconds.
func QueueConfigFromMap(m map[string]interface{}) QueueConfig {
	cfg := DefaultQueueConfig()
	if v, ok := number(m["players_per_match"]); ok {
		cfg.PlayersPerMatch = int(v)
	}
	if v, ok := number(m["max_skill_diff"]); ok {
		cfg.MaxSkillDiff = int(v)
	}
	if v, ok := m["team_mode"].(bool); ok {
		cfg.TeamMode = v
	}
	if v, ok := number(m["team_size"]); ok {
		cfg.TeamSize = int(v)
	}
	if v, ok := number(m["max_wait_time"]); ok {
		cfg.MaxWaitTime = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["priority_enabled"].(bool); ok {
		cfg.PriorityEnabled = v
	}
	if v, ok := number(m["skill_expansion"]); ok {
		cfg.SkillExpansion = int(v)
	}
	if v, ok := number(m["skill_expansion_interval"]); ok {
		cfg.SkillExpansionInterval = time.Duration(v * float64(time.Second))
	}
	if v, ok := m["balance_method"].(string); ok {
		cfg.BalanceMethod = BalanceMethod(v)
	}
	return cfg
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// AllowedSkillDiff is the skill spread a window may have when its oldest
// ticket has waited for wait.
func (c QueueConfig) AllowedSkillDiff(wait time.Duration) int {
	if !c.PriorityEnabled || c.SkillExpansion <= 0 || c.SkillExpansionInterval <= 0 {
		return c.MaxSkillDiff
	}
	return c.MaxSkillDiff + c.SkillExpansion*int(wait/c.SkillExpansionInterval)
}

// Queue holds the tickets waiting in one matchmaking queue. It has its own
// lock, independent of the Matcher's.
type Queue struct {
	ID        string
	Config    QueueConfig
	CreatedAt time.Time

	mu      sync.Mutex
	tickets map[string]*models.MatchTicket
	clock   models.Clock
}

// NewQueue creates an empty queue.
func NewQueue(id string, cfg QueueConfig, clock models.Clock) *Queue {
	return &Queue{
		ID:        id,
		Config:    cfg.withDefaults(),
		CreatedAt: clock.Now(),
		tickets:   make(map[string]*models.MatchTicket),
		clock:     clock,
	}
}

// AddTicket enqueues t and stamps its queue time. A player may hold only one
// queued ticket per queue.
func (q *Queue) AddTicket(t *models.MatchTicket) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.tickets[t.ID]; exists {
		return false
	}
	for _, other := range q.tickets {
		if other.PlayerID == t.PlayerID && other.Status == models.TicketQueued {
			return false
		}
	}
	t.Status = models.TicketQueued
	t.QueuedAt = q.clock.Now()
	q.tickets[t.ID] = t
	return true
}

// RemoveTicket cancels and drops a ticket.
func (q *Queue) RemoveTicket(ticketID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tickets[ticketID]
	if !ok {
		return false
	}
	if t.Status == models.TicketQueued {
		t.SetStatus(models.TicketCancelled, q.clock.Now())
	}
	delete(q.tickets, ticketID)
	return true
}

// GetTicket returns a copy of a ticket.
func (q *Queue) GetTicket(ticketID string) (models.MatchTicket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tickets[ticketID]
	if !ok {
		return models.MatchTicket{}, false
	}
	return *t, true
}

// TicketSnapshot renders a ticket, or nil when absent.
func (q *Queue) TicketSnapshot(ticketID string) map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tickets[ticketID]
	if !ok {
		return nil
	}
	return t.ToMap(q.clock.Now())
}

// ActiveTickets returns the queued tickets that have not outwaited
// MaxWaitTime. Tickets past it are flipped to timeout on the way.
func (q *Queue) ActiveTickets() []*models.MatchTicket {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	active := make([]*models.MatchTicket, 0, len(q.tickets))
	for _, t := range q.tickets {
		if t.Status != models.TicketQueued {
			continue
		}
		if now.Sub(t.QueuedAt) > q.Config.MaxWaitTime {
			t.SetStatus(models.TicketTimeout, now)
			continue
		}
		active = append(active, t)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}

// consume marks the tickets matched and removes them from the queue.
func (q *Queue) consume(ids []string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	for _, id := range ids {
		if t, ok := q.tickets[id]; ok {
			t.SetStatus(models.TicketMatched, now)
			delete(q.tickets, id)
		}
	}
}

// Length counts queued tickets.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lengthUnsafe()
}

func (q *Queue) lengthUnsafe() int {
	n := 0
	for _, t := range q.tickets {
		if t.Status == models.TicketQueued {
			n++
		}
	}
	return n
}

// AverageWaitTime is the mean wait of queued tickets, zero when empty.
func (q *Queue) AverageWaitTime() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.averageWaitUnsafe()
}

func (q *Queue) averageWaitUnsafe() time.Duration {
	now := q.clock.Now()
	var total time.Duration
	n := 0
	for _, t := range q.tickets {
		if t.Status == models.TicketQueued {
			total += now.Sub(t.QueuedAt)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// ClearExpiredTickets drops timed-out and cancelled tickets and anything
// older than an hour. It returns how many were dropped.
func (q *Queue) ClearExpiredTickets() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	removed := 0
	for id, t := range q.tickets {
		switch {
		case t.Status == models.TicketTimeout, t.Status == models.TicketCancelled:
		case now.Sub(t.CreatedAt) > ticketRetention:
		default:
			continue
		}
		delete(q.tickets, id)
		removed++
	}
	return removed
}

// ToMap renders the transport-safe snapshot of the queue.
func (q *Queue) ToMap() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return map[string]interface{}{
		"queue_id":          q.ID,
		"players_per_match": q.Config.PlayersPerMatch,
		"team_mode":         q.Config.TeamMode,
		"team_size":         q.Config.TeamSize,
		"queue_length":      q.lengthUnsafe(),
		"average_wait_time": q.averageWaitUnsafe().Seconds(),
		"max_skill_diff":    q.Config.MaxSkillDiff,
		"max_wait_time":     q.Config.MaxWaitTime.Seconds(),
		"priority_enabled":  q.Config.PriorityEnabled,
		"created_at":        float64(q.CreatedAt.UnixNano()) / float64(time.Second),
	}
}
