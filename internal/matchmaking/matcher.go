// internal/matchmaking/matcher.go
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/jason-s-yu/joinly/internal/worker"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueExists   = errors.New("queue already exists")
	ErrQueueNotFound = errors.New("queue not found")
)

// DefaultInterval is how often the matching loop runs.
const DefaultInterval = time.Second

// Matcher owns the matchmaking queues and turns qualifying windows of
// tickets into lobbies on the engine.
type Matcher struct {
	// mu serializes queue registry changes with whole matching passes.
	mu     sync.Mutex
	queues map[string]*Queue

	engine   *lobby.Engine
	balancer *Balancer
	loop     *worker.Loop

	interval time.Duration
	clock    models.Clock
	logger   logrus.FieldLogger
}

// Option customizes a Matcher.
type Option func(*Matcher)

func WithInterval(d time.Duration) Option {
	return func(m *Matcher) { m.interval = d }
}

func WithClock(c models.Clock) Option {
	return func(m *Matcher) { m.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Matcher) { m.logger = l }
}

func WithBalancer(b *Balancer) Option {
	return func(m *Matcher) { m.balancer = b }
}

// NewMatcher builds a stopped matcher seating matches on engine.
func NewMatcher(engine *lobby.Engine, opts ...Option) *Matcher {
	m := &Matcher{
		queues:   make(map[string]*Queue),
		engine:   engine,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.logger == nil {
		m.logger = logrus.StandardLogger()
	}
	if m.balancer == nil {
		m.balancer = NewBalancer(time.Now().UnixNano())
	}
	m.loop = worker.NewLoop("matcher", m.interval, func(context.Context) error {
		_, err := m.ProcessQueues()
		return err
	}, m.logger)
	return m
}

// Start launches the matching loop.
func (m *Matcher) Start(ctx context.Context) {
	m.loop.Start(ctx)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (m *Matcher) Stop() {
	m.loop.Stop()
}

func (m *Matcher) Running() bool {
	return m.loop.Running()
}

// CreateQueue registers a queue. Duplicate IDs are refused.
func (m *Matcher) CreateQueue(queueID string, cfg QueueConfig) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if queueID == "" {
		return nil, fmt.Errorf("create queue: empty id")
	}
	if _, exists := m.queues[queueID]; exists {
		return nil, fmt.Errorf("create queue %s: %w", queueID, ErrQueueExists)
	}
	q := NewQueue(queueID, cfg, m.clock)
	m.queues[queueID] = q
	m.logger.WithFields(logrus.Fields{
		"queue_id":          queueID,
		"players_per_match": q.Config.PlayersPerMatch,
		"max_skill_diff":    q.Config.MaxSkillDiff,
	}).Info("queue created")
	return q, nil
}

// DeleteQueue drops a queue and every ticket in it.
func (m *Matcher) DeleteQueue(queueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[queueID]; !ok {
		return false
	}
	delete(m.queues, queueID)
	return true
}

// Queue returns the live queue.
func (m *Matcher) Queue(queueID string) (*Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queueID]
	return q, ok
}

// GetQueue returns a snapshot of the queue, or nil.
func (m *Matcher) GetQueue(queueID string) map[string]interface{} {
	q, ok := m.Queue(queueID)
	if !ok {
		return nil
	}
	return q.ToMap()
}

// GetAllQueues returns snapshots of every queue ordered by ID.
func (m *Matcher) GetAllQueues() []map[string]interface{} {
	out := make([]map[string]interface{}, 0)
	for _, q := range m.sortedQueues() {
		out = append(out, q.ToMap())
	}
	return out
}

func (m *Matcher) sortedQueues() []*Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedQueuesUnsafe()
}

func (m *Matcher) sortedQueuesUnsafe() []*Queue {
	qs := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		qs = append(qs, q)
	}
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	return qs
}

// AddTicket enqueues t. It fails when the queue is missing or the player
// already has a queued ticket there.
func (m *Matcher) AddTicket(queueID string, t *models.MatchTicket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queueID]
	if !ok || t == nil {
		return false
	}
	if !q.AddTicket(t) {
		return false
	}
	m.logger.WithFields(logrus.Fields{
		"queue_id":     queueID,
		"ticket_id":    t.ID,
		"player_id":    t.PlayerID,
		"skill_rating": t.SkillRating,
	}).Debug("ticket queued")
	return true
}

// RemoveTicket cancels a ticket; absent tickets are a no-op.
func (m *Matcher) RemoveTicket(queueID, ticketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queueID]
	if !ok {
		return false
	}
	return q.RemoveTicket(ticketID)
}

// FindTicket looks a ticket up across every queue.
func (m *Matcher) FindTicket(ticketID string) (string, models.MatchTicket, bool) {
	for _, q := range m.sortedQueues() {
		if t, ok := q.GetTicket(ticketID); ok {
			return q.ID, t, true
		}
	}
	return "", models.MatchTicket{}, false
}

// ClearExpiredTickets sweeps every queue and returns how many tickets went.
func (m *Matcher) ClearExpiredTickets() int {
	removed := 0
	for _, q := range m.sortedQueues() {
		removed += q.ClearExpiredTickets()
	}
	return removed
}

// ProcessQueues runs one matching pass over every queue and returns the
// number of matches created. A failed match leaves its tickets queued.
func (m *Matcher) ProcessQueues() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := 0
	var errs []error
	for _, q := range m.sortedQueuesUnsafe() {
		for _, window := range m.findMatches(q) {
			if err := m.createMatch(q, window); err != nil {
				errs = append(errs, err)
				continue
			}
			created++
		}
	}
	return created, errors.Join(errs...)
}

// findMatches sorts the active tickets by skill and cuts them into disjoint
// windows of PlayersPerMatch. A window qualifies when its skill spread is
// within the allowed difference; the rest stay queued untouched. Equal skills
// order by Priority (highest first) on priority queues, then by queue time.
func (m *Matcher) findMatches(q *Queue) [][]*models.MatchTicket {
	n := q.Config.PlayersPerMatch
	active := q.ActiveTickets()

	eligible := active[:0]
	for _, t := range active {
		if _, seated := m.engine.PlayerLobby(t.PlayerID); seated {
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) < n {
		return nil
	}

	priority := q.Config.PriorityEnabled
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.SkillRating != b.SkillRating {
			return a.SkillRating < b.SkillRating
		}
		if priority && a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.QueuedAt.Before(b.QueuedAt)
	})

	now := m.clock.Now()
	var matches [][]*models.MatchTicket
	for i := 0; i+n <= len(eligible); i += n {
		window := eligible[i : i+n]
		spread := window[n-1].SkillRating - window[0].SkillRating
		if spread <= q.Config.AllowedSkillDiff(oldestWait(window, now)) {
			matches = append(matches, window)
		}
	}
	return matches
}

func oldestWait(window []*models.MatchTicket, now time.Time) time.Duration {
	var longest time.Duration
	for _, t := range window {
		if w := now.Sub(t.QueuedAt); w > longest {
			longest = w
		}
	}
	return longest
}

func (m *Matcher) createMatch(q *Queue, window []*models.MatchTicket) error {
	lobbyID := "match_" + uuid.NewString()
	now := m.clock.Now()

	players := make([]*models.Player, 0, len(window))
	teams := 0
	if q.Config.TeamMode {
		split := m.balancer.Balance(window, q.Config.TeamSize, q.Config.BalanceMethod)
		teams = len(split)
		for team, tickets := range split {
			for _, t := range tickets {
				p := t.ToPlayer(now)
				p.SetTeam(team)
				players = append(players, p)
			}
		}
	} else {
		for _, t := range window {
			players = append(players, t.ToPlayer(now))
		}
	}

	cfg := lobby.Config{
		MaxPlayers:      q.Config.PlayersPerMatch,
		MaxBots:         0,
		RequireAllReady: true,
	}
	metadata := map[string]interface{}{"queue_id": q.ID}
	if err := m.engine.CreateMatch(lobbyID, cfg, players, metadata); err != nil {
		return fmt.Errorf("queue %s: %w", q.ID, err)
	}

	ids := make([]string, len(window))
	playerIDs := make([]string, len(window))
	for i, t := range window {
		ids[i] = t.ID
		playerIDs[i] = t.PlayerID
	}
	q.consume(ids)

	m.logger.WithFields(logrus.Fields{
		"lobby_id":     lobbyID,
		"queue_id":     q.ID,
		"player_count": len(window),
	}).Info("match created")
	m.engine.Bus.Emit(events.MatchCreated, map[string]interface{}{
		"lobby_id":     lobbyID,
		"queue_id":     q.ID,
		"player_count": len(window),
		"player_ids":   playerIDs,
		"team_count":   teams,
	})
	return nil
}

// Stats summarizes every queue.
func (m *Matcher) Stats() map[string]interface{} {
	queued := 0
	qs := m.sortedQueues()
	for _, q := range qs {
		queued += q.Length()
	}
	return map[string]interface{}{
		"total_queues":   len(qs),
		"queued_tickets": queued,
	}
}
