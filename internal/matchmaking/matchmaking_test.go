// internal/matchmaking/matchmaking_test.go
package matchmaking

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine  *lobby.Engine
	matcher *Matcher
	clock   *fakeClock
	matches []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := &harness{clock: &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}
	bus := events.NewBus(logger)
	bus.On(events.MatchCreated, func(ev events.Event) error {
		h.matches = append(h.matches, ev)
		return nil
	})
	h.engine = lobby.NewEngine(bus, lobby.WithLogger(logger), lobby.WithClock(h.clock.Now))
	h.matcher = NewMatcher(h.engine, WithLogger(logger), WithClock(h.clock.Now), WithBalancer(NewBalancer(1)))
	return h
}

func (h *harness) enqueue(t *testing.T, queueID string, skills ...int) []*models.MatchTicket {
	t.Helper()
	var out []*models.MatchTicket
	for i, skill := range skills {
		id := fmt.Sprintf("%s_p%d_%d", queueID, i, skill)
		tk := models.NewMatchTicket(id, id, skill, nil, h.clock.Now())
		require.True(t, h.matcher.AddTicket(queueID, tk))
		out = append(out, tk)
	}
	return out
}

func tickets(skills ...int) []*models.MatchTicket {
	out := make([]*models.MatchTicket, len(skills))
	for i, s := range skills {
		out[i] = &models.MatchTicket{ID: fmt.Sprintf("t%d", i), SkillRating: s}
	}
	return out
}

func teamSum(team []*models.MatchTicket) int {
	sum := 0
	for _, t := range team {
		sum += t.SkillRating
	}
	return sum
}

func TestDisjointWindowsFormTwoMatches(t *testing.T) {
	h := newHarness(t)
	_, err := h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100})
	require.NoError(t, err)
	h.enqueue(t, "q", 1850, 900, 1800, 950)

	created, err := h.matcher.ProcessQueues()
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	require.Len(t, h.matches, 2)

	q, _ := h.matcher.Queue("q")
	assert.Equal(t, 0, q.Length())

	lobbies := h.engine.GetAllLobbies()
	require.Len(t, lobbies, 2)
	for _, l := range lobbies {
		assert.Equal(t, 2, l["player_count"])
		assert.Equal(t, 2, l["max_players"])
		assert.Equal(t, 0, l["max_bots"])
	}
	assert.Equal(t, "q", h.matches[0].Data["queue_id"])
	assert.Equal(t, 2, h.matches[0].Data["player_count"])
}

func TestWideWindowStaysQueued(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100})
	queued := h.enqueue(t, "q", 900, 1800)

	created, err := h.matcher.ProcessQueues()
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, h.engine.GetAllLobbies())

	q, _ := h.matcher.Queue("q")
	assert.Equal(t, 2, q.Length())
	for _, tk := range queued {
		got, ok := q.GetTicket(tk.ID)
		require.True(t, ok)
		assert.Equal(t, models.TicketQueued, got.Status)
	}
}

func TestSkippedWindowDoesNotBlockLaterOnes(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100})
	h.enqueue(t, "q", 100, 900, 1000, 1050)

	created, _ := h.matcher.ProcessQueues()
	assert.Equal(t, 1, created, "[100,900] is skipped, [1000,1050] matches")
	q, _ := h.matcher.Queue("q")
	assert.Equal(t, 2, q.Length())
}

func TestPriorityWidensSkillWindow(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{
		PlayersPerMatch:        2,
		MaxSkillDiff:           100,
		PriorityEnabled:        true,
		SkillExpansion:         50,
		SkillExpansionInterval: 30 * time.Second,
	})
	h.enqueue(t, "q", 1000, 1180)

	created, _ := h.matcher.ProcessQueues()
	assert.Zero(t, created)

	h.clock.Advance(60 * time.Second)
	created, _ = h.matcher.ProcessQueues()
	assert.Equal(t, 1, created)
}

func TestTeamModeAssignsTeams(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 4, MaxSkillDiff: 100, TeamMode: true, TeamSize: 2})
	h.enqueue(t, "q", 1000, 1090, 1080, 1070)

	created, err := h.matcher.ProcessQueues()
	require.NoError(t, err)
	require.Equal(t, 1, created)

	lobbyID := h.matches[0].Data["lobby_id"].(string)
	teams := map[int]int{}
	h.engine.View(lobbyID, func(l *lobby.Lobby) {
		for _, p := range l.Players {
			require.NotNil(t, p.Team)
			teams[*p.Team] += p.SkillRating
		}
	})
	require.Len(t, teams, 2)
	diff := teams[0] - teams[1]
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 1000)
	assert.Equal(t, 2, h.matches[0].Data["team_count"])
}

func TestTicketTimeout(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100, MaxWaitTime: time.Minute})
	tk := h.enqueue(t, "q", 1000)[0]

	h.clock.Advance(61 * time.Second)
	h.enqueue(t, "q", 1010)

	created, _ := h.matcher.ProcessQueues()
	assert.Zero(t, created, "the timed-out ticket is not matchable")

	_, got, ok := h.matcher.FindTicket(tk.ID)
	require.True(t, ok)
	assert.Equal(t, models.TicketTimeout, got.Status)

	assert.Equal(t, 1, h.matcher.ClearExpiredTickets())
	_, _, ok = h.matcher.FindTicket(tk.ID)
	assert.False(t, ok)
}

func TestClearExpiredDropsOldTickets(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxWaitTime: 2 * time.Hour})
	h.enqueue(t, "q", 1000)
	h.clock.Advance(61 * time.Minute)
	assert.Equal(t, 1, h.matcher.ClearExpiredTickets())
}

func TestQueueBookkeeping(t *testing.T) {
	h := newHarness(t)
	_, err := h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 3})
	require.NoError(t, err)
	_, err = h.matcher.CreateQueue("q", QueueConfig{})
	assert.ErrorIs(t, err, ErrQueueExists)

	first := h.enqueue(t, "q", 1000)[0]
	assert.False(t, h.matcher.AddTicket("q", models.NewMatchTicket(first.PlayerID, "dup", 1000, nil, h.clock.Now())))
	assert.False(t, h.matcher.AddTicket("missing", models.NewMatchTicket("x", "x", 1000, nil, h.clock.Now())))

	h.clock.Advance(10 * time.Second)
	h.enqueue(t, "q", 1100)
	q, _ := h.matcher.Queue("q")
	assert.Equal(t, 5*time.Second, q.AverageWaitTime())
	assert.Equal(t, 2, h.matcher.GetQueue("q")["queue_length"])

	assert.True(t, h.matcher.RemoveTicket("q", first.ID))
	assert.False(t, h.matcher.RemoveTicket("q", first.ID))
	assert.Equal(t, 1, q.Length())

	assert.Len(t, h.matcher.GetAllQueues(), 1)
	assert.True(t, h.matcher.DeleteQueue("q"))
	assert.Nil(t, h.matcher.GetQueue("q"))
}

func TestSeatedPlayersAreNotMatched(t *testing.T) {
	h := newHarness(t)
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100})
	queued := h.enqueue(t, "q", 1000, 1010)

	h.engine.CreateLobby("elsewhere", lobby.DefaultConfig())
	h.engine.AddPlayerToLobby("elsewhere", models.NewPlayer(queued[0].PlayerID, "busy", nil))

	created, err := h.matcher.ProcessQueues()
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestMatcherLoop(t *testing.T) {
	h := newHarness(t)
	h.matcher = NewMatcher(h.engine, WithInterval(5*time.Millisecond), WithClock(h.clock.Now))
	h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100})
	h.enqueue(t, "q", 1000, 1001)

	h.matcher.Start(testContext(t))
	require.Eventually(t, func() bool { return len(h.engine.LobbyIDs()) == 1 }, time.Second, 5*time.Millisecond)
	h.matcher.Stop()
	assert.False(t, h.matcher.Running())
}

func TestMatcherIntervalFallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	for _, d := range []time.Duration{0, -time.Second} {
		m := NewMatcher(h.engine, WithInterval(d))
		assert.Equal(t, DefaultInterval, m.interval)
		assert.NotPanics(t, func() {
			m.Start(testContext(t))
			m.Stop()
		})
	}
}

func TestPriorityOrdersEqualSkills(t *testing.T) {
	for _, tc := range []struct {
		name     string
		priority bool
		seated   []string
		waiting  string
	}{
		{name: "enabled", priority: true, seated: []string{"first", "boosted"}, waiting: "second"},
		{name: "disabled", priority: false, seated: []string{"first", "second"}, waiting: "boosted"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.matcher.CreateQueue("q", QueueConfig{PlayersPerMatch: 2, MaxSkillDiff: 100, PriorityEnabled: tc.priority})
			require.NoError(t, err)
			for _, p := range []struct {
				id       string
				priority int
			}{{"first", 0}, {"second", 0}, {"boosted", 5}} {
				tk := models.NewMatchTicket(p.id, p.id, 1000, nil, h.clock.Now())
				tk.Priority = p.priority
				require.True(t, h.matcher.AddTicket("q", tk))
				h.clock.Advance(time.Second)
			}

			created, err := h.matcher.ProcessQueues()
			require.NoError(t, err)
			require.Equal(t, 1, created)
			for _, id := range tc.seated {
				_, ok := h.engine.PlayerLobby(id)
				assert.True(t, ok, id)
			}
			_, ok := h.engine.PlayerLobby(tc.waiting)
			assert.False(t, ok, tc.waiting)
		})
	}
}

func TestBalanceBySkill(t *testing.T) {
	teams := BalanceBySkill(tickets(100, 90, 80, 70), 2)
	require.Len(t, teams, 2)
	diff := teamSum(teams[0]) - teamSum(teams[1])
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 70)
	assert.Len(t, teams[0], 2)
	assert.Len(t, teams[1], 2)
}

func TestBalanceSmallerThanTeamSize(t *testing.T) {
	teams := BalanceBySkill(tickets(100, 90), 5)
	require.Len(t, teams, 1)
	assert.Len(t, teams[0], 2)
}

func TestBalanceRandomKeepsEveryone(t *testing.T) {
	b := NewBalancer(7)
	teams := b.Balance(tickets(1, 2, 3, 4, 5), 2, BalanceRandom)
	require.Len(t, teams, 2)
	assert.Equal(t, 5, len(teams[0])+len(teams[1]))
}

func TestTeamBalanceReport(t *testing.T) {
	report := TeamBalance([][]*models.MatchTicket{tickets(100, 80), tickets(90, 70)})
	assert.InDelta(t, 10.0, report.SkillDifference, 1e-9)
	assert.InDelta(t, 99.0, report.BalanceScore, 1e-9)
	assert.Equal(t, []float64{90, 80}, report.TeamSkills)

	assert.Equal(t, BalanceReport{}, TeamBalance(nil))
}

func TestQueueConfigFromMap(t *testing.T) {
	cfg := QueueConfigFromMap(map[string]interface{}{
		"players_per_match": 2.0,
		"max_wait_time":     60.0,
		"team_mode":         true,
	})
	assert.Equal(t, 2, cfg.PlayersPerMatch)
	assert.Equal(t, time.Minute, cfg.MaxWaitTime)
	assert.True(t, cfg.TeamMode)
	assert.Equal(t, 200, cfg.MaxSkillDiff)
}

// testContext stands in for testing.T.Context (Go 1.24+): the returned
// context is cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
