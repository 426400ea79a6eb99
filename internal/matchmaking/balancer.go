// internal/matchmaking/balancer.go
package matchmaking

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/jason-s-yu/joinly/internal/models"
)

// BalanceMethod selects how matched tickets are split into teams.
type BalanceMethod string

const (
	BalanceSkill  BalanceMethod = "skill"
	BalanceRandom BalanceMethod = "random"
)

// Balancer partitions tickets into teams.
type Balancer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBalancer returns a balancer whose random method draws from seed.
func NewBalancer(seed int64) *Balancer {
	return &Balancer{rng: rand.New(rand.NewSource(seed))}
}

// teamCount is how many teams teamSize yields for n tickets, at least one.
func teamCount(n, teamSize int) int {
	if teamSize <= 0 {
		return 1
	}
	if c := n / teamSize; c > 0 {
		return c
	}
	return 1
}

// Balance splits tickets into len(tickets)/teamSize teams using method.
// Unknown methods fall back to skill balancing.
func (b *Balancer) Balance(tickets []*models.MatchTicket, teamSize int, method BalanceMethod) [][]*models.MatchTicket {
	if method == BalanceRandom {
		return b.balanceRandom(tickets, teamSize)
	}
	return BalanceBySkill(tickets, teamSize)
}

// BalanceBySkill sorts tickets by skill, highest first, and hands each to the
// team with the lowest running skill total. Ties go to the lower team index.
func BalanceBySkill(tickets []*models.MatchTicket, teamSize int) [][]*models.MatchTicket {
	sorted := make([]*models.MatchTicket, len(tickets))
	copy(sorted, tickets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SkillRating > sorted[j].SkillRating
	})

	n := teamCount(len(sorted), teamSize)
	teams := make([][]*models.MatchTicket, n)
	sums := make([]int, n)
	for _, t := range sorted {
		lowest := 0
		for i := 1; i < n; i++ {
			if sums[i] < sums[lowest] {
				lowest = i
			}
		}
		teams[lowest] = append(teams[lowest], t)
		sums[lowest] += t.SkillRating
	}
	return teams
}

// balanceRandom shuffles and deals teamSize tickets per team; leftovers are
// dealt round-robin so nobody is dropped.
func (b *Balancer) balanceRandom(tickets []*models.MatchTicket, teamSize int) [][]*models.MatchTicket {
	shuffled := make([]*models.MatchTicket, len(tickets))
	copy(shuffled, tickets)
	b.mu.Lock()
	b.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	b.mu.Unlock()

	n := teamCount(len(shuffled), teamSize)
	teams := make([][]*models.MatchTicket, n)
	for i, t := range shuffled {
		team := i / max(teamSize, 1)
		if team >= n {
			team = i % n
		}
		teams[team] = append(teams[team], t)
	}
	return teams
}

// BalanceReport describes how even a team split is.
type BalanceReport struct {
	BalanceScore    float64   `json:"balance_score"`
	SkillDifference float64   `json:"skill_difference"`
	TeamSkills      []float64 `json:"team_skills"`
}

// TeamBalance scores teams by the spread of their average skill. A score of
// 100 is perfectly even; every 10 points of spread costs one point.
func TeamBalance(teams [][]*models.MatchTicket) BalanceReport {
	if len(teams) == 0 {
		return BalanceReport{}
	}
	skills := make([]float64, len(teams))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, team := range teams {
		if len(team) > 0 {
			total := 0
			for _, t := range team {
				total += t.SkillRating
			}
			skills[i] = float64(total) / float64(len(team))
		}
		lo = math.Min(lo, skills[i])
		hi = math.Max(hi, skills[i])
	}
	diff := hi - lo
	return BalanceReport{
		BalanceScore:    100 - math.Min(diff/10, 100),
		SkillDifference: diff,
		TeamSkills:      skills,
	}
}
