// internal/services/analytics.go
package services

import (
	"sync"
	"time"

	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/prometheus/client_golang/prometheus"
)

// TrackedEvents are the bus events Analytics counts.
var TrackedEvents = []string{
	events.LobbyCreated, events.LobbyDeleted, events.PlayerJoined,
	events.PlayerLeft, events.PlayerReadyChanged, events.BotJoined,
	events.BotLeft, events.MatchCreated, events.LobbyAllReady,
	events.PlayerDisconnected,
}

// Analytics counts engine events and custom metrics and exports them to
// Prometheus.
type Analytics struct {
	engine *lobby.Engine
	start  time.Time

	mu          sync.Mutex
	eventCounts map[string]int
	metrics     map[string]float64
	total       int

	eventsTotal *prometheus.CounterVec
	lobbies     prometheus.GaugeFunc
	players     prometheus.GaugeFunc
}

// NewAnalytics subscribes to the engine's bus and registers collectors with
// reg. A nil reg skips registration.
func NewAnalytics(engine *lobby.Engine, reg prometheus.Registerer) (*Analytics, error) {
	a := &Analytics{
		engine:      engine,
		start:       engine.Now(),
		eventCounts: make(map[string]int),
		metrics:     make(map[string]float64),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joinly",
			Name:      "events_total",
			Help:      "Engine events emitted, by event name.",
		}, []string{"event"}),
	}
	a.lobbies = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "joinly",
		Name:      "lobbies",
		Help:      "Lobbies currently registered.",
	}, func() float64 { return float64(len(engine.LobbyIDs())) })
	a.players = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "joinly",
		Name:      "players_online",
		Help:      "Seated players currently connected.",
	}, func() float64 { return float64(engine.OnlineCount()) })

	if reg != nil {
		for _, c := range []prometheus.Collector{a.eventsTotal, a.lobbies, a.players} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	engine.Bus.OnAll(TrackedEvents, a.track)
	return a, nil
}

// track must not call into the engine: it runs under the engine lock.
func (a *Analytics) track(ev events.Event) error {
	a.mu.Lock()
	a.eventCounts[ev.Event]++
	a.total++
	a.mu.Unlock()
	a.eventsTotal.WithLabelValues(ev.Event).Inc()
	return nil
}

// EventsTotal exposes the Prometheus counter.
func (a *Analytics) EventsTotal() *prometheus.CounterVec { return a.eventsTotal }

// EventCount returns how many times name has been seen.
func (a *Analytics) EventCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eventCounts[name]
}

func (a *Analytics) TrackMetric(name string, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics[name] = value
}

func (a *Analytics) IncrementMetric(name string, amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics[name] += amount
}

func (a *Analytics) Metric(name string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics[name]
}

// Reset clears custom metrics and event counts. Prometheus counters are
// monotonic and keep their values.
func (a *Analytics) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eventCounts = make(map[string]int)
	a.metrics = make(map[string]float64)
	a.total = 0
}

// Snapshot reports uptime, engine population, and the counters.
func (a *Analytics) Snapshot() map[string]interface{} {
	stats := a.engine.Stats()

	a.mu.Lock()
	counts := make(map[string]int, len(a.eventCounts))
	for k, v := range a.eventCounts {
		counts[k] = v
	}
	metrics := make(map[string]float64, len(a.metrics)+1)
	for k, v := range a.metrics {
		metrics[k] = v
	}
	metrics["total_events"] = float64(a.total)
	a.mu.Unlock()

	out := map[string]interface{}{
		"uptime_seconds": a.engine.Now().Sub(a.start).Seconds(),
		"total_lobbies":  stats["total_lobbies"],
		"total_players":  stats["total_players"],
		"total_bots":     stats["total_bots"],
		"total_parties":  stats["total_parties"],
		"event_counts":   counts,
		"metrics":        metrics,
	}
	if lobbies := stats["total_lobbies"].(int); lobbies > 0 {
		out["avg_players_per_lobby"] = float64(stats["total_players"].(int)) / float64(lobbies)
	}
	return out
}
