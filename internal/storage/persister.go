// internal/storage/persister.go
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/worker"
	"github.com/sirupsen/logrus"
)

// DefaultFlushInterval is how often dirty snapshots are written.
const DefaultFlushInterval = 5 * time.Second

// SnapshotSource renders the current state of a lobby or player, returning
// nil once it no longer exists.
type SnapshotSource interface {
	GetLobby(lobbyID string) map[string]interface{}
	GetPlayer(playerID string) map[string]interface{}
}

var lobbyEvents = []string{
	events.LobbyCreated, events.LobbyDeleted, events.LobbyAllReady,
	events.PlayerJoined, events.PlayerLeft, events.PlayerReadyChanged,
	events.PlayerDisconnected, events.PlayerKicked,
	events.BotJoined, events.BotLeft, events.BotReadyChanged,
}

// Persister mirrors engine state into a Manager, best effort. Bus events only
// mark ids dirty; a background loop writes the snapshots later, outside the
// engine lock.
type Persister struct {
	manager *Manager
	source  SnapshotSource
	bus     *events.Bus
	loop    *worker.Loop
	logger  logrus.FieldLogger

	mu      sync.Mutex
	lobbies map[string]struct{}
	players map[string]struct{}
	subs    map[string]uint64
}

func NewPersister(manager *Manager, source SnapshotSource, bus *events.Bus, interval time.Duration, logger logrus.FieldLogger) *Persister {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	p := &Persister{
		manager: manager,
		source:  source,
		bus:     bus,
		logger:  logger,
		lobbies: make(map[string]struct{}),
		players: make(map[string]struct{}),
		subs:    make(map[string]uint64),
	}
	p.loop = worker.NewLoop("persister", interval, p.Flush, logger)
	return p
}

// Start subscribes to the bus and begins flushing.
func (p *Persister) Start(ctx context.Context) {
	p.mu.Lock()
	if len(p.subs) == 0 {
		for _, name := range lobbyEvents {
			p.subs[name] = p.bus.On(name, p.observe)
		}
	}
	p.mu.Unlock()
	p.loop.Start(ctx)
}

// Stop unsubscribes, stops the loop, and writes whatever is still dirty.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	for name, id := range p.subs {
		p.bus.Off(name, id)
	}
	p.subs = make(map[string]uint64)
	p.mu.Unlock()

	p.loop.Stop()
	return p.Flush(ctx)
}

func (p *Persister) observe(ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := ev.Data["lobby_id"].(string); ok && id != "" {
		p.lobbies[id] = struct{}{}
	}
	if id, ok := ev.Data["player_id"].(string); ok && id != "" {
		p.players[id] = struct{}{}
	}
	return nil
}

// Pending reports how many lobbies and players await a flush.
func (p *Persister) Pending() (lobbies, players int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lobbies), len(p.players)
}

func (p *Persister) drain() (lobbies, players []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.lobbies {
		lobbies = append(lobbies, id)
	}
	for id := range p.players {
		players = append(players, id)
	}
	p.lobbies = make(map[string]struct{})
	p.players = make(map[string]struct{})
	sort.Strings(lobbies)
	sort.Strings(players)
	return lobbies, players
}

// Flush writes every dirty snapshot, deleting keys for things that are
// gone. Failures are collected; failed ids are not retried until they
// change again.
func (p *Persister) Flush(ctx context.Context) error {
	lobbies, players := p.drain()
	var errs []error
	for _, id := range lobbies {
		var err error
		if snap := p.source.GetLobby(id); snap != nil {
			err = p.manager.SaveLobby(ctx, id, snap)
		} else {
			err = p.manager.DeleteLobby(ctx, id)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range players {
		var err error
		if snap := p.source.GetPlayer(id); snap != nil {
			err = p.manager.SavePlayer(ctx, id, snap)
		} else {
			err = p.manager.DeletePlayer(ctx, id)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(lobbies)+len(players) > 0 {
		p.logger.WithFields(logrus.Fields{
			"lobbies": len(lobbies),
			"players": len(players),
			"errors":  len(errs),
		}).Debug("persisted snapshots")
	}
	return errors.Join(errs...)
}
