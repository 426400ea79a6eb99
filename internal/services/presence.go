// internal/services/presence.go
package services

import (
	"context"
	"time"

	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/models"
	"github.com/jason-s-yu/joinly/internal/worker"
	"github.com/sirupsen/logrus"
)

// DefaultPresenceInterval is how often Presence scans for stale players.
const DefaultPresenceInterval = 10 * time.Second

// Presence reaps seated players whose heartbeats have gone quiet.
type Presence struct {
	engine  *lobby.Engine
	timeout time.Duration
	loop    *worker.Loop
	logger  logrus.FieldLogger
}

func NewPresence(engine *lobby.Engine, interval, timeout time.Duration, logger logrus.FieldLogger) *Presence {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	if timeout <= 0 {
		timeout = models.DefaultPresenceTimeout
	}
	p := &Presence{engine: engine, timeout: timeout, logger: logger}
	p.loop = worker.NewLoop("presence", interval, func(context.Context) error {
		p.Check()
		return nil
	}, logger)
	return p
}

// Check disconnects every stale player and returns their IDs.
func (p *Presence) Check() []string {
	var reaped []string
	for _, id := range p.engine.StalePlayers(p.timeout) {
		if p.engine.DisconnectIfStale(id, p.timeout) {
			reaped = append(reaped, id)
		}
	}
	if len(reaped) > 0 {
		p.logger.WithField("count", len(reaped)).Info("reaped stale players")
	}
	return reaped
}

// UpdatePresence records a heartbeat for a seated player.
func (p *Presence) UpdatePresence(playerID string) bool {
	return p.engine.Heartbeat(playerID)
}

// OnlineCount is the number of seated, connected players.
func (p *Presence) OnlineCount() int {
	return p.engine.OnlineCount()
}

func (p *Presence) Timeout() time.Duration { return p.timeout }

func (p *Presence) Start(ctx context.Context) { p.loop.Start(ctx) }
func (p *Presence) Stop()                     { p.loop.Stop() }
