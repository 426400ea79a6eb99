// internal/services/heartbeat.go
package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/worker"
	"github.com/sirupsen/logrus"
)

// DefaultTickRate is how often Heartbeat ticks the engine.
const DefaultTickRate = time.Second

// Heartbeat drives the engine's time-dependent state on a fixed tick.
type Heartbeat struct {
	engine *lobby.Engine
	loop   *worker.Loop
	ticks  atomic.Int64
}

func NewHeartbeat(engine *lobby.Engine, interval time.Duration, logger logrus.FieldLogger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultTickRate
	}
	h := &Heartbeat{engine: engine}
	h.loop = worker.NewLoop("heartbeat", interval, func(context.Context) error {
		h.Tick()
		return nil
	}, logger)
	return h
}

// Tick runs one engine tick.
func (h *Heartbeat) Tick() {
	h.engine.Tick()
	h.ticks.Add(1)
}

func (h *Heartbeat) TickCount() int64 { return h.ticks.Load() }

func (h *Heartbeat) Start(ctx context.Context) { h.loop.Start(ctx) }
func (h *Heartbeat) Stop()                     { h.loop.Stop() }
