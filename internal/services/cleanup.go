// internal/services/cleanup.go
package services

import (
	"context"
	"time"

	"github.com/jason-s-yu/joinly/internal/matchmaking"
	"github.com/jason-s-yu/joinly/internal/worker"
	"github.com/sirupsen/logrus"
)

// DefaultCleanupInterval is how often expired tickets are swept.
const DefaultCleanupInterval = 5 * time.Minute

// Cleanup periodically sweeps expired tickets out of every queue.
type Cleanup struct {
	matcher *matchmaking.Matcher
	loop    *worker.Loop
	logger  logrus.FieldLogger
}

func NewCleanup(matcher *matchmaking.Matcher, interval time.Duration, logger logrus.FieldLogger) *Cleanup {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	c := &Cleanup{matcher: matcher, logger: logger}
	c.loop = worker.NewLoop("cleanup", interval, func(context.Context) error {
		c.Run()
		return nil
	}, logger)
	return c
}

// Run sweeps once and returns the number of tickets removed.
func (c *Cleanup) Run() int {
	n := c.matcher.ClearExpiredTickets()
	if n > 0 {
		c.logger.WithField("count", n).Info("cleared expired tickets")
	}
	return n
}

func (c *Cleanup) Start(ctx context.Context) { c.loop.Start(ctx) }
func (c *Cleanup) Stop()                     { c.loop.Stop() }
