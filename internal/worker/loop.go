// internal/worker/loop.go
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TickFunc is one iteration of a background loop.
type TickFunc func(ctx context.Context) error

// Loop runs a TickFunc on a fixed interval in its own goroutine until stopped.
// A tick that errors or panics is logged and the loop carries on.
type Loop struct {
	name     string
	interval time.Duration
	fn       TickFunc
	logger   logrus.FieldLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLoop builds a stopped loop.
func NewLoop(name string, interval time.Duration, fn TickFunc, logger logrus.FieldLogger) *Loop {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loop{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.WithField("worker", name),
	}
}

func (l *Loop) Name() string { return l.name }

func (l *Loop) Interval() time.Duration { return l.interval }

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start launches the loop. Starting a running loop does nothing.
func (l *Loop) Start(parent context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true
	go l.run(ctx, l.done)
	l.logger.WithField("interval", l.interval).Info("worker started")
}

// Stop cancels the loop and waits for any in-flight tick to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.running = false
	l.mu.Unlock()

	cancel()
	<-done
	l.logger.Info("worker stopped")
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single tick synchronously with fault isolation.
func (l *Loop) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", fmt.Sprint(r)).Error("worker tick panicked")
		}
	}()
	if err := l.fn(ctx); err != nil {
		l.logger.WithError(err).Warn("worker tick failed")
	}
}
