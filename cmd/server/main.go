// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/joinly/internal/bots"
	"github.com/jason-s-yu/joinly/internal/config"
	"github.com/jason-s-yu/joinly/internal/events"
	"github.com/jason-s-yu/joinly/internal/handlers"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/matchmaking"
	"github.com/jason-s-yu/joinly/internal/services"
	"github.com/jason-s-yu/joinly/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	logger := cfg.NewLogger()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	var store storage.Store
	switch cfg.Storage {
	case config.StorageRedis:
		s, err := storage.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		store = s
	case config.StoragePostgres:
		s, err := storage.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return storage.NewMemoryStore(), nil
	}
	if cfg.CacheSize > 0 {
		store = storage.NewCachedStore(store, cfg.CacheSize, cfg.CacheTTL)
	}
	return store, nil
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage, err)
	}
	snapshots := storage.NewManager(store)
	defer snapshots.Close()
	if ids, err := snapshots.ListLobbyIDs(ctx); err == nil && len(ids) > 0 {
		logger.WithField("lobbies", len(ids)).Info("previous lobby snapshots present")
	}

	bus := events.NewBus(logger)
	engine := lobby.NewEngine(bus, lobby.WithLogger(logger))
	matcher := matchmaking.NewMatcher(engine,
		matchmaking.WithInterval(cfg.MatchInterval),
		matchmaking.WithLogger(logger),
	)
	for _, q := range cfg.File.Queues {
		if _, err := matcher.CreateQueue(q.ID, q.Config); err != nil {
			return err
		}
	}

	library := bots.NewLibrary(time.Now().UnixNano())
	for _, p := range cfg.File.BotProfiles {
		library.Add(p)
	}
	botManager := bots.NewManager(engine, library, cfg.BotTickInterval, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	analytics, err := services.NewAnalytics(engine, reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	heartbeat := services.NewHeartbeat(engine, cfg.HeartbeatInterval, logger)
	presence := services.NewPresence(engine, cfg.PresenceInterval, cfg.PresenceTimeout, logger)
	cleanup := services.NewCleanup(matcher, cfg.CleanupInterval, logger)
	persister := storage.NewPersister(snapshots, engine, bus, cfg.FlushInterval, logger)

	api := handlers.NewServer(handlers.Deps{
		Engine:        engine,
		Matcher:       matcher,
		Bots:          botManager,
		Analytics:     analytics,
		Presence:      presence,
		Gatherer:      reg,
		LobbyDefaults: &cfg.File.Lobby,
		Logger:        logger,
	})
	defer api.Close()

	persister.Start(ctx)
	heartbeat.Start(ctx)
	presence.Start(ctx)
	cleanup.Start(ctx)
	botManager.Start(ctx)
	matcher.Start(ctx)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     api.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s (storage=%s)", srv.Addr, cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}

	matcher.Stop()
	botManager.Stop()
	cleanup.Stop()
	presence.Stop()
	heartbeat.Stop()
	if err := persister.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("final snapshot flush")
	}
	return nil
}
