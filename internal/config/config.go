// internal/config/config.go

// Package config loads process settings from the environment (with .env
// autoload) and an optional YAML file named by JOINLY_CONFIG.
//
// Environment variables cover the process: listen port, storage backend,
// loop intervals. The YAML file declares domain defaults: the lobby config
// used when a request omits one, the queues to create at boot, and any extra
// bot profiles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/joinly/internal/bots"
	"github.com/jason-s-yu/joinly/internal/lobby"
	"github.com/jason-s-yu/joinly/internal/matchmaking"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config is the fully defaulted process configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	PostgresURL   string
	CacheSize     int
	CacheTTL      time.Duration
	FlushInterval time.Duration

	HeartbeatInterval time.Duration
	MatchInterval     time.Duration
	BotTickInterval   time.Duration
	PresenceInterval  time.Duration
	PresenceTimeout   time.Duration
	CleanupInterval   time.Duration

	// Populated from the YAML file, if any.
	File File
}

// File is the YAML document named by JOINLY_CONFIG. Durations are written
// as Go duration strings ("30s").
type File struct {
	Lobby       lobby.Config   `yaml:"lobby"`
	Queues      []BootQueue    `yaml:"queues"`
	BotProfiles []bots.Profile `yaml:"bot_profiles"`
}

// BootQueue names a queue to create at boot.
type BootQueue struct {
	ID     string                  `yaml:"id"`
	Config matchmaking.QueueConfig `yaml:"config"`
}

// UnmarshalYAML starts the queue config from matchmaking.DefaultQueueConfig
// so omitted keys keep their defaults instead of zero values.
func (b *BootQueue) UnmarshalYAML(node *yaml.Node) error {
	type plain BootQueue
	seeded := plain{Config: matchmaking.DefaultQueueConfig()}
	if err := node.Decode(&seeded); err != nil {
		return err
	}
	*b = BootQueue(seeded)
	return nil
}

// Default returns the configuration used before the environment is read.
func Default() *Config {
	return &Config{
		Port:              "8080",
		LogLevel:          "info",
		LogFormat:         "text",
		Storage:           StorageMemory,
		RedisAddr:         "localhost:6379",
		RedisPrefix:       "joinly:",
		CacheSize:         1024,
		CacheTTL:          30 * time.Second,
		FlushInterval:     5 * time.Second,
		HeartbeatInterval: time.Second,
		MatchInterval:     time.Second,
		BotTickInterval:   time.Second,
		PresenceInterval:  10 * time.Second,
		PresenceTimeout:   30 * time.Second,
		CleanupInterval:   5 * time.Minute,
		File: File{
			Lobby: lobby.DefaultConfig(),
		},
	}
}

// Load reads the environment and the optional YAML file.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an injectable environment lookup.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Port)
	str("JOINLY_LOG_LEVEL", &cfg.LogLevel)
	str("JOINLY_LOG_FORMAT", &cfg.LogFormat)
	str("JOINLY_STORAGE", &cfg.Storage)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	integer("REDIS_DB", &cfg.RedisDB)
	str("JOINLY_REDIS_PREFIX", &cfg.RedisPrefix)
	str("DATABASE_URL", &cfg.PostgresURL)
	integer("JOINLY_CACHE_SIZE", &cfg.CacheSize)
	duration("JOINLY_CACHE_TTL", &cfg.CacheTTL)
	duration("JOINLY_FLUSH_INTERVAL", &cfg.FlushInterval)
	duration("JOINLY_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	duration("JOINLY_MATCH_INTERVAL", &cfg.MatchInterval)
	duration("JOINLY_BOT_TICK_INTERVAL", &cfg.BotTickInterval)
	duration("JOINLY_PRESENCE_INTERVAL", &cfg.PresenceInterval)
	duration("JOINLY_PRESENCE_TIMEOUT", &cfg.PresenceTimeout)
	duration("JOINLY_CLEANUP_INTERVAL", &cfg.CleanupInterval)

	if path, ok := lookup("JOINLY_CONFIG"); ok && path != "" {
		if err := cfg.loadFile(path); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.parseFile(raw)
}

func (c *Config) parseFile(raw []byte) error {
	file := File{Lobby: lobby.DefaultConfig()}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	c.File = file
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid port %q", c.Port))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.LogFormat))
	}
	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis storage requires REDIS_ADDR"))
		}
	case StoragePostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("postgres storage requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage))
	}
	for name, d := range map[string]time.Duration{
		"heartbeat interval": c.HeartbeatInterval,
		"match interval":     c.MatchInterval,
		"bot tick interval":  c.BotTickInterval,
		"presence interval":  c.PresenceInterval,
		"presence timeout":   c.PresenceTimeout,
		"cleanup interval":   c.CleanupInterval,
		"flush interval":     c.FlushInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.CacheSize < 0 {
		errs = append(errs, errors.New("cache size must not be negative"))
	}
	if c.File.Lobby.MaxPlayers <= 0 {
		errs = append(errs, errors.New("lobby max_players must be positive"))
	}
	if c.File.Lobby.MaxBots < 0 {
		errs = append(errs, errors.New("lobby max_bots must not be negative"))
	}
	seen := make(map[string]bool)
	for i, q := range c.File.Queues {
		if q.ID == "" {
			errs = append(errs, fmt.Errorf("queue %d has no id", i))
			continue
		}
		if seen[q.ID] {
			errs = append(errs, fmt.Errorf("duplicate queue %q", q.ID))
		}
		seen[q.ID] = true
	}
	for i, p := range c.File.BotProfiles {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("bot profile %d has no name", i))
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
