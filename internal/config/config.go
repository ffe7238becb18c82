// Package config loads the market engine's settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Cache   CacheConfig
	Market  MarketConfig
	Discord DiscordConfig
	Log     LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	RequestTimeout  time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"5s"`
}

// StoreConfig selects the listing and member backends.
type StoreConfig struct {
	Driver      string `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/market.db"`
}

// CacheConfig holds the optional Redis listing cache settings.
type CacheConfig struct {
	RedisURL string        `envconfig:"REDIS_URL"`
	TTL      time.Duration `envconfig:"CACHE_TTL" default:"30s"`
}

// MarketConfig holds engine policy.
type MarketConfig struct {
	PageSize      int           `envconfig:"MARKET_PAGE_SIZE" default:"20"`
	MaxPrice      int64         `envconfig:"MARKET_MAX_PRICE" default:"1000000000"`
	NotifyTimeout time.Duration `envconfig:"MARKET_NOTIFY_TIMEOUT" default:"10s"`
}

// DiscordConfig holds the bot credentials used for seller DMs.
type DiscordConfig struct {
	Token string `envconfig:"DISCORD_TOKEN"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SlogLevel maps the configured level name onto a slog level.
func (l *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Validate checks combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Market.MaxPrice < 0 {
		return fmt.Errorf("MARKET_MAX_PRICE must not be negative")
	}
	if c.Market.PageSize <= 0 {
		return fmt.Errorf("MARKET_PAGE_SIZE must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
