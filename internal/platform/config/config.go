package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageBolt     = "bbolt"

	EventBusInProcess = "inprocess"
	EventBusNATS      = "nats"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName   string
	HTTPPort      string
	StorageDriver string
	PostgresDSN   string
	BoltPath      string
	EventBus      string
	NATSURL       string

	IdempotencyTTL     time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	ResultCacheSize    int

	LogLevel  slog.Level
	LogFormat string
}

// Load reads the process environment. A .env file in the working directory,
// when present, fills variables that are not already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		ServiceName:   envString("SERVICE_NAME", "d21-voting"),
		HTTPPort:      envString("HTTP_PORT", "8080"),
		StorageDriver: strings.ToLower(envString("STORAGE_DRIVER", StorageMemory)),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		BoltPath:      envString("BBOLT_PATH", "d21vote.db"),
		EventBus:      strings.ToLower(envString("EVENT_BUS", EventBusInProcess)),
		NATSURL:       envString("NATS_URL", "nats://127.0.0.1:4222"),
		LogFormat:     strings.ToLower(envString("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.IdempotencyTTL, err = envDuration("IDEMPOTENCY_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.OutboxBatchSize, err = envInt("OUTBOX_BATCH_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.ResultCacheSize, err = envInt("RESULT_CACHE_SIZE", 1024); err != nil {
		return Config{}, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(envString("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the combinations the composition root relies on.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageBolt:
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.StorageDriver == StorageBolt && strings.TrimSpace(c.BoltPath) == "" {
		return errors.New("BBOLT_PATH is required when STORAGE_DRIVER=bbolt")
	}
	switch c.EventBus {
	case EventBusInProcess, EventBusNATS:
	default:
		return fmt.Errorf("unsupported EVENT_BUS %q", c.EventBus)
	}
	// Only the worker relays to NATS, and it cannot read another process's memory.
	if c.StorageDriver == StorageMemory && c.EventBus == EventBusNATS {
		return errors.New("EVENT_BUS=nats needs shared storage; set STORAGE_DRIVER to postgres or bbolt")
	}
	if c.OutboxPollInterval <= 0 {
		return errors.New("OUTBOX_POLL_INTERVAL must be positive")
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func envString(name string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return value, nil
}
