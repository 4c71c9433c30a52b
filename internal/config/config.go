package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the pricing API server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// JobsConfig tunes the bulk pricing job engine.
//
// BatchSize is how many line items a job processes between progress updates.
// UndoWindow is how long after completion an apply job can still be undone.
// StuckAfter is how long a non-terminal job may go without a progress write
// before the supervisor declares it abandoned. StatusTTL bounds the Redis
// status mirror used by pollers.
type JobsConfig struct {
	BatchSize  int
	UndoWindow time.Duration
	StuckAfter time.Duration
	StatusTTL  time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PRICEBOOK_PORT", 8080),
			Env:  envString("PRICEBOOK_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Jobs: JobsConfig{
			BatchSize:  envInt("JOBS_BATCH_SIZE", 50),
			UndoWindow: envDurationSecs("JOBS_UNDO_WINDOW_SECS", 30*time.Second),
			StuckAfter: envDurationSecs("JOBS_STUCK_AFTER_SECS", 2*time.Minute),
			StatusTTL:  envDuration("JOBS_STATUS_TTL", 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Jobs.BatchSize <= 0 {
		return fmt.Errorf("JOBS_BATCH_SIZE must be positive, got %d", c.Jobs.BatchSize)
	}
	if c.Jobs.UndoWindow <= 0 {
		return fmt.Errorf("JOBS_UNDO_WINDOW_SECS must be positive")
	}
	if c.Jobs.StuckAfter <= 0 {
		return fmt.Errorf("JOBS_STUCK_AFTER_SECS must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
