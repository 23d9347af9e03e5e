// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Session     SessionConfig
	History     HistoryConfig
	EventLog    EventLogConfig
}

// SessionConfig bounds the lifecycle of one streaming session.
type SessionConfig struct {
	RequestIdleTimeout time.Duration
	RunnerTimeout      time.Duration
	SendQueueSize      int
}

// HistoryConfig controls how long finished session records are kept.
type HistoryConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// EventLogConfig controls NDJSON envelope logging.
type EventLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/gateway.db"),
		Session: SessionConfig{
			RequestIdleTimeout: getEnvDuration("REQUEST_IDLE_TIMEOUT", 30*time.Second),
			RunnerTimeout:      getEnvDuration("RUNNER_TIMEOUT", 2*time.Minute),
			SendQueueSize:      getEnvInt("SEND_QUEUE_SIZE", 64),
		},
		History: HistoryConfig{
			Retention:     getEnvDuration("HISTORY_RETENTION", 7*24*time.Hour),
			SweepInterval: getEnvDuration("HISTORY_SWEEP_INTERVAL", time.Hour),
		},
		EventLog: EventLogConfig{
			Enabled:   getEnvBool("EVENT_LOG_ENABLED", false),
			Dir:       getEnv("EVENT_LOG_DIR", "./data/logs/events"),
			QueueSize: getEnvInt("EVENT_LOG_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Session.RequestIdleTimeout <= 0 {
		return fmt.Errorf("REQUEST_IDLE_TIMEOUT must be > 0")
	}
	if c.Session.RunnerTimeout <= 0 {
		return fmt.Errorf("RUNNER_TIMEOUT must be > 0")
	}
	if c.Session.SendQueueSize <= 0 {
		return fmt.Errorf("SEND_QUEUE_SIZE must be > 0")
	}
	if c.History.Retention <= 0 {
		return fmt.Errorf("HISTORY_RETENTION must be > 0")
	}
	if c.History.SweepInterval <= 0 {
		return fmt.Errorf("HISTORY_SWEEP_INTERVAL must be > 0")
	}
	if c.EventLog.Enabled {
		if c.EventLog.Dir == "" {
			return fmt.Errorf("EVENT_LOG_DIR cannot be empty")
		}
		if c.EventLog.QueueSize <= 0 {
			return fmt.Errorf("EVENT_LOG_QUEUE_SIZE must be > 0")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
