// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverPQ       = "pq"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port   string
	AppEnv string

	DB DBConfig

	RedisAddr   string
	KafkaBroker string
	JWTSecret   string

	LivePushInterval   time.Duration
	LiveCacheTTL       time.Duration
	StaleSessionMaxAge time.Duration
	StaleSweepInterval time.Duration
	OutboxPollInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

type DBConfig struct {
	Driver   string
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	SSLMode  string
	Path     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:   getEnv("PORT", "3000"),
		AppEnv: getEnv("APP_ENV", "development"),
		DB: DBConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:     getEnv("DB_HOST", "localhost"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "tn_work"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Path:     getEnv("DB_PATH", "./data/attendance.db"),
		},
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		KafkaBroker:        getEnv("KAFKA_BROKER", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		LivePushInterval:   getEnvDuration("LIVE_PUSH_INTERVAL", 30*time.Second),
		LiveCacheTTL:       getEnvDuration("LIVE_CACHE_TTL", 15*time.Second),
		StaleSessionMaxAge: getEnvDuration("STALE_SESSION_MAX_AGE", 0),
		StaleSweepInterval: getEnvDuration("STALE_SWEEP_INTERVAL", 5*time.Minute),
		OutboxPollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 3*time.Second),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
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
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverPQ:
		if c.DB.Host == "" || c.DB.Name == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for driver %q", c.DB.Driver)
		}
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.LivePushInterval <= 0 {
		return fmt.Errorf("LIVE_PUSH_INTERVAL must be > 0")
	}
	if c.StaleSessionMaxAge < 0 {
		return fmt.Errorf("STALE_SESSION_MAX_AGE must be >= 0")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// StaleSweepEnabled reports whether the worker should close stale sessions.
func (c *Config) StaleSweepEnabled() bool {
	return c.StaleSessionMaxAge > 0
}

// DSN builds the connection string for the configured driver.
func (d DBConfig) DSN() string {
	switch d.Driver {
	case DriverSQLite:
		return d.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	case DriverPQ:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     d.Host + ":" + d.Port,
			Path:     d.Name,
			RawQuery: "sslmode=" + d.SSLMode,
		}
		return u.String()
	default:
		return fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
		)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
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
