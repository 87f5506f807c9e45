package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	QueueModeDirect = "direct"
	QueueModeRedis  = "redis"
)

type Config struct {
	Port                     int      `env:"PORT" envDefault:"8080"`
	LogLevel                 string   `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL                 string   `env:"REDIS_URL"`
	DatabaseURL              string   `env:"DATABASE_URL"`
	QueueMode                string   `env:"QUEUE_MODE" envDefault:"direct"`
	DisconnectGraceMs        int      `env:"DISCONNECT_GRACE_MS" envDefault:"3000"`
	DefaultRequestTTLSeconds int      `env:"DEFAULT_REQUEST_TTL_SECONDS" envDefault:"30"`
	MaxRequestTTLSeconds     int      `env:"MAX_REQUEST_TTL_SECONDS" envDefault:"600"`
	EnqueueTimeoutMs         int      `env:"ENQUEUE_TIMEOUT_MS" envDefault:"5000"`
	SweepIntervalSeconds     int      `env:"SWEEP_INTERVAL_SECONDS" envDefault:"30"`
	HistoryRetentionDays     int      `env:"HISTORY_RETENTION_DAYS" envDefault:"30"`
	ConnectRateLimitPerMin   int      `env:"CONNECT_RATE_LIMIT_PER_MIN" envDefault:"30"`
	AllowedOrigins           []string `env:"ALLOWED_ORIGINS" envSeparator:","`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) DisconnectGrace() time.Duration {
	return time.Duration(c.DisconnectGraceMs) * time.Millisecond
}

func (c *Config) DefaultRequestTTL() time.Duration {
	return time.Duration(c.DefaultRequestTTLSeconds) * time.Second
}

func (c *Config) MaxRequestTTL() time.Duration {
	return time.Duration(c.MaxRequestTTLSeconds) * time.Second
}

func (c *Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.EnqueueTimeoutMs) * time.Millisecond
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

func (c *Config) Validate() error {
	switch c.QueueMode {
	case QueueModeDirect:
	case QueueModeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when QUEUE_MODE=%s", QueueModeRedis)
		}
	default:
		return fmt.Errorf("QUEUE_MODE must be %q or %q, got %q", QueueModeDirect, QueueModeRedis, c.QueueMode)
	}

	if c.DisconnectGraceMs <= 0 {
		return fmt.Errorf("DISCONNECT_GRACE_MS must be positive")
	}
	if c.DefaultRequestTTLSeconds <= 0 {
		return fmt.Errorf("DEFAULT_REQUEST_TTL_SECONDS must be positive")
	}
	if c.MaxRequestTTLSeconds < c.DefaultRequestTTLSeconds {
		return fmt.Errorf("MAX_REQUEST_TTL_SECONDS must not be lower than DEFAULT_REQUEST_TTL_SECONDS")
	}
	if c.EnqueueTimeoutMs <= 0 {
		return fmt.Errorf("ENQUEUE_TIMEOUT_MS must be positive")
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}

	if c.RedisURL == "" {
		log.Warn().Msg("REDIS_URL is empty: connect rate limiting is per-process")
	} else if strings.HasPrefix(c.RedisURL, "redis://") && c.QueueMode == QueueModeRedis {
		log.Debug().Msg("REDIS_URL uses redis:// (not TLS)")
	}
	if c.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL is empty: match history will not be recorded")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
