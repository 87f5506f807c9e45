package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("DisconnectGrace converts milliseconds to duration", func(t *testing.T) {
		cfg := &Config{DisconnectGraceMs: 3000}
		assert.Equal(t, 3*time.Second, cfg.DisconnectGrace())
	})

	t.Run("DefaultRequestTTL converts seconds to duration", func(t *testing.T) {
		cfg := &Config{DefaultRequestTTLSeconds: 30}
		assert.Equal(t, 30*time.Second, cfg.DefaultRequestTTL())
	})

	t.Run("HistoryRetention converts days to duration", func(t *testing.T) {
		cfg := &Config{HistoryRetentionDays: 2}
		assert.Equal(t, 48*time.Hour, cfg.HistoryRetention())
	})
}

func validConfig() *Config {
	return &Config{
		QueueMode:                QueueModeDirect,
		DisconnectGraceMs:        3000,
		DefaultRequestTTLSeconds: 30,
		MaxRequestTTLSeconds:     600,
		EnqueueTimeoutMs:         5000,
		SweepIntervalSeconds:     30,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid direct config", mutate: func(c *Config) {}},
		{
			name:   "redis mode with url",
			mutate: func(c *Config) { c.QueueMode = QueueModeRedis; c.RedisURL = "redis://localhost:6379" },
		},
		{
			name:    "redis mode without url",
			mutate:  func(c *Config) { c.QueueMode = QueueModeRedis },
			wantErr: "REDIS_URL is required",
		},
		{
			name:    "unknown queue mode",
			mutate:  func(c *Config) { c.QueueMode = "kafka" },
			wantErr: "QUEUE_MODE must be",
		},
		{
			name:    "zero grace window",
			mutate:  func(c *Config) { c.DisconnectGraceMs = 0 },
			wantErr: "DISCONNECT_GRACE_MS",
		},
		{
			name:    "max ttl below default",
			mutate:  func(c *Config) { c.MaxRequestTTLSeconds = 10 },
			wantErr: "MAX_REQUEST_TTL_SECONDS",
		},
		{
			name:    "zero enqueue timeout",
			mutate:  func(c *Config) { c.EnqueueTimeoutMs = 0 },
			wantErr: "ENQUEUE_TIMEOUT_MS",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	keys := []string{"PORT", "QUEUE_MODE", "DISCONNECT_GRACE_MS", "LOG_LEVEL", "ALLOWED_ORIGINS", "REDIS_URL"}
	originalEnv := make(map[string]string, len(keys))
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		for _, k := range keys {
			os.Unsetenv(k)
		}

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, QueueModeDirect, cfg.QueueMode)
		assert.Equal(t, 3000, cfg.DisconnectGraceMs)
		assert.Equal(t, 30, cfg.DefaultRequestTTLSeconds)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Empty(t, cfg.AllowedOrigins)
	})

	t.Run("loads custom values", func(t *testing.T) {
		os.Setenv("PORT", "3002")
		os.Setenv("QUEUE_MODE", "redis")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("DISCONNECT_GRACE_MS", "1500")
		os.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,https://peerprep.example")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 3002, cfg.Port)
		assert.Equal(t, QueueModeRedis, cfg.QueueMode)
		assert.Equal(t, 1500*time.Millisecond, cfg.DisconnectGrace())
		assert.Equal(t, []string{"http://localhost:3000", "https://peerprep.example"}, cfg.AllowedOrigins)
	})

	t.Run("fails on malformed integer", func(t *testing.T) {
		os.Setenv("PORT", "not-a-port")

		_, err := Load()
		assert.Error(t, err)
	})
}
