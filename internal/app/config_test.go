package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "short")
	t.Setenv("APP_ENV", "production")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("APP_ENV", "development")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.LoginPerMinute)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.Equal(t, "conformapro", cfg.JWTIssuer)
}

func TestLoadMigrateConfigIgnoresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PG_DSN", "postgres://example/db")
	cfg, err := LoadMigrateConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://example/db", cfg.PGDSN)
}

func TestRedisOptionsFollowConfig(t *testing.T) {
	cfg := &Config{RedisAddr: "redis:6379", RedisPassword: "pw", RedisDB: 2}
	assert.Equal(t, "redis:6379", cfg.Redis().Addr)
	assert.Equal(t, 2, cfg.Redis().DB)
	assert.Equal(t, "pw", cfg.AsynqRedis().Password)
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Debug("hidden")
	logger.Info("visible", slog.String("k", "v"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "production", entry["env"])

	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelDebug}
	for raw, want := range cases {
		assert.Equal(t, want, logLevel(&Config{AppEnv: "development", LogLevel: raw}), raw)
	}
}
