package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsForMemoryStore(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("RECONCILE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.True(t, cfg.IdempotencyEnabled)
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "a-long-enough-production-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Config{
		Env: "development", Port: "80a", LogLevel: "trace",
		StoreDriver: DriverMemory, DBMaxConns: 1,
		JWTSecret: "0123456789abcdef", JWTIssuer: "x", JWTTTL: time.Hour,
		ReconcileInterval: time.Minute, ReconcileLockTTL: time.Minute,
		OutboxPollInterval: time.Second, IdempotencyTTL: time.Hour,
	}

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Port")
	assert.Contains(t, err.Error(), "LogLevel")

	cfg.Port, cfg.LogLevel = "8080", "info"
	assert.NoError(t, Validate(cfg))
}
