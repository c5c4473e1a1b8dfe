package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "@tcp(localhost:3306)/muzz")
	assert.Equal(t, 72*time.Hour, cfg.Matching.RequestTTL)
	assert.Equal(t, 75.0, cfg.Compat.DefaultScore)
	assert.Equal(t, time.Duration(0), cfg.Compat.MaxAge)
	assert.Equal(t, "db", cfg.RateLimit.Backend)
	assert.Equal(t, "50051", cfg.GRPC.Port)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("MATCH_REQUEST_TTL", "24h")
	t.Setenv("COMPAT_DEFAULT_SCORE", "50")
	t.Setenv("RATE_LIMIT_BACKEND", "REDIS")
	t.Setenv("LOG_SOURCE", "yes")

	cfg := New()

	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "host=pg")
	assert.Equal(t, 24*time.Hour, cfg.Matching.RequestTTL)
	assert.Equal(t, 50.0, cfg.Compat.DefaultScore)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.True(t, cfg.Log.Source)
}

func TestNew_ExplicitDSNWins(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file::memory:")

	cfg := New()

	assert.Equal(t, "file::memory:", cfg.DB.DSN)
}
