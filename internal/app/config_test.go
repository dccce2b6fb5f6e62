package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 90*time.Second, cfg.ReportCacheTTL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, "0 2 * * *", cfg.IntegrityCron)
	require.Equal(t, 30*24*time.Hour, cfg.IdempotencyRetention)
}

func TestLoadConfigRejectsBadRetention(t *testing.T) {
	t.Setenv("IDEMPOTENCY_RETENTION", "0s")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("IDEMPOTENCY_RETENTION", "soon")
	_, err = LoadConfig()
	require.Error(t, err)
}
