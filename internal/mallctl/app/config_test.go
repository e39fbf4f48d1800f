package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"MALL_ENV", "MALL_API_BASE_URL", "MALL_API_TIMEOUT", "MALL_REFRESH_HORIZON",
		"MALL_EXPIRY_SKEW", "MALL_CREDENTIAL_BACKEND", "MALL_PROFILE", "MALL_REDIS_PREFIX",
		"MALL_RATE_LIMIT_RPS", "MALL_RATE_LIMIT_BURST", "MALL_LOGIN_ROUTE",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, DevBaseURL, cfg.BaseURL)
	require.Equal(t, 10*time.Second, cfg.Timeout)
	require.Equal(t, 5*time.Minute, cfg.RefreshHorizon)
	require.Equal(t, 30*time.Second, cfg.ExpirySkew)
	require.Equal(t, "/login", cfg.LoginRoute)
	require.Equal(t, BackendSQLite, cfg.Backend)
	require.Equal(t, "mall:credentials:default:", cfg.RedisKeyPrefix())
	require.True(t, cfg.RateLimit.Enabled())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MALL_ENV", "prod")
	t.Setenv("MALL_API_BASE_URL", "")
	t.Setenv("MALL_API_TIMEOUT", "3s")
	t.Setenv("MALL_REFRESH_HORIZON", "120")
	t.Setenv("MALL_EXPIRY_SKEW", "bogus")
	t.Setenv("MALL_PROFILE", "admin")
	t.Setenv("MALL_REDIS_PREFIX", "")
	t.Setenv("MALL_RATE_LIMIT_RPS", "0")

	cfg := LoadConfig()
	require.Equal(t, ProdBaseURL, cfg.BaseURL)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, 2*time.Minute, cfg.RefreshHorizon)
	require.Equal(t, 30*time.Second, cfg.ExpirySkew)
	require.Equal(t, "mall:credentials:admin:", cfg.RedisKeyPrefix())
	require.False(t, cfg.RateLimit.Enabled())

	cfg.Profile = "customer"
	require.Equal(t, "mall:credentials:customer:", cfg.RedisKeyPrefix())
	cfg.RedisPrefix = "shop:"
	require.Equal(t, "shop:", cfg.RedisKeyPrefix())

	t.Setenv("MALL_API_BASE_URL", "http://gateway.test/api")
	require.Equal(t, "http://gateway.test/api", LoadConfig().BaseURL)
}
