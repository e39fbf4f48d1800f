package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/wh01sJake/mall-cloud/pkg/credstore"
	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
)

func TestNewBackends(t *testing.T) {
	ctx := context.Background()
	t.Setenv("MALL_MASTER_KEY", "")

	t.Run("sqlite creates the directory", func(t *testing.T) {
		cfg := LoadConfig()
		cfg.Backend = BackendSQLite
		cfg.CredentialFile = filepath.Join(t.TempDir(), "nested", "credentials.db")

		a, err := New(ctx, cfg, &bytes.Buffer{})
		require.NoError(t, err)
		defer a.Close()

		require.NoError(t, a.Store().SetTokens(ctx, "a.b.c", "", nil))
		token, err := a.Store().AccessToken(ctx)
		require.NoError(t, err)
		require.Equal(t, "a.b.c", token)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := LoadConfig()
		cfg.Backend = BackendRedis
		cfg.RedisAddr = mr.Addr()

		a, err := New(ctx, cfg, &bytes.Buffer{})
		require.NoError(t, err)
		defer a.Close()

		require.NoError(t, a.Store().SetTokens(ctx, "a.b.c", "r", &credstore.Identity{ID: 1}))
		require.True(t, mr.Exists(cfg.RedisKeyPrefix()+credstore.KeyAccessToken))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		cfg := LoadConfig()
		cfg.Backend = BackendRedis
		cfg.RedisAddr = addr

		_, err = New(ctx, cfg, &bytes.Buffer{})
		require.ErrorContains(t, err, "failed to connect to redis")
	})

	t.Run("sealed at rest", func(t *testing.T) {
		t.Setenv("MALL_MASTER_KEY", "correct horse battery staple")
		mr := miniredis.RunT(t)
		cfg := LoadConfig()
		cfg.Backend = BackendRedis
		cfg.RedisAddr = mr.Addr()

		a, err := New(ctx, cfg, &bytes.Buffer{})
		require.NoError(t, err)
		defer a.Close()

		require.NoError(t, a.Store().SetTokens(ctx, "a.b.c", "", nil))
		raw, err := mr.Get(cfg.RedisKeyPrefix() + credstore.KeyAccessToken)
		require.NoError(t, err)
		require.NotEqual(t, "a.b.c", raw)
		require.Contains(t, raw, "sealed:v1:")
	})
}

func TestZeroWindowsDisableInspector(t *testing.T) {
	t.Setenv("MALL_MASTER_KEY", "")
	t.Setenv("MALL_EXPIRY_SKEW", "0")
	t.Setenv("MALL_REFRESH_HORIZON", "")

	cfg := LoadConfig()
	cfg.Backend = BackendMemory
	require.Zero(t, cfg.ExpirySkew)

	a, err := New(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close()

	in := a.Client().Inspector()
	require.Negative(t, in.Skew)
	require.Equal(t, jwtx.DefaultRefreshHorizon, in.Horizon)

	token, err := jwtx.SignHS256(jwtx.NewAccessClaims(1, "alice", "alice@example.com", 1, 10*time.Second, time.Now()), []byte("secret"))
	require.NoError(t, err)
	require.False(t, in.IsExpired(token))
}
