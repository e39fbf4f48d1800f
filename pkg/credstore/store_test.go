package credstore_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wh01sJake/mall-cloud/pkg/credstore"
	"github.com/wh01sJake/mall-cloud/pkg/cryptox"
	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

func TestSetTokensPartialUpdate(t *testing.T) {
	ctx := context.Background()
	s := credstore.NewMemoryStore()

	alice := &credstore.Identity{ID: 1, Username: "alice", Email: "a@example.com", Status: 1}
	require.NoError(t, s.SetTokens(ctx, "access-1", "refresh-1", alice))

	// Refresh-only update keeps the identity.
	require.NoError(t, s.SetTokens(ctx, "access-2", "refresh-2", nil))

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-2", access)

	refresh, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "refresh-2", refresh)

	id, err := s.Identity(ctx)
	require.NoError(t, err)
	require.Equal(t, alice, id)

	// Identity-only update keeps the tokens.
	require.NoError(t, s.SetTokens(ctx, "", "", &credstore.Identity{ID: 1, Username: "alice2"}))
	access, err = s.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-2", access)

	// Nothing to write is a no-op.
	require.NoError(t, s.SetTokens(ctx, "", "", nil))
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := credstore.NewMemoryStore()

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	require.Empty(t, access)

	id, err := s.Identity(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
}

func TestClearRemovesEverything(t *testing.T) {
	ctx := context.Background()
	backend := credstore.NewMemory()
	s := credstore.New(backend)

	require.NoError(t, s.SetTokens(ctx, "a", "r", &credstore.Identity{ID: 1}))
	require.NoError(t, s.Clear(ctx))

	for _, k := range credstore.Keys {
		_, ok, err := backend.Get(ctx, k)
		require.NoError(t, err)
		require.False(t, ok, k)
	}
}

func TestUnreadableIdentityIsAbsent(t *testing.T) {
	ctx := context.Background()
	backend := credstore.NewMemory()
	require.NoError(t, backend.SetMany(ctx, map[string]string{credstore.KeyIdentity: "{not json"}))

	s := credstore.New(backend, credstore.WithLogger(slogx.Discard()))
	id, err := s.Identity(ctx)
	require.NoError(t, err)
	require.Nil(t, id)
}

func TestSealedValuesAtRest(t *testing.T) {
	ctx := context.Background()
	sealer, err := cryptox.NewSealer([]byte("master"))
	require.NoError(t, err)

	backend := credstore.NewMemory()
	s := credstore.New(backend, credstore.WithSealer(sealer), credstore.WithLogger(slogx.Discard()))
	require.NoError(t, s.SetTokens(ctx, "header.payload.sig", "refresh", &credstore.Identity{ID: 4, Username: "eve"}))

	raw, ok, err := backend.Get(ctx, credstore.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(raw, "sealed:v1:"))

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "header.payload.sig", access)

	id, err := s.Identity(ctx)
	require.NoError(t, err)
	require.Equal(t, "eve", id.Username)

	// A plaintext value left over from an unsealed client reads as absent.
	require.NoError(t, backend.SetMany(ctx, map[string]string{credstore.KeyRefreshToken: "plain"}))
	refresh, err := s.RefreshToken(ctx)
	require.NoError(t, err)
	require.Empty(t, refresh)
}

func TestClosedMemoryBackend(t *testing.T) {
	ctx := context.Background()
	s := credstore.NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.AccessToken(ctx)
	require.ErrorIs(t, err, credstore.ErrClosed)
	require.ErrorIs(t, s.SetTokens(ctx, "a", "", nil), credstore.ErrClosed)
	require.ErrorIs(t, s.Clear(ctx), credstore.ErrClosed)
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := credstore.NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 0 {
				_ = s.Clear(ctx)
				return
			}
			_ = s.SetTokens(ctx, "a", "r", nil)
			_, _ = s.AccessToken(ctx)
		}()
	}
	wg.Wait()
}
