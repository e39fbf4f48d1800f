package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/wh01sJake/mall-cloud/pkg/httpx"
	"github.com/wh01sJake/mall-cloud/pkg/malltest"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes one mallctl invocation against gw with credentials in dbPath.
func run(t *testing.T, gw *malltest.Gateway, dbPath string, stdin string, args ...string) result {
	t.Helper()

	cmd, opts := newRootCMD()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--base-url", gw.URL()}, args...))

	err := cmd.ExecuteContext(context.Background())
	if opts.application != nil {
		require.NoError(t, opts.application.Close())
	}
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func setup(t *testing.T) (*malltest.Gateway, string) {
	t.Helper()
	t.Setenv("MALL_CREDENTIAL_BACKEND", "sqlite")
	t.Setenv("MALL_MASTER_KEY", "test-master-key")
	t.Setenv("MALL_PASSWORD", "")
	t.Setenv("LOG_LEVEL", "error")

	dbPath := filepath.Join(t.TempDir(), "credentials.db")
	t.Setenv("MALL_CREDENTIAL_FILE", dbPath)

	gw := malltest.NewGateway(t)
	gw.HandleProtected("GET /order/list", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteOK(w, []map[string]any{{"id": 11}})
	})
	gw.HandleProtected("POST /cart/add", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		httpx.WriteOK(w, body)
	})
	return gw, dbPath
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	gw, db := setup(t)

	res := run(t, gw, db, malltest.Alice.Password+"\n", "login", "-u", malltest.Alice.Username)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "logged in as alice (id 1)")

	res = run(t, gw, db, "", "whoami")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"username": "alice"`)

	res = run(t, gw, db, "", "get", "order/list")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"id": 11`)

	res = run(t, gw, db, "", "post", "/cart/add", `{"productId":3,"quantity":2}`)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"quantity": 2`)

	res = run(t, gw, db, "", "session")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"userId": 1`)

	res = run(t, gw, db, "", "logout")
	require.NoError(t, res.err)

	res = run(t, gw, db, "", "whoami")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "not logged in")
}

func TestLoginRejected(t *testing.T) {
	gw, db := setup(t)

	res := run(t, gw, db, "", "login", "-u", "alice", "-p", "wrong")
	require.ErrorContains(t, res.err, "Invalid username or password")

	res = run(t, gw, db, "", "token")
	require.ErrorContains(t, res.err, "no access token stored")
}

func TestTokenAndRefresh(t *testing.T) {
	gw, db := setup(t)
	t.Setenv("MALL_PASSWORD", malltest.Alice.Password)

	require.NoError(t, run(t, gw, db, "", "login", "-u", "alice").err)

	res := run(t, gw, db, "", "token")
	require.NoError(t, res.err)
	var summary struct {
		Valid        bool  `json:"valid"`
		UserID       int64 `json:"userId"`
		Expired      bool  `json:"expired"`
		NeedsRefresh bool  `json:"needsRefresh"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summary))
	require.True(t, summary.Valid)
	require.EqualValues(t, 1, summary.UserID)
	require.False(t, summary.Expired)

	raw := run(t, gw, db, "", "token", "--raw")
	require.NoError(t, raw.err)
	require.Len(t, strings.Split(strings.TrimSpace(raw.stdout), "."), 3)

	time.Sleep(time.Second) // a new iat makes the refreshed token differ
	res = run(t, gw, db, "", "refresh")
	require.NoError(t, res.err)
	require.EqualValues(t, 1, gw.RefreshCalls())

	after := run(t, gw, db, "", "token", "--raw")
	require.NoError(t, after.err)
	require.NotEqual(t, raw.stdout, after.stdout)
}

func TestExpiredSessionHint(t *testing.T) {
	gw, db := setup(t)
	t.Setenv("MALL_PASSWORD", malltest.Alice.Password)
	require.NoError(t, run(t, gw, db, "", "login", "-u", "alice").err)

	gw.FailRefresh(&malltest.Failure{Status: http.StatusOK, Body: map[string]any{"code": 1, "msg": "Refresh token expired. Please login again."}})

	res := run(t, gw, db, "", "refresh")
	require.Error(t, res.err)
	require.Contains(t, res.err.Error(), "session ended (redirected to /login)")

	res = run(t, gw, db, "", "get", "/order/list")
	require.Error(t, res.err)
	require.Contains(t, res.err.Error(), "session ended")
}

func TestUnknownBackend(t *testing.T) {
	gw, db := setup(t)
	res := run(t, gw, db, "", "--backend", "etcd", "whoami")
	require.ErrorContains(t, res.err, `unknown credential backend "etcd"`)
}

func TestPostRejectsInvalidJSON(t *testing.T) {
	gw, db := setup(t)
	res := run(t, gw, db, "", "post", "/cart/add", "{nope")
	require.ErrorContains(t, res.err, "not valid JSON")
}

func TestRedisProfilesUseSeparateKeys(t *testing.T) {
	gw, _ := setup(t)
	mr := miniredis.RunT(t)
	t.Setenv("MALL_CREDENTIAL_BACKEND", "redis")
	t.Setenv("MALL_REDIS_ADDR", mr.Addr())
	t.Setenv("MALL_REDIS_PREFIX", "")
	t.Setenv("MALL_PROFILE", "")

	res := run(t, gw, "", malltest.Alice.Password+"\n", "--profile", "admin", "login", "-u", malltest.Alice.Username)
	require.NoError(t, res.err)
	require.True(t, mr.Exists("mall:credentials:admin:jwt_token"))
	require.False(t, mr.Exists("mall:credentials:default:jwt_token"))

	res = run(t, gw, "", malltest.Alice.Password+"\n", "--profile", "customer", "login", "-u", malltest.Alice.Username)
	require.NoError(t, res.err)
	require.True(t, mr.Exists("mall:credentials:customer:jwt_token"))

	res = run(t, gw, "", "", "--profile", "customer", "logout")
	require.NoError(t, res.err)
	require.False(t, mr.Exists("mall:credentials:customer:jwt_token"))
	require.True(t, mr.Exists("mall:credentials:admin:jwt_token"))
}
