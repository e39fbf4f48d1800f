package malltest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
	"github.com/wh01sJake/mall-cloud/pkg/malltest"
)

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func post(t *testing.T, url string, body any) envelope {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	gw := malltest.NewGateway(t)

	env := post(t, gw.URL()+"/customer/login", map[string]string{
		"username": malltest.Alice.Username,
		"password": malltest.Alice.Password,
	})
	require.Zero(t, env.Code)

	var data struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	access, err := jwtx.ParseHS256(data.Token, gw.Secret)
	require.NoError(t, err)
	require.Equal(t, malltest.Alice.ID, access.UserID)
	require.False(t, access.IsRefresh())

	refresh, err := jwtx.ParseHS256(data.RefreshToken, gw.Secret)
	require.NoError(t, err)
	require.True(t, refresh.IsRefresh())

	env = post(t, gw.URL()+"/customer/login", map[string]string{"username": "alice", "password": "nope"})
	require.Equal(t, 1, env.Code)
	require.Equal(t, "Invalid username or password", env.Msg)
}

func TestRefreshEndpoint(t *testing.T) {
	gw := malltest.NewGateway(t)

	env := post(t, gw.URL()+"/customer/refresh-token", map[string]string{"refreshToken": gw.IssueRefresh(malltest.Alice)})
	require.Zero(t, env.Code)
	require.EqualValues(t, 1, gw.RefreshCalls())

	// Access tokens are not accepted as refresh tokens.
	env = post(t, gw.URL()+"/customer/refresh-token", map[string]string{"refreshToken": gw.IssueAccess(malltest.Alice, time.Hour)})
	require.Equal(t, 1, env.Code)

	gw.FailRefresh(&malltest.Failure{Status: http.StatusOK, Body: map[string]any{"code": 1, "msg": "down"}})
	env = post(t, gw.URL()+"/customer/refresh-token", map[string]string{"refreshToken": gw.IssueRefresh(malltest.Alice)})
	require.Equal(t, "down", env.Msg)
	require.EqualValues(t, 3, gw.RefreshCalls())
}

func TestRequireAuth(t *testing.T) {
	gw := malltest.NewGateway(t)

	get := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, gw.URL()+"/customer/session-info", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusUnauthorized, get("").StatusCode)
	require.Equal(t, http.StatusOK, get(gw.IssueAccess(malltest.Alice, time.Hour)).StatusCode)

	resp := get(gw.IssueAccess(malltest.Alice, -time.Minute))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "JWT expired", body["message"])

	require.Len(t, gw.RequestsTo("/customer/session-info"), 3)
}

func TestHoldRefresh(t *testing.T) {
	gw := malltest.NewGateway(t)
	release := gw.HoldRefresh()

	done := make(chan envelope, 1)
	go func() {
		done <- post(t, gw.URL()+"/customer/refresh-token", map[string]string{"refreshToken": gw.IssueRefresh(malltest.Alice)})
	}()

	require.Eventually(t, func() bool { return gw.RefreshCalls() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("refresh answered while held")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	require.Zero(t, (<-done).Code)
}
