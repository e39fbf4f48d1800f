package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wh01sJake/mall-cloud/pkg/httpx"
)

func TestWriteOK(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteOK(rec, map[string]string{"token": "abc"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.JSONEq(t, `{"code":0,"data":{"token":"abc"}}`, rec.Body.String())
}

func TestWriteResultError(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteResultError(rec, "Invalid username or password")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"code":1,"msg":"Invalid username or password"}`, rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"valid":      {"Bearer abc.def.ghi", "abc.def.ghi", true},
		"missing":    {"", "", false},
		"wrong kind": {"Basic dXNlcjpwYXNz", "", false},
		"empty":      {"Bearer  ", "", false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			token, ok := httpx.BearerToken(req)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.token, token)
		})
	}
}
