package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("bogus"))
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "mallctl", Version: "test", Env: "test", Output: &buf})
	logger.Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "mallctl", line["service"])
	require.Equal(t, "v", line["k"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.Equal(t, slog.Default(), slogx.FromContext(context.Background()))
	require.Equal(t, slog.Default(), slogx.FromContext(slogx.WithContext(context.Background(), nil)))
}

func TestWithRequestIDTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	slogx.FromContext(slogx.WithRequestID(ctx, "req-9")).Info("tagged")
	slogx.FromContext(ctx).Info("untagged")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "req_id=req-9")
	require.NotContains(t, lines[1], "req_id")
}

func TestTransportLogsRequestWithoutHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client := &http.Client{Transport: slogx.NewTransport(nil, slogx.Discard())}

	ctx := slogx.WithRequestID(slogx.WithContext(context.Background(), logger), "req-1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/customer/session-info", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := buf.String()
	require.Contains(t, out, "http_request")
	require.Contains(t, out, "req_id=req-1")
	require.Contains(t, out, "status=418")
	require.Contains(t, out, "path=/customer/session-info")
	require.False(t, strings.Contains(out, "secret-token"))
}
