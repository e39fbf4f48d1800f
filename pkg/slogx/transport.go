package slogx

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and logs one line per exchange using
// the logger carried by the request context (falling back to base).
//
// Only method, path, status and timing are logged. Headers are never logged
// because they carry bearer tokens.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport returns a logging RoundTripper around base (or
// http.DefaultTransport when base is nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	logger, ok := req.Context().Value(ctxKey{}).(*slog.Logger)
	if !ok {
		logger = t.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("http_request",
			"method", req.Method,
			"path", req.URL.Path,
			"duration_ms", duration,
			"error", err,
		)
		return nil, err
	}

	logger.Info("http_request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
