package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// Result is the gateway's response envelope as written by services.
type Result struct {
	Code int    `json:"code"`
	Data any    `json:"data,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

// WriteOK writes a 200 envelope with code 0.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Result{Code: 0, Data: data})
}

// WriteResultError writes a 200 envelope with code 1. Services report
// application failures this way rather than with an HTTP status.
func WriteResultError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, Result{Code: 1, Msg: msg})
}

// WriteGatewayError writes the body the gateway filter produces when it
// rejects a request itself.
func WriteGatewayError(w http.ResponseWriter, code int, errText, message string) {
	WriteJSON(w, code, map[string]string{
		"error":   errText,
		"message": message,
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
