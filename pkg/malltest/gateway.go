// Package malltest provides an in-process fake of the mall API gateway for
// exercising clients against real HTTP.
package malltest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wh01sJake/mall-cloud/pkg/cryptox"
	"github.com/wh01sJake/mall-cloud/pkg/httpx"
	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
)

// User is an account known to the fake gateway.
type User struct {
	ID       int64
	Username string
	Password string
	Email    string
	Status   int
}

// Alice is registered on every new gateway.
var Alice = User{ID: 1, Username: "alice", Password: "alice-password", Email: "alice@example.com", Status: 1}

// Recorded is what the gateway saw of one request.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Failure is a scripted response for the refresh endpoint.
type Failure struct {
	Status int
	Body   any
}

// Gateway is a fake mall gateway backed by httptest.Server. Tokens are
// HS256-signed with a random per-gateway secret.
type Gateway struct {
	Server *httptest.Server
	Secret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	mux *http.ServeMux

	mu             sync.Mutex
	users          map[string]User
	nextID         int64
	requests       []Recorded
	refreshFailure *Failure
	refreshGate    chan struct{}

	refreshCalls atomic.Int64
}

// GatewayOption configures a Gateway.
type GatewayOption func(*gatewayConfig)

type gatewayConfig struct {
	rateLimit httpx.RateLimitConfig
}

// WithRateLimit throttles the gateway per client IP.
func WithRateLimit(cfg httpx.RateLimitConfig) GatewayOption {
	return func(c *gatewayConfig) { c.rateLimit = cfg }
}

// NewGateway starts a fake gateway that is closed when t finishes.
func NewGateway(t testing.TB, opts ...GatewayOption) *Gateway {
	t.Helper()

	var cfg gatewayConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	secret, err := cryptox.GenerateSecret(cryptox.SecretSize256)
	if err != nil {
		t.Fatalf("malltest: generate secret: %v", err)
	}

	g := &Gateway{
		Secret:     []byte(secret),
		AccessTTL:  jwtx.AccessTokenTTL,
		RefreshTTL: jwtx.RefreshTokenTTL,
		mux:        http.NewServeMux(),
		users:      map[string]User{Alice.Username: Alice},
		nextID:     Alice.ID + 1,
	}

	g.mux.HandleFunc("POST /customer/login", g.handleLogin)
	g.mux.HandleFunc("POST /customer/logout", g.handleLogout)
	g.mux.HandleFunc("POST /customer/register", g.handleRegister)
	g.mux.HandleFunc("POST /customer/refresh-token", g.handleRefresh)
	g.mux.Handle("GET /customer/session-info", g.RequireAuth(http.HandlerFunc(g.handleSessionInfo)))

	handler := httpx.RateLimitMiddleware(cfg.rateLimit, httpx.IPKeyExtractor)(g.record(g.mux))
	g.Server = httptest.NewServer(handler)
	t.Cleanup(g.Server.Close)

	return g
}

// URL is the gateway base URL.
func (g *Gateway) URL() string { return g.Server.URL }

// Handle registers an extra route, e.g. "GET /order/list".
func (g *Gateway) Handle(pattern string, h http.HandlerFunc) {
	g.mux.Handle(pattern, h)
}

// HandleProtected registers an extra route behind bearer authentication.
func (g *Gateway) HandleProtected(pattern string, h http.HandlerFunc) {
	g.mux.Handle(pattern, g.RequireAuth(h))
}

// AddUser registers u, assigning an ID when it has none.
func (g *Gateway) AddUser(u User) User {
	g.mu.Lock()
	defer g.mu.Unlock()

	if u.ID == 0 {
		u.ID = g.nextID
		g.nextID++
	}
	if u.Status == 0 {
		u.Status = 1
	}
	g.users[u.Username] = u
	return u
}

// IssueAccess mints an access token for u expiring after ttl.
func (g *Gateway) IssueAccess(u User, ttl time.Duration) string {
	token, err := jwtx.SignHS256(jwtx.NewAccessClaims(u.ID, u.Username, u.Email, u.Status, ttl, time.Now()), g.Secret)
	if err != nil {
		panic(err)
	}
	return token
}

// IssueRefresh mints a refresh token for u.
func (g *Gateway) IssueRefresh(u User) string {
	token, err := jwtx.SignHS256(jwtx.NewRefreshClaims(u.ID, g.RefreshTTL, time.Now()), g.Secret)
	if err != nil {
		panic(err)
	}
	return token
}

// FailRefresh makes every refresh call answer with f. Pass nil to restore.
func (g *Gateway) FailRefresh(f *Failure) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshFailure = f
}

// HoldRefresh blocks refresh calls until the returned release is called.
func (g *Gateway) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	g.mu.Lock()
	g.refreshGate = gate
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.refreshGate = nil
			g.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls returns how many refresh requests arrived.
func (g *Gateway) RefreshCalls() int64 { return g.refreshCalls.Load() }

// Requests returns every request seen, oldest first.
func (g *Gateway) Requests() []Recorded {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Recorded(nil), g.requests...)
}

// RequestsTo returns the recorded requests for one path.
func (g *Gateway) RequestsTo(path string) []Recorded {
	var out []Recorded
	for _, r := range g.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (g *Gateway) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.requests = append(g.requests, Recorded{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		g.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a valid access token the way the
// gateway filter does: 401 with an error/message body.
func (g *Gateway) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := httpx.BearerToken(r)
		if !ok {
			httpx.WriteGatewayError(w, http.StatusUnauthorized, "Unauthorized", "Missing or invalid Authorization header")
			return
		}

		claims, err := jwtx.ParseHS256(token, g.Secret)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			httpx.WriteGatewayError(w, http.StatusUnauthorized, "Unauthorized", "JWT expired")
			return
		case err != nil, claims.IsRefresh():
			httpx.WriteGatewayError(w, http.StatusUnauthorized, "Unauthorized", "Invalid JWT token")
			return
		}

		r.Header.Set("X-User-Id", strconv.FormatInt(claims.UserID, 10))
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed request body"})
		return
	}

	g.mu.Lock()
	u, ok := g.users[req.Username]
	g.mu.Unlock()
	if !ok || u.Password != req.Password {
		httpx.WriteResultError(w, "Invalid username or password")
		return
	}

	httpx.WriteOK(w, map[string]any{
		"token":        g.IssueAccess(u, g.AccessTTL),
		"refreshToken": g.IssueRefresh(u),
		"user": map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"status":   u.Status,
		},
		"message": "Login successful",
	})
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	httpx.WriteOK(w, "Logout successful")
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteResultError(w, "invalid form body")
		return
	}

	username, password := r.PostFormValue("username"), r.PostFormValue("password")
	if r.PostFormValue("inviteCode") == "" || username == "" || password == "" {
		httpx.WriteResultError(w, "Invite code, username and password are required")
		return
	}

	g.mu.Lock()
	_, taken := g.users[username]
	g.mu.Unlock()
	if taken {
		httpx.WriteResultError(w, "Username already exists")
		return
	}

	g.AddUser(User{Username: username, Password: password, Email: r.PostFormValue("email")})
	httpx.WriteOK(w, nil)
}

func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	g.refreshCalls.Add(1)

	g.mu.Lock()
	gate, failure := g.refreshGate, g.refreshFailure
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if failure != nil {
		httpx.WriteJSON(w, failure.Status, failure.Body)
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteResultError(w, "Invalid refresh token. Please login again.")
		return
	}

	claims, err := jwtx.ParseHS256(req.RefreshToken, g.Secret)
	if errors.Is(err, jwt.ErrTokenExpired) {
		httpx.WriteResultError(w, "Refresh token expired. Please login again.")
		return
	}
	if err != nil || !claims.IsRefresh() {
		httpx.WriteResultError(w, "Invalid refresh token. Please login again.")
		return
	}

	id := claims.Identity()
	if id == nil {
		httpx.WriteResultError(w, "Invalid refresh token. Please login again.")
		return
	}
	u, ok := g.userByID(id.UserID)
	if !ok {
		httpx.WriteResultError(w, "Invalid refresh token. Please login again.")
		return
	}

	httpx.WriteOK(w, map[string]string{
		"token":        g.IssueAccess(u, g.AccessTTL),
		"refreshToken": g.IssueRefresh(u),
	})
}

func (g *Gateway) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	u, ok := g.userByID(id)
	if !ok {
		httpx.WriteResultError(w, "Invalid or expired token")
		return
	}

	httpx.WriteOK(w, map[string]any{
		"userId":   u.ID,
		"username": u.Username,
		"email":    u.Email,
		"status":   u.Status,
	})
}

func (g *Gateway) userByID(id int64) (User, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}
