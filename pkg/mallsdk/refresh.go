package mallsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

const refreshKey = "refresh"

// TokenPair is the payload of a successful refresh.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Refresher coordinates token refreshes so that at most one refresh call is
// in flight. Callers arriving while one is running wait for it and share its
// result.
type Refresher struct {
	client *Client
	group  singleflight.Group

	inFlight atomic.Bool
	calls    atomic.Int64

	mu        sync.Mutex
	listeners []func(TokenPair)
}

func newRefresher(c *Client) *Refresher {
	return &Refresher{client: c}
}

// InFlight reports whether a refresh call is running.
func (r *Refresher) InFlight() bool { return r.inFlight.Load() }

// Calls returns how many refresh calls have been sent.
func (r *Refresher) Calls() int64 { return r.calls.Load() }

// OnRefreshed registers fn to run after every successful refresh.
func (r *Refresher) OnRefreshed(fn func(TokenPair)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// EnsureFresh returns an access token outside the refresh horizon, joining
// the refresh in flight if there is one. A token already refreshed by an
// earlier flight is returned without another call. A failed refresh clears
// the stored credentials and redirects to the login route once, however many
// callers were waiting.
//
// Cancelling ctx stops the wait but not the shared refresh call.
func (r *Refresher) EnsureFresh(ctx context.Context) (string, error) {
	return r.join(ctx, false)
}

// Force sends a refresh call even when the stored token is still fresh,
// unless one is already in flight.
func (r *Refresher) Force(ctx context.Context) (string, error) {
	return r.join(ctx, true)
}

func (r *Refresher) join(ctx context.Context, force bool) (string, error) {
	// The shared call must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)

	ch := r.group.DoChan(refreshKey, func() (any, error) {
		r.inFlight.Store(true)
		defer r.inFlight.Store(false)
		return r.refresh(shared, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Refresher) refresh(ctx context.Context, force bool) (string, error) {
	c := r.client
	logger := slogx.FromContext(ctx)

	// A caller that read the old token may arrive just after a flight ended.
	if !force {
		access, err := c.store.AccessToken(ctx)
		if err == nil && access != "" && !c.inspector.NeedsRefresh(access) {
			return access, nil
		}
	}

	refreshToken, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	if timeout := c.HTTPClient.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	r.calls.Add(1)
	pair, err := r.call(ctx, refreshToken)
	if err != nil {
		logger.Warn("token refresh failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", r.fail(ctx, err)
	}

	if err := c.store.SetTokens(ctx, pair.Token, pair.RefreshToken, nil); err != nil {
		logger.Error("failed to store refreshed tokens", "error", err)
		return "", r.fail(ctx, &RefreshError{Err: err})
	}

	logger.Info("token refreshed",
		"rotated", pair.RefreshToken != "",
		"duration_ms", time.Since(start).Milliseconds(),
	)

	r.mu.Lock()
	listeners := append([]func(TokenPair){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(pair)
	}

	return pair.Token, nil
}

// call sends the refresh request on the bare HTTP client, outside both
// pipelines, so it can never trigger a refresh itself.
func (r *Refresher) call(ctx context.Context, refreshToken string) (TokenPair, error) {
	c := r.client

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return TokenPair{}, &RefreshError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.endpoints.Refresh), bytes.NewReader(payload))
	if err != nil {
		return TokenPair{}, &RefreshError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return TokenPair{}, &RefreshError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TokenPair{}, &RefreshError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := parseErrorBody(body)
		return TokenPair{}, &RefreshError{Status: resp.StatusCode, Msg: msg}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TokenPair{}, &RefreshError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	pair, err := DecodeData[TokenPair](&env)
	if err != nil || pair.Token == "" {
		return TokenPair{}, &RefreshError{Status: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	return pair, nil
}

// fail ends the session after a refresh failure.
func (r *Refresher) fail(ctx context.Context, err error) error {
	c := r.client
	// The refresh deadline may be what failed; clearing must still run.
	ctx = context.WithoutCancel(ctx)
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		slogx.FromContext(ctx).Error("failed to clear credentials", "error", clearErr)
	}
	c.redirectToLogin()
	return err
}
