package mallsdk

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

// RequestStep transforms an outgoing request. Returning an error aborts the
// call before anything is sent.
type RequestStep func(req *http.Request) (*http.Request, error)

func (c *Client) headerStep(req *http.Request) (*http.Request, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

func (c *Client) rateLimitStep(req *http.Request) (*http.Request, error) {
	if c.limiter == nil {
		return req, nil
	}
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return req, nil
}

// authorizeStep attaches the bearer token, refreshing it first when it is
// within the refresh horizon. A failed refresh lets the request proceed
// without a token; the response pipeline handles any resulting 401.
func (c *Client) authorizeStep(req *http.Request) (*http.Request, error) {
	ctx := req.Context()
	logger := slogx.FromContext(ctx)

	token, err := c.store.AccessToken(ctx)
	if err != nil {
		logger.Warn("failed to read access token", "error", err)
		return req, nil
	}
	if token == "" {
		return req, nil
	}

	if c.inspector.NeedsRefresh(token) {
		fresh, err := c.refresher.EnsureFresh(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, ErrNoRefreshToken) {
				logger.Warn("proactive refresh failed, sending without token", "error", err)
			}
			return req, nil
		}
		token = fresh
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}
