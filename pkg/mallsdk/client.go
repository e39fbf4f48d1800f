package mallsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wh01sJake/mall-cloud/pkg/credstore"
	"github.com/wh01sJake/mall-cloud/pkg/idx"
	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

// DefaultTimeout bounds every request, including the refresh call.
const DefaultTimeout = 10 * time.Second

// HeaderRequestID carries a per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// CredentialStore is the persistence the client needs. *credstore.Store
// satisfies it.
type CredentialStore interface {
	SetTokens(ctx context.Context, access, refresh string, identity *credstore.Identity) error
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	Identity(ctx context.Context) (*credstore.Identity, error)
	Clear(ctx context.Context) error
}

// Endpoints are the gateway paths the session operations use.
type Endpoints struct {
	Login       string
	Logout      string
	SessionInfo string
	Refresh     string
}

// CustomerEndpoints are the storefront paths.
var CustomerEndpoints = Endpoints{
	Login:       "/customer/login",
	Logout:      "/customer/logout",
	SessionInfo: "/customer/session-info",
	Refresh:     "/customer/refresh-token",
}

// Client is the pipelined HTTP client for the mall gateway. Every call runs
// the request steps, the transport, then the response steps. The refresh
// call bypasses both pipelines.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	store      CredentialStore
	inspector  jwtx.Inspector
	refresher  *Refresher
	notifier   Notifier
	navigator  Navigator
	loginRoute string
	endpoints  Endpoints
	logger     *slog.Logger
	limiter    *rate.Limiter

	extraRequest  []RequestStep
	extraResponse []ResponseStep
	requestSteps  []RequestStep
	responseSteps []ResponseStep

	navMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithStore sets the credential store. The default is in-memory.
func WithStore(s CredentialStore) Option { return func(c *Client) { c.store = s } }

// WithHTTPClient replaces the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.HTTPClient = hc } }

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithInspector sets the skew, refresh horizon and clock used for proactive
// refresh.
func WithInspector(in jwtx.Inspector) Option { return func(c *Client) { c.inspector = in } }

// WithNotifier sets where user-facing messages go.
func WithNotifier(n Notifier) Option { return func(c *Client) { c.notifier = n } }

// WithNavigator sets the router used for login redirects.
func WithNavigator(n Navigator) Option { return func(c *Client) { c.navigator = n } }

// WithLoginRoute overrides DefaultLoginRoute.
func WithLoginRoute(route string) Option { return func(c *Client) { c.loginRoute = route } }

// WithEndpoints overrides CustomerEndpoints.
func WithEndpoints(e Endpoints) Option { return func(c *Client) { c.endpoints = e } }

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithRateLimiter makes every pipelined request wait on l before sending.
func WithRateLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

// WithRequestSteps appends steps after the built-in request steps.
func WithRequestSteps(steps ...RequestStep) Option {
	return func(c *Client) { c.extraRequest = append(c.extraRequest, steps...) }
}

// WithResponseSteps inserts steps after classification and before the
// session, notification and redirect steps.
func WithResponseSteps(steps ...ResponseStep) Option {
	return func(c *Client) { c.extraResponse = append(c.extraResponse, steps...) }
}

// NewClient creates a client for the gateway at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		loginRoute: DefaultLoginRoute,
		endpoints:  CustomerEndpoints,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.store == nil {
		c.store = credstore.NewMemoryStore(credstore.WithLogger(c.logger))
	}
	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	if c.HTTPClient.Transport == nil {
		c.HTTPClient.Transport = slogx.NewTransport(nil, c.logger)
	}

	c.refresher = newRefresher(c)

	c.requestSteps = []RequestStep{c.headerStep, c.rateLimitStep, c.authorizeStep}
	c.requestSteps = append(c.requestSteps, c.extraRequest...)

	c.responseSteps = []ResponseStep{classifyStep}
	c.responseSteps = append(c.responseSteps, c.extraResponse...)
	c.responseSteps = append(c.responseSteps, c.sessionStep, c.notifyStep, c.redirectStep)

	return c
}

// Store returns the credential store.
func (c *Client) Store() CredentialStore { return c.store }

// Refresher returns the refresh coordinator.
func (c *Client) Refresher() *Refresher { return c.refresher }

// Inspector returns the token inspector used for proactive refresh.
func (c *Client) Inspector() jwtx.Inspector { return c.inspector }

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// Do runs a request through both pipelines. body is sent as a form when it
// is url.Values, streamed when it is an io.Reader, and JSON-encoded
// otherwise. A 2xx response is decoded into an Envelope; anything else is
// returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Envelope, error) {
	reqID := idx.New().String()
	ctx = slogx.WithRequestID(slogx.WithContext(ctx, c.logger), reqID)

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(HeaderRequestID, reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for _, step := range c.requestSteps {
		req, err = step(req)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare request: %w", err)
		}
	}

	ex := &Exchange{Request: req}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		ex.Err = err
	} else {
		ex.Body, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			ex.Err = fmt.Errorf("failed to read response: %w", err)
		} else {
			ex.Response = resp
		}
	}

	for _, step := range c.responseSteps {
		if err := step(ex); err != nil {
			return nil, err
		}
	}

	if ex.Outcome != OutcomeSuccess {
		return nil, ex.apiError()
	}

	env := &Envelope{}
	if len(bytes.TrimSpace(ex.Body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(ex.Body, env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return env, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		return b, "", nil
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(buf), "application/json", nil
	}
}
