package mallsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wh01sJake/mall-cloud/pkg/credstore"
	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
	"github.com/wh01sJake/mall-cloud/pkg/slogx"
)

// LoginResult is the payload of a successful login.
type LoginResult struct {
	Token        string             `json:"token"`
	RefreshToken string             `json:"refreshToken"`
	User         credstore.Identity `json:"user"`
	Message      string             `json:"message,omitempty"`
}

// SessionInfo is what the gateway reports about the current token.
type SessionInfo struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Status   int    `json:"status"`
}

// Identity converts the session info to the stored identity shape.
func (s SessionInfo) Identity() *credstore.Identity {
	return &credstore.Identity{ID: s.UserID, Username: s.Username, Email: s.Email, Status: s.Status}
}

// RegisterRequest is a new customer signup.
type RegisterRequest struct {
	InviteCode string
	Username   string
	Email      string
	Phone      string
	Password   string
}

// Login authenticates with username and password and stores the issued
// tokens together with the user identity. An application-level rejection is
// returned as *EnvelopeError and nothing is stored.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	res, err := Call[LoginResult](ctx, c, http.MethodPost, c.endpoints.Login, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, ErrLoginFailed
	}

	if err := c.store.SetTokens(ctx, res.Token, res.RefreshToken, &res.User); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	slogx.FromContext(ctx).Info("logged in", "user_id", res.User.ID, "username", res.User.Username)
	return &res, nil
}

// Register creates a customer account. It does not log in.
func (c *Client) Register(ctx context.Context, r RegisterRequest) error {
	form := url.Values{}
	form.Set("inviteCode", r.InviteCode)
	form.Set("username", r.Username)
	form.Set("email", r.Email)
	if r.Phone != "" {
		form.Set("phone", r.Phone)
	}
	form.Set("password", r.Password)

	env, err := c.Post(ctx, "/customer/register", form)
	if err != nil {
		return err
	}
	_, err = DecodeData[struct{}](env)
	return err
}

// Logout tells the gateway and clears the stored credentials. Clearing
// happens even when the call fails; only a storage error is returned.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.Post(ctx, c.endpoints.Logout, nil); err != nil {
		slogx.FromContext(ctx).Warn("logout call failed", "error", err)
	}

	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// SessionInfo asks the gateway who the current token belongs to.
func (c *Client) SessionInfo(ctx context.Context) (*SessionInfo, error) {
	info, err := Call[SessionInfo](ctx, c, http.MethodGet, c.endpoints.SessionInfo, nil)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// CheckSession restores the user identity for a stored, unexpired token. It
// returns nil without error when there is no usable session. The stored
// identity is preferred; otherwise it is fetched from the gateway and
// stored.
func (c *Client) CheckSession(ctx context.Context) (*credstore.Identity, error) {
	if !c.IsAuthenticated(ctx) {
		return nil, nil
	}

	if id, err := c.store.Identity(ctx); err == nil && id != nil {
		return id, nil
	}

	info, err := c.SessionInfo(ctx)
	if err != nil {
		return nil, err
	}

	id := info.Identity()
	if err := c.store.SetTokens(ctx, "", "", id); err != nil {
		return nil, fmt.Errorf("failed to store identity: %w", err)
	}
	return id, nil
}

// IsAuthenticated reports whether an unexpired access token is stored.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	token, err := c.store.AccessToken(ctx)
	if err != nil || token == "" {
		return false
	}
	return !c.inspector.IsExpired(token)
}

// CurrentUser returns the stored identity, nil when logged out.
func (c *Client) CurrentUser(ctx context.Context) (*credstore.Identity, error) {
	return c.store.Identity(ctx)
}

// CurrentUserID reads the user ID from the stored access token.
func (c *Client) CurrentUserID(ctx context.Context) (int64, bool) {
	token, err := c.store.AccessToken(ctx)
	if err != nil || token == "" {
		return 0, false
	}
	id := jwtx.IdentityOf(token)
	if id == nil {
		return 0, false
	}
	return id.UserID, true
}

// Refresh forces a token refresh through the coordinator.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refresher.Force(ctx)
}

// AuthHeader returns the Authorization header value for the stored token,
// or "" when there is none.
func (c *Client) AuthHeader(ctx context.Context) string {
	token, err := c.store.AccessToken(ctx)
	if err != nil || token == "" {
		return ""
	}
	return "Bearer " + token
}
