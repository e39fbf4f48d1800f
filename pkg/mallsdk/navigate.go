package mallsdk

import (
	"net/url"
	"strings"
	"sync"
)

// DefaultLoginRoute is where session-fatal failures send the user.
const DefaultLoginRoute = "/login"

// Navigator is the host application's router.
type Navigator interface {
	// CurrentPath returns the path (and optional query) being shown.
	CurrentPath() string
	// Navigate moves to target.
	Navigate(target string)
}

// Router is an in-memory Navigator that records its history.
type Router struct {
	mu      sync.Mutex
	current string
	history []string
}

// NewRouter returns a Router positioned at start.
func NewRouter(start string) *Router {
	return &Router{current: start}
}

func (r *Router) CurrentPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Router) Navigate(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = target
	r.history = append(r.history, target)
}

// History returns every target navigated to, oldest first.
func (r *Router) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

// onLoginRoute reports whether current already shows the login route.
func onLoginRoute(current, loginRoute string) bool {
	path, _, _ := strings.Cut(current, "?")
	return path == loginRoute || strings.HasPrefix(path, loginRoute+"/")
}

// loginTarget builds the redirect target preserving where the user was.
func loginTarget(current, loginRoute string) string {
	if current == "" || current == "/" {
		return loginRoute
	}
	return loginRoute + "?redirect=" + url.QueryEscape(current)
}

// redirectToLogin navigates to the login route unless already there. The
// check and the navigation happen under one lock so concurrent fatal
// responses redirect once.
func (c *Client) redirectToLogin() bool {
	if c.navigator == nil {
		return false
	}

	c.navMu.Lock()
	defer c.navMu.Unlock()

	current := c.navigator.CurrentPath()
	if onLoginRoute(current, c.loginRoute) {
		return false
	}
	c.navigator.Navigate(loginTarget(current, c.loginRoute))
	return true
}
