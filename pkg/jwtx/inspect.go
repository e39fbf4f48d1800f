package jwtx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultSkew keeps a token from being used in the last seconds of its life.
	DefaultSkew = 30 * time.Second

	// DefaultRefreshHorizon is how early a token is refreshed proactively.
	DefaultRefreshHorizon = 5 * time.Minute
)

var (
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrMissingExpiry = errors.New("jwtx: token has no exp claim")
)

// segmentDecoder only supplies base64url segment decoding; signatures are
// never checked on the client because it does not hold the key.
var segmentDecoder = jwt.NewParser()

// Decode parses the payload segment of token. It never panics: any structural
// problem is reported as ErrMalformed, and a payload without "exp" as
// ErrMissingExpiry. Callers treat both as an expired token.
func Decode(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[1] == "" {
		return Claims{}, ErrMalformed
	}

	payload, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if c.ExpiresAt == nil {
		return Claims{}, ErrMissingExpiry
	}

	return c, nil
}

// Inspector answers expiry questions about raw tokens against a clock.
// The zero value uses the default skew, horizon and time.Now. A negative
// Skew or Horizon turns that window off.
type Inspector struct {
	Skew    time.Duration
	Horizon time.Duration
	Now     func() time.Time
}

func (in Inspector) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in Inspector) skew() time.Duration {
	return window(in.Skew, DefaultSkew)
}

func (in Inspector) horizon() time.Duration {
	return window(in.Horizon, DefaultRefreshHorizon)
}

func window(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	}
	return d
}

// IsExpired reports whether token is unusable: it fails to decode, or its
// exp (epoch seconds) is before now + skew.
func (in Inspector) IsExpired(token string) bool {
	c, err := Decode(token)
	if err != nil {
		return true
	}

	limit := in.now().Add(in.skew()).Unix()
	return c.ExpiresAt.Unix() < limit
}

// NeedsRefresh reports whether the remaining lifetime of token is within the
// refresh horizon. Undecodable tokens always need a refresh.
func (in Inspector) NeedsRefresh(token string) bool {
	c, err := Decode(token)
	if err != nil {
		return true
	}

	return remaining(c, in.now()) <= in.horizon()
}

// TimeUntilExpiry returns the remaining lifetime of token, or 0 when it is
// expired or undecodable.
func (in Inspector) TimeUntilExpiry(token string) time.Duration {
	c, err := Decode(token)
	if err != nil {
		return 0
	}
	return remaining(c, in.now())
}

func remaining(c Claims, now time.Time) time.Duration {
	return max(c.ExpiresAt.Sub(now), 0)
}

// Summary is a debugging view of a token.
type Summary struct {
	Valid        bool          `json:"valid"`
	Error        string        `json:"error,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	UserID       int64         `json:"userId,omitempty"`
	Username     string        `json:"username,omitempty"`
	Type         string        `json:"type,omitempty"`
	ExpiresAt    time.Time     `json:"expiresAt,omitzero"`
	Remaining    time.Duration `json:"remaining"`
	Expired      bool          `json:"expired"`
	NeedsRefresh bool          `json:"needsRefresh"`
}

// Describe summarises token for display. Nothing in the summary is secret.
func (in Inspector) Describe(token string) Summary {
	c, err := Decode(token)
	if err != nil {
		return Summary{Error: err.Error(), Expired: true, NeedsRefresh: true}
	}

	now := in.now()
	return Summary{
		Valid:        true,
		Subject:      c.Subject,
		UserID:       c.UserID,
		Username:     c.Username,
		Type:         c.Type,
		ExpiresAt:    c.ExpiresAt.Time.UTC(),
		Remaining:    remaining(c, now),
		Expired:      in.IsExpired(token),
		NeedsRefresh: in.NeedsRefresh(token),
	}
}

var defaultInspector Inspector

// IsExpired reports whether token fails to decode or expires within skew of
// now. Zero selects DefaultSkew, a negative skew none.
func IsExpired(token string, skew time.Duration) bool {
	return Inspector{Skew: skew}.IsExpired(token)
}

// NeedsRefresh reports whether token has at most horizon of life left.
// Zero selects DefaultRefreshHorizon, a negative horizon refreshes only
// expired tokens.
func NeedsRefresh(token string, horizon time.Duration) bool {
	return Inspector{Horizon: horizon}.NeedsRefresh(token)
}

// TimeUntilExpiry is Inspector.TimeUntilExpiry against the wall clock.
func TimeUntilExpiry(token string) time.Duration {
	return defaultInspector.TimeUntilExpiry(token)
}

// ExpiresAt returns the expiry of token, if it decodes.
func ExpiresAt(token string) (time.Time, bool) {
	c, err := Decode(token)
	if err != nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// IdentityOf returns the identity encoded in token, or nil.
func IdentityOf(token string) *Identity {
	c, err := Decode(token)
	if err != nil {
		return nil
	}
	return c.Identity()
}
