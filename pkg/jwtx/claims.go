package jwtx

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes issued by the mall gateway. The client never issues tokens
// itself; these exist so fakes and tests mint realistic ones.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenTypeRefresh marks refresh tokens in the "type" claim.
const TokenTypeRefresh = "refresh"

// Claims is the payload of a mall access or refresh token.
type Claims struct {
	jwt.RegisteredClaims

	UserID   int64  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Status   int    `json:"status,omitempty"`

	// Type is "refresh" for refresh tokens and empty for access tokens.
	Type string `json:"type,omitempty"`
}

// Identity is the user identity encoded in an access token.
type Identity struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// NewAccessClaims builds the claims the gateway puts in an access token.
func NewAccessClaims(userID int64, username, email string, status int, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   userID,
		Username: username,
		Email:    email,
		Status:   status,
	}
}

// NewRefreshClaims builds the claims of a refresh token.
func NewRefreshClaims(userID int64, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Type:   TokenTypeRefresh,
	}
}

// Identity returns the identity carried by c. The numeric userId claim wins;
// the subject is used when userId is absent. It returns nil when neither
// yields a user id.
func (c Claims) Identity() *Identity {
	id := c.UserID
	if id == 0 && c.Subject != "" {
		parsed, err := strconv.ParseInt(c.Subject, 10, 64)
		if err != nil {
			return nil
		}
		id = parsed
	}
	if id == 0 {
		return nil
	}

	return &Identity{UserID: id, Username: c.Username}
}

// IsRefresh reports whether c belongs to a refresh token.
func (c Claims) IsRefresh() bool { return c.Type == TokenTypeRefresh }
