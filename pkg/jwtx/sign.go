package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrEmptySecret = errors.New("jwtx: empty signing secret")

// SignHS256 signs c with an HMAC secret, the scheme the gateway uses. It backs
// the in-process fake gateway; production clients only ever decode.
func SignHS256(c Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// ParseHS256 verifies an HMAC-signed token and returns its claims. Like
// SignHS256 it exists for the fake gateway.
func ParseHS256(token string, secret []byte) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, ErrEmptySecret
	}

	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	return c, nil
}
