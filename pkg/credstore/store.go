package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wh01sJake/mall-cloud/pkg/cryptox"
)

// Persisted keys. They match the names the storefront has always used so an
// exported profile stays readable.
const (
	KeyAccessToken  = "jwt_token"
	KeyRefreshToken = "jwt_refresh_token"
	KeyIdentity     = "user_info"
)

// Keys lists every key owned by the store.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyIdentity}

var ErrClosed = errors.New("credstore: store is closed")

// Backend is a durable key/value holder. SetMany and Delete must apply all of
// their keys atomically.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Identity is the cached user identity returned by login.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Status   int    `json:"status,omitempty"`
}

// Store holds the access token, refresh token and identity. It performs no
// validation; the token inspector decides what a stored token is worth.
type Store struct {
	backend Backend
	sealer  *cryptox.Sealer
	logger  *slog.Logger
}

type Option func(*Store)

// WithSealer encrypts every value before it reaches the backend.
func WithSealer(s *cryptox.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(st *Store) { st.logger = l }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTokens persists every non-empty argument and leaves the others as they
// are, so a refresh can update the tokens without touching the identity.
func (s *Store) SetTokens(ctx context.Context, access, refresh string, identity *Identity) error {
	values := make(map[string]string, 3)
	if access != "" {
		values[KeyAccessToken] = access
	}
	if refresh != "" {
		values[KeyRefreshToken] = refresh
	}
	if identity != nil {
		raw, err := json.Marshal(identity)
		if err != nil {
			return fmt.Errorf("failed to encode identity: %w", err)
		}
		values[KeyIdentity] = string(raw)
	}
	if len(values) == 0 {
		return nil
	}

	if s.sealer != nil {
		for k, v := range values {
			sealed, err := s.sealer.Seal(v, k)
			if err != nil {
				return fmt.Errorf("failed to seal %s: %w", k, err)
			}
			values[k] = sealed
		}
	}

	if err := s.backend.SetMany(ctx, values); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// AccessToken returns the stored access token or "".
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token or "".
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

// Identity returns the stored identity or nil. An unreadable identity is
// reported as absent.
func (s *Store) Identity(ctx context.Context) (*Identity, error) {
	raw, err := s.get(ctx, KeyIdentity)
	if err != nil || raw == "" {
		return nil, err
	}

	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		s.logger.Warn("credstore: discarding unreadable identity", "error", err)
		return nil, nil
	}
	return &id, nil
}

// Clear removes all three values in one backend operation.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, Keys...); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}

	if s.sealer == nil {
		return v, nil
	}

	// A value that cannot be opened (key rotated, tampered, or written before
	// sealing was enabled) is treated as absent.
	opened, err := s.sealer.Open(v, key)
	if err != nil {
		s.logger.Warn("credstore: discarding unreadable value", "key", key, "error", err)
		return "", nil
	}
	return opened, nil
}
