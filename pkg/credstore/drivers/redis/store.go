// Package redis is a credential backend on Redis, for clients that share a
// session across processes or hosts.
package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wh01sJake/mall-cloud/pkg/credstore"
)

// DefaultPrefix namespaces credential keys.
const DefaultPrefix = "mall:credentials:default:"

var _ credstore.Backend = (*Store)(nil)

type Store struct {
	client goredis.UniversalClient
	prefix string
	owned  bool
}

// New wraps an existing client. Close does not close a client passed in.
func New(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	s := New(client, prefix)
	s.owned = true
	return s, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SetMany uses MSET, which Redis applies atomically.
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, s.key(k), v)
	}
	return s.client.MSet(ctx, pairs...).Err()
}

// Delete removes all keys with a single DEL.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.client.Del(ctx, full...).Err()
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
