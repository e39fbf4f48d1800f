// Package sqlite is a durable credential backend on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wh01sJake/mall-cloud/pkg/credstore"
)

// DefaultProfile is used when no profile name is given.
const DefaultProfile = "default"

var _ credstore.Backend = (*Store)(nil)

// Store keeps credentials of one profile in a SQLite database. Several
// profiles (e.g. the customer shop and the admin console) can share a file.
type Store struct {
	db      *sql.DB
	profile string
	now     func() time.Time
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path, profile string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One writer at a time keeps concurrent refresh/clear calls from tripping
	// over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	if profile == "" {
		profile = DefaultProfile
	}

	s := &Store{db: db, profile: profile, now: time.Now}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE profile = ? AND key = ?`,
		s.profile, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC()
		for key, value := range values {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO credentials (profile, key, value, updated_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT (profile, key) DO UPDATE
				 SET value = excluded.value, updated_at = excluded.updated_at`,
				s.profile, key, value, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, s.profile)
	for _, k := range keys {
		args = append(args, k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE profile = ? AND key IN (`+placeholders+`)`,
		args...,
	)
	return err
}

// withTx executes fn within a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
