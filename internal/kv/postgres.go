package kv

import (
	"context"

	"github.com/Capricia-k/WoSport/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type Postgres struct {
	db db.Querier
}

// NewPostgres creates the kv_entries table if it does not exist yet.
func NewPostgres(ctx context.Context, q db.Querier) (*Postgres, error) {
	_, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kv_entries")
	}
	return &Postgres{db: q}, nil
}

func (s *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key=$1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "failed to get %s", key)
	}
	return value, true, nil
}

func (s *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()
	`, key, value)
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return nil
}

func (s *Postgres) RemoveMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM kv_entries WHERE key = ANY($1)`, keys); err != nil {
		return errors.Wrap(err, "failed to delete keys")
	}
	return nil
}
