package kv

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// SQLite is the device-local store, the closest match to the mobile
// app's AsyncStorage.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, conn *sql.DB) (*SQLite, error) {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kv_entries")
	}
	return &SQLite{db: conn}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "failed to get %s", key)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}
	return nil
}

func (s *SQLite) RemoveMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin delete")
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, k); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "failed to delete %s", k)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit delete")
}
