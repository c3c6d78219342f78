package db

import (
	"database/sql"

	"github.com/Capricia-k/WoSport/internal/config"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// OpenSQLite opens the device-local database file used by the sqlite store.
func OpenSQLite(cfg config.Config) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "wosport_tracker.db"
	}
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite")
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under concurrent sets
	conn.SetMaxOpenConns(1)
	return conn, nil
}
