// Package kv holds the process-wide persistent key/value stores the tracking
// agent mirrors its state into.
package kv

import (
	"context"
	"database/sql"

	"github.com/Capricia-k/WoSport/internal/db"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store is a scoped string key/value store. Callers own a fixed key namespace
// and must not assume exclusivity beyond it. Writes to different keys are
// independent; there is no multi-key atomicity.
type Store interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// RemoveMany deletes every listed key. Missing keys are not an error.
	RemoveMany(ctx context.Context, keys ...string) error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// Backends carries the already-connected clients a driver may need.
type Backends struct {
	SQLite   *sql.DB
	Redis    *redis.Client
	Postgres db.Querier
}

// Open builds the store for driver and prepares its schema where needed.
func Open(ctx context.Context, driver string, b Backends) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite:
		if b.SQLite == nil {
			return nil, errors.New("sqlite store requires a database handle")
		}
		return NewSQLite(ctx, b.SQLite)
	case DriverRedis:
		if b.Redis == nil {
			return nil, errors.New("redis store requires REDIS_ADDR")
		}
		return NewRedis(b.Redis), nil
	case DriverPostgres:
		if b.Postgres == nil {
			return nil, errors.New("postgres store requires a connection pool")
		}
		return NewPostgres(ctx, b.Postgres)
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", driver)
	}
}
