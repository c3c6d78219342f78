// Package agent assembles the tracking controller and its collaborators
// from configuration.
package agent

import (
	"context"
	"database/sql"
	"time"

	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/connectivity"
	"github.com/Capricia-k/WoSport/internal/db"
	"github.com/Capricia-k/WoSport/internal/kv"
	"github.com/Capricia-k/WoSport/internal/location"
	"github.com/Capricia-k/WoSport/internal/metrics"
	"github.com/Capricia-k/WoSport/internal/remote"
	"github.com/Capricia-k/WoSport/internal/stream"
	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Deps are the already-open connections and optional overrides. Nil
// fields fall back to what the configuration describes.
type Deps struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	SQLite   *sql.DB

	Provider  location.Provider
	Backend   tracking.Backend
	NewTicker func(time.Duration) tracking.Ticker
}

type Agent struct {
	Cfg        config.Config
	Store      kv.Store
	Controller *tracking.Controller
	Monitor    *connectivity.Monitor
	Hub        *stream.Hub
	// Feed is nil when locations come from another provider.
	Feed *location.Feed

	cancel context.CancelFunc
	done   chan struct{}
}

// OpenStore opens the configured store on its own, for tools that only
// inspect persisted state.
func OpenStore(ctx context.Context, cfg config.Config, deps Deps) (kv.Store, error) {
	backends := kv.Backends{SQLite: deps.SQLite, Redis: deps.Redis}
	if deps.Postgres != nil {
		backends.Postgres = deps.Postgres
	}
	return kv.Open(ctx, cfg.StoreDriver, backends)
}

func New(ctx context.Context, cfg config.Config, deps Deps) (*Agent, error) {
	store, err := OpenStore(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	backend := deps.Backend
	if backend == nil {
		client, err := remote.NewClient(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to configure backend client")
		}
		backend = client
	}

	provider := deps.Provider
	var feed *location.Feed
	if provider == nil {
		feed = location.NewFeed()
		provider = feed
	} else if f, ok := provider.(*location.Feed); ok {
		feed = f
	}
	sampler := location.NewSampler(provider, location.WatchConfig{
		MinDistanceM: cfg.MinDistanceM,
		Accuracy:     location.AccuracyHighest,
	})

	monitor := connectivity.NewMonitor(true)
	metrics.Online.Set(1)
	monitor.Subscribe(func(connected bool) {
		if connected {
			metrics.Online.Set(1)
		} else {
			metrics.Online.Set(0)
		}
	})

	hub := stream.NewHub(deps.Redis)

	ctrl := tracking.NewController(tracking.Options{
		Store:        store,
		Sampler:      sampler,
		Backend:      backend,
		Connectivity: monitor,
		Calories: tracking.CalorieEstimator{
			BodyMassKg: cfg.BodyMassKg,
			MET:        cfg.MET,
		},
		NewTicker:        deps.NewTicker,
		FlushOnReconnect: cfg.FlushOnReconnect,
		OnUpdate:         hub.PublishSnapshot,
	})

	if _, err := ctrl.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to restore persisted counters")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		Cfg:        cfg,
		Store:      store,
		Controller: ctrl,
		Monitor:    monitor,
		Hub:        hub,
		Feed:       feed,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if cfg.ProbeURL != "" {
		prober := connectivity.NewProber(monitor, connectivity.HTTPProbe(cfg.ProbeURL, cfg.APITimeout), cfg.ProbeInterval)
		go func() {
			defer close(a.done)
			prober.Run(runCtx)
		}()
	} else {
		close(a.done)
	}
	return a, nil
}

// Close stops background probing and the stream hub. A session still
// tracking is left as is; its counters stay persisted.
func (a *Agent) Close() {
	a.cancel()
	<-a.done
	a.Hub.Close()
}

// Connections are the stores a configuration needs, opened by Connect.
type Connections struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	SQLite   *sql.DB
}

var (
	connectPostgres = db.ConnectPostgres
	connectRedis    = db.ConnectRedis
	openSQLite      = db.OpenSQLite
)

// Connect opens only the connections cfg uses: the store driver's database
// and redis when an address is set.
func Connect(cfg config.Config) (Connections, error) {
	var conns Connections
	conns.Redis = connectRedis(cfg)

	switch cfg.StoreDriver {
	case kv.DriverSQLite:
		conn, err := openSQLite(cfg)
		if err != nil {
			conns.Close()
			return Connections{}, err
		}
		conns.SQLite = conn
	case kv.DriverPostgres:
		pool, err := connectPostgres(cfg)
		if err != nil {
			conns.Close()
			return Connections{}, err
		}
		conns.Postgres = pool
	}
	return conns, nil
}

func (c Connections) Deps() Deps {
	return Deps{Postgres: c.Postgres, Redis: c.Redis, SQLite: c.SQLite}
}

func (c Connections) Close() {
	if c.Postgres != nil {
		c.Postgres.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.SQLite != nil {
		_ = c.SQLite.Close()
	}
}
