package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/kv"
	"github.com/Capricia-k/WoSport/internal/shared/geo"
	"github.com/Capricia-k/WoSport/internal/stream"
	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu        sync.Mutex
	positions []geo.Coordinate
}

func (b *stubBackend) CreateSession(context.Context) (tracking.Session, error) {
	return tracking.Session{ID: "101", StartedAt: time.Now()}, nil
}

func (b *stubBackend) AppendPosition(_ context.Context, _ string, lat, lng float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = append(b.positions, geo.Coordinate{Latitude: lat, Longitude: lng})
	return nil
}

func (b *stubBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

func testConfig() config.Config {
	return config.Config{
		StoreDriver:  kv.DriverMemory,
		BodyMassKg:   60,
		MET:          8,
		MinDistanceM: 1,
		APITimeout:   time.Second,
	}
}

func TestAgentTracksFeedFixesAndStreamsSnapshots(t *testing.T) {
	backend := &stubBackend{}
	a, err := New(context.Background(), testConfig(), Deps{Backend: backend})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Feed)

	watcher := a.Hub.Register(stream.CurrentSession)
	defer a.Hub.Unregister(watcher)

	a.Feed.SetPermission(true)
	session, err := a.Controller.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "101", session.ID)

	for _, c := range []geo.Coordinate{
		{Latitude: 48.8566, Longitude: 2.3522},
		{Latitude: 48.856605, Longitude: 2.3522}, // half a metre: filtered
		{Latitude: 48.8576, Longitude: 2.3522},
	} {
		_, err := a.Feed.Push(c)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return backend.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	snap := a.Controller.Snapshot()
	assert.Len(t, snap.Positions, 2)
	assert.InDelta(t, 0.111, snap.DistanceKm, 0.001)

	var last tracking.Snapshot
	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-watcher.Send:
				_ = json.Unmarshal(msg, &last)
			default:
				return len(last.Positions) == 2
			}
		}
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, a.Controller.Stop(context.Background()))
}

func TestAgentRecoversAbandonedSessionFromSQLite(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = kv.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "tracker.db")

	conns, err := Connect(cfg)
	require.NoError(t, err)
	backend := &stubBackend{}
	first, err := New(context.Background(), cfg, Deps{SQLite: conns.SQLite, Backend: backend})
	require.NoError(t, err)

	first.Feed.SetPermission(true)
	_, err = first.Controller.Start(context.Background())
	require.NoError(t, err)
	_, _ = first.Feed.Push(geo.Coordinate{Latitude: -6.2, Longitude: 106.8})
	// delivery happens after the counters are persisted
	require.Eventually(t, func() bool { return backend.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	// process death: no Stop
	first.Close()
	conns.Close()

	conns, err = Connect(cfg)
	require.NoError(t, err)
	defer conns.Close()
	second, err := New(context.Background(), cfg, Deps{SQLite: conns.SQLite, Backend: &stubBackend{}})
	require.NoError(t, err)
	defer second.Close()

	rec, ok := second.Controller.Recovered()
	require.True(t, ok)
	assert.True(t, rec.Abandoned)
	assert.False(t, rec.Resumable)
	require.NotNil(t, rec.Session)
	assert.Equal(t, "101", rec.Session.ID)
	assert.Len(t, rec.State.Positions, 1)
	assert.Equal(t, tracking.PhaseIdle, second.Controller.Snapshot().Phase)
}

func TestNewRequiresBackendConfig(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Deps{})
	assert.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "etcd"
	_, err := New(context.Background(), cfg, Deps{Backend: &stubBackend{}})
	assert.ErrorIs(t, err, kv.ErrUnknownDriver)
}

func TestConnectOpensOnlyWhatIsConfigured(t *testing.T) {
	oldPG := connectPostgres
	defer func() { connectPostgres = oldPG }()
	pgCalled := false
	connectPostgres = func(config.Config) (*pgxpool.Pool, error) {
		pgCalled = true
		return nil, errors.New("refused")
	}

	conns, err := Connect(testConfig())
	require.NoError(t, err)
	assert.Nil(t, conns.Redis)
	assert.Nil(t, conns.SQLite)
	assert.False(t, pgCalled)

	cfg := testConfig()
	cfg.StoreDriver = kv.DriverPostgres
	_, err = Connect(cfg)
	assert.Error(t, err)
	assert.True(t, pgCalled)

	srv := miniredis.RunT(t)
	cfg = testConfig()
	cfg.StoreDriver = kv.DriverRedis
	cfg.RedisAddr = srv.Addr()
	conns, err = Connect(cfg)
	require.NoError(t, err)
	defer conns.Close()
	require.NotNil(t, conns.Redis)

	a, err := New(context.Background(), cfg, Deps{Redis: conns.Redis, Backend: &stubBackend{}})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Controller.SetSafetyMode(context.Background(), true))
	assert.Equal(t, "true", mustGet(t, srv, tracking.KeySafetyMode))
}

func mustGet(t *testing.T, srv *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := srv.Get(key)
	require.NoError(t, err)
	return v
}
