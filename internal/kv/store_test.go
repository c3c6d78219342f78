package kv

import (
	"context"
	"sort"
	"testing"

	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "track:time"); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "track:time", "5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "track:time", "6"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Set(ctx, "track:safety_mode", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := s.Get(ctx, "track:time")
	if err != nil || !ok || v != "6" {
		t.Fatalf("unexpected get: %q %v %v", v, ok, err)
	}

	if err := s.RemoveMany(ctx, "track:time", "track:missing"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "track:time"); ok {
		t.Fatalf("expected key removed")
	}
	if v, ok, _ := s.Get(ctx, "track:safety_mode"); !ok || v != "true" {
		t.Fatalf("unrelated key must survive removal")
	}
	if err := s.RemoveMany(ctx); err != nil {
		t.Fatalf("empty remove: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)

	keys := m.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "track:safety_mode" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestSQLiteStore(t *testing.T) {
	conn, err := db.OpenSQLite(config.Config{SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer conn.Close()

	s, err := NewSQLite(context.Background(), conn)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	exerciseStore(t, NewRedis(client))
}

func TestRedisStoreError(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	srv.Close()
	defer client.Close()

	s := NewRedis(client)
	if _, _, err := s.Get(context.Background(), "track:time"); err == nil {
		t.Fatalf("expected error from closed redis")
	}
	if err := s.Set(context.Background(), "track:time", "1"); err == nil {
		t.Fatalf("expected error from closed redis")
	}
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, DriverMemory, Backends{})
	if err != nil || s == nil {
		t.Fatalf("memory driver: %v", err)
	}

	if _, err := Open(ctx, DriverRedis, Backends{}); err == nil {
		t.Fatalf("expected redis driver to require a client")
	}
	if _, err := Open(ctx, DriverSQLite, Backends{}); err == nil {
		t.Fatalf("expected sqlite driver to require a handle")
	}
	if _, err := Open(ctx, DriverPostgres, Backends{}); err == nil {
		t.Fatalf("expected postgres driver to require a pool")
	}

	_, err = Open(ctx, "etcd", Backends{})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected unknown driver, got %v", err)
	}
}
