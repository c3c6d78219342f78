package main

import (
	"context"

	"github.com/Capricia-k/WoSport/internal/agent"
	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/kv"
	"github.com/Capricia-k/WoSport/internal/tracking"
)

// openStore connects only what the store driver needs. Commands using it
// never reach the backend.
func openStore(ctx context.Context, deps mainDeps, cfg config.Config) (kv.Store, func(), error) {
	conns, err := deps.connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := agent.OpenStore(ctx, cfg, conns.Deps())
	if err != nil {
		conns.Close()
		return nil, nil, err
	}
	return store, conns.Close, nil
}

func offlineController(store kv.Store, cfg config.Config) *tracking.Controller {
	return tracking.NewController(tracking.Options{
		Store:    store,
		Calories: tracking.CalorieEstimator{BodyMassKg: cfg.BodyMassKg, MET: cfg.MET},
	})
}
