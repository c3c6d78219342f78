package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/Capricia-k/WoSport/internal/location"
	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type replaySummary struct {
	File      string           `json:"file"`
	Points    int              `json:"points"`
	Session   tracking.Session `json:"session"`
	Positions int              `json:"positions"`
	Distance  float64          `json:"distance_km"`
	Calories  float64          `json:"calories"`
	Elapsed   string           `json:"elapsed"`
	Stopped   bool             `json:"stopped"`
}

func newReplayCmd(deps mainDeps) *cobra.Command {
	var interval time.Duration
	var keep bool

	cmd := &cobra.Command{
		Use:   "replay <file.gpx>",
		Short: "Drive a tracking session from a recorded GPX track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadAndLog(deps)

			replay, err := location.LoadGPX(args[0], interval)
			if err != nil {
				return err
			}

			conns, err := deps.connect(cfg)
			if err != nil {
				return err
			}
			defer conns.Close()

			agentDeps := conns.Deps()
			agentDeps.Provider = replay
			a, err := deps.newAgent(cmd.Context(), cfg, agentDeps)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.Controller.Start(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Str("session_id", session.ID).Int("points", len(replay.Points())).Msg("replaying track")

			signals := make(chan os.Signal, 1)
			deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-replay.Finished():
				settle(a.Controller, interval)
			case <-signals:
			case <-cmd.Context().Done():
			}

			snap := a.Controller.Snapshot()
			summary := replaySummary{
				File:      args[0],
				Points:    len(replay.Points()),
				Session:   session,
				Positions: len(snap.Positions),
				Distance:  snap.DistanceKm,
				Calories:  snap.Calories,
				Elapsed:   snap.Elapsed,
			}
			if !keep {
				if err := a.Controller.Stop(context.WithoutCancel(cmd.Context())); err != nil {
					return err
				}
				summary.Stopped = true
			}

			return writeJSON(deps, summary)
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Delay between replayed points")
	cmd.Flags().BoolVar(&keep, "keep", false, "Leave the session tracking instead of stopping it")
	return cmd
}

// settle waits until the controller stops accepting new positions, so the
// last replayed points are counted before the session stops.
func settle(ctrl *tracking.Controller, interval time.Duration) {
	poll := interval / 2
	if poll < 10*time.Millisecond {
		poll = 10 * time.Millisecond
	}
	last := -1
	for stable := 0; stable < 3; {
		n := len(ctrl.Snapshot().Positions)
		if n == last {
			stable++
		} else {
			stable = 0
			last = n
		}
		time.Sleep(poll)
	}
}
