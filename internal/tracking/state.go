package tracking

import (
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/Capricia-k/WoSport/internal/kv"
	"github.com/Capricia-k/WoSport/internal/shared/geo"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	KeyPositions  = "track:positions"
	KeyDistance   = "track:distance"
	KeyTime       = "track:time"
	KeyCalories   = "track:calories"
	KeySafetyMode = "track:safety_mode"
	KeySession    = "track:session"

	offlineKeyPrefix = "track:offline:"
)

// OfflineKey is the store key of a session's offline queue.
func OfflineKey(sessionID string) string {
	return offlineKeyPrefix + sessionID
}

// sessionKeys are cleared on stop. Safety mode and offline queues survive.
var sessionKeys = []string{KeyPositions, KeyDistance, KeyTime, KeyCalories, KeySession}

type change uint8

const (
	changedPositions change = 1 << iota
	changedDistance
	changedTime
	changedCalories
	changedSafety

	changedSample  = changedPositions | changedDistance | changedCalories
	changedCounter = changedSample | changedTime
	changedAll     = changedCounter | changedSafety
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// saveTrackState writes every key flagged in ch. Keys are independent; the
// first error is returned after all writes were attempted.
func saveTrackState(ctx context.Context, store kv.Store, s TrackState, ch change) error {
	var first error
	set := func(key, value string) {
		if err := store.Set(ctx, key, value); err != nil && first == nil {
			first = errors.Wrapf(err, "failed to persist %s", key)
		}
	}

	if ch&changedPositions != 0 {
		positions := s.Positions
		if positions == nil {
			positions = []geo.Coordinate{}
		}
		raw, err := json.Marshal(positions)
		if err != nil {
			return errors.Wrap(err, "failed to encode positions")
		}
		set(KeyPositions, string(raw))
	}
	if ch&changedDistance != 0 {
		set(KeyDistance, formatFloat(s.DistanceKm))
	}
	if ch&changedCalories != 0 {
		set(KeyCalories, formatFloat(s.Calories))
	}
	if ch&changedTime != 0 {
		set(KeyTime, strconv.FormatInt(s.ElapsedSeconds, 10))
	}
	if ch&changedSafety != 0 {
		set(KeySafetyMode, strconv.FormatBool(s.SafetyModeEnabled))
	}
	return first
}

func clearTrackState(ctx context.Context, store kv.Store) error {
	return errors.Wrap(store.RemoveMany(ctx, sessionKeys...), "failed to clear session keys")
}

// LoadTrackState reads the persisted counters. Distance and calories are
// recomputed from the positions, so a torn write is repaired on load.
func LoadTrackState(ctx context.Context, store kv.Store, est CalorieEstimator) (TrackState, error) {
	var s TrackState

	raw, ok, err := store.Get(ctx, KeyPositions)
	if err != nil {
		return TrackState{}, errors.Wrap(err, "failed to read positions")
	}
	if ok && raw != "" {
		var positions []geo.Coordinate
		if err := json.Unmarshal([]byte(raw), &positions); err != nil {
			log.Warn().Err(err).Msg("discarding unreadable persisted positions")
		} else {
			for _, p := range positions {
				if p.Valid() {
					s.Positions = append(s.Positions, p)
				}
			}
		}
	}
	s.DistanceKm = geo.PathKm(s.Positions)
	s.Calories = est.Calories(s.DistanceKm)

	if raw, ok, err := store.Get(ctx, KeyDistance); err != nil {
		return TrackState{}, errors.Wrap(err, "failed to read distance")
	} else if ok {
		cached, perr := strconv.ParseFloat(raw, 64)
		if perr != nil || math.Abs(cached-s.DistanceKm) > 1e-9 {
			log.Debug().Str("cached", raw).Float64("recomputed", s.DistanceKm).Msg("persisted distance disagrees with positions")
		}
	}

	raw, ok, err = store.Get(ctx, KeyTime)
	if err != nil {
		return TrackState{}, errors.Wrap(err, "failed to read elapsed time")
	}
	if ok {
		if secs, perr := strconv.ParseInt(raw, 10, 64); perr == nil && secs > 0 {
			s.ElapsedSeconds = secs
		}
	}

	raw, ok, err = store.Get(ctx, KeySafetyMode)
	if err != nil {
		return TrackState{}, errors.Wrap(err, "failed to read safety mode")
	}
	if ok {
		s.SafetyModeEnabled, _ = strconv.ParseBool(raw)
	}
	return s, nil
}

func saveSession(ctx context.Context, store kv.Store, session Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}
	return errors.Wrap(store.Set(ctx, KeySession, string(raw)), "failed to persist session")
}

func loadSession(ctx context.Context, store kv.Store) (*Session, error) {
	raw, ok, err := store.Get(ctx, KeySession)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read session")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.ID == "" {
		log.Warn().Str("raw", raw).Msg("discarding unreadable persisted session")
		return nil, nil
	}
	return &session, nil
}
