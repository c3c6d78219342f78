package tracking

import (
	"fmt"
	"time"

	"github.com/Capricia-k/WoSport/internal/shared/geo"
)

// Session is a workout session issued by the backend. ID is opaque.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseTracking Phase = "tracking"
	PhaseStopping Phase = "stopping"
)

// TrackState is the live counters of the current session. Positions is
// append-only; DistanceKm and Calories are derivable from it.
type TrackState struct {
	Positions         []geo.Coordinate `json:"positions"`
	DistanceKm        float64          `json:"distance_km"`
	ElapsedSeconds    int64            `json:"elapsed_seconds"`
	Calories          float64          `json:"calories"`
	SafetyModeEnabled bool             `json:"safety_mode_enabled"`
}

func (s TrackState) clone() TrackState {
	out := s
	out.Positions = append([]geo.Coordinate(nil), s.Positions...)
	return out
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Phase   Phase    `json:"phase"`
	Session *Session `json:"session,omitempty"`
	Online  bool     `json:"online"`
	Elapsed string   `json:"elapsed"`
	TrackState
}

// Recovered describes counters found in the store at cold start. A session
// interrupted by process death is never resumed.
type Recovered struct {
	State     TrackState `json:"state"`
	Session   *Session   `json:"session,omitempty"`
	Abandoned bool       `json:"abandoned"`
	Resumable bool       `json:"resumable"`
}

// OfflineEntry is a sample that could not be delivered.
type OfflineEntry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (e OfflineEntry) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: e.Latitude, Longitude: e.Longitude}
}

// FlushResult reports how many buffered samples reached the backend.
type FlushResult struct {
	SessionID string `json:"session_id"`
	Sent      int    `json:"sent"`
	Remaining int    `json:"remaining"`
}

// FormatElapsed renders seconds as mm:ss. Minutes do not wrap into hours.
func FormatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
