package location

import (
	"context"
	"sync"
	"time"

	"github.com/Capricia-k/WoSport/internal/shared/geo"

	"github.com/pkg/errors"
	"github.com/tkrajina/gpxgo/gpx"
)

// GPXReplay is a Provider that plays back a recorded track at a fixed
// interval. Authorization is always granted.
type GPXReplay struct {
	points   []geo.Coordinate
	interval time.Duration

	finishOnce sync.Once
	finished   chan struct{}
}

func LoadGPX(path string, interval time.Duration) (*GPXReplay, error) {
	file, err := gpx.ParseFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return newReplay(file, interval)
}

func ParseGPX(data []byte, interval time.Duration) (*GPXReplay, error) {
	file, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse gpx")
	}
	return newReplay(file, interval)
}

func newReplay(file *gpx.GPX, interval time.Duration) (*GPXReplay, error) {
	var points []geo.Coordinate
	for _, track := range file.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				points = append(points, geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude})
			}
		}
	}
	if len(points) == 0 {
		for _, route := range file.Routes {
			for _, p := range route.Points {
				points = append(points, geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude})
			}
		}
	}
	if len(points) == 0 {
		for _, p := range file.Waypoints {
			points = append(points, geo.Coordinate{Latitude: p.Latitude, Longitude: p.Longitude})
		}
	}
	if len(points) == 0 {
		return nil, errors.New("gpx contains no points")
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &GPXReplay{points: points, interval: interval, finished: make(chan struct{})}, nil
}

func (r *GPXReplay) Points() []geo.Coordinate {
	return append([]geo.Coordinate(nil), r.points...)
}

// Finished is closed once every point has been emitted or the watch was removed.
func (r *GPXReplay) Finished() <-chan struct{} {
	return r.finished
}

func (r *GPXReplay) RequestForegroundAccess(context.Context) (bool, error) {
	return true, nil
}

func (r *GPXReplay) Watch(_ context.Context, _ WatchConfig, onFix func(geo.Coordinate)) (Subscription, error) {
	sub := &replaySubscription{stop: make(chan struct{})}
	go func() {
		defer r.finishOnce.Do(func() { close(r.finished) })

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for _, p := range r.points {
			select {
			case <-ticker.C:
				onFix(p)
			case <-sub.stop:
				return
			}
		}
	}()
	return sub, nil
}

type replaySubscription struct {
	once sync.Once
	stop chan struct{}
}

func (s *replaySubscription) Remove() {
	s.once.Do(func() { close(s.stop) })
}
