package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Capricia-k/WoSport/internal/shared/geo"
)

type deniedProvider struct{ err error }

func (p deniedProvider) RequestForegroundAccess(context.Context) (bool, error) {
	return false, p.err
}

func (p deniedProvider) Watch(context.Context, WatchConfig, func(geo.Coordinate)) (Subscription, error) {
	return nil, ErrPermissionDenied
}

func TestSamplerPermissionDenied(t *testing.T) {
	s := NewSampler(deniedProvider{}, WatchConfig{MinDistanceM: 1})
	if err := s.Authorize(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := s.Open(context.Background(), func(geo.Coordinate) {}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied on open, got %v", err)
	}
}

func TestSamplerPermissionRequestError(t *testing.T) {
	s := NewSampler(deniedProvider{err: context.DeadlineExceeded}, WatchConfig{})
	if err := s.Authorize(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected request failure to surface as permission denied, got %v", err)
	}
}

func TestSamplerDefaultsToHighestAccuracy(t *testing.T) {
	s := NewSampler(NewFeed(), WatchConfig{MinDistanceM: -3})
	if s.Config().Accuracy != AccuracyHighest {
		t.Fatalf("expected highest accuracy")
	}
	if s.Config().MinDistanceM != 0 {
		t.Fatalf("expected negative threshold clamped")
	}
}

func TestSamplerMinimumDistanceFilter(t *testing.T) {
	feed := NewFeed()
	feed.SetPermission(true)
	s := NewSampler(feed, WatchConfig{MinDistanceM: 50})

	var got []geo.Coordinate
	h, err := s.Open(context.Background(), func(c geo.Coordinate) { got = append(got, c) })
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	start := geo.Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	near := geo.Coordinate{Latitude: 48.8567, Longitude: 2.3522} // ~11 m
	far := geo.Coordinate{Latitude: 48.8576, Longitude: 2.3522}  // ~111 m

	for _, c := range []geo.Coordinate{start, near, {Latitude: 200, Longitude: 0}, far} {
		if _, err := feed.Push(c); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if len(got) != 2 || got[0] != start || got[1] != far {
		t.Fatalf("unexpected accepted samples: %v", got)
	}

	h.Close()
	h.Close()
	if _, err := feed.Push(geo.Coordinate{Latitude: 48.87, Longitude: 2.35}); err != nil {
		t.Fatalf("push after close: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sample delivered after close")
	}
}

func TestFeedRequestWaitsForDecision(t *testing.T) {
	feed := NewFeed()
	go func() {
		time.Sleep(10 * time.Millisecond)
		feed.SetPermission(true)
	}()

	granted, err := feed.RequestForegroundAccess(context.Background())
	if err != nil || !granted {
		t.Fatalf("expected granted, got %v %v", granted, err)
	}

	feed.SetPermission(false)
	granted, _ = feed.RequestForegroundAccess(context.Background())
	if granted {
		t.Fatalf("expected revoked permission")
	}
	if _, err := feed.Push(geo.Coordinate{}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected push to be refused")
	}
}

func TestFeedRequestTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	granted, err := NewFeed().RequestForegroundAccess(ctx)
	if granted || err == nil {
		t.Fatalf("expected undecided request to time out")
	}
}
