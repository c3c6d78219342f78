// Package location adapts a platform location-watch primitive into a sampler
// that only emits fixes once the device has moved a minimum distance.
package location

import (
	"context"
	"sync"

	"github.com/Capricia-k/WoSport/internal/shared/geo"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrPermissionDenied = errors.New("location permission denied")

type Accuracy int

const (
	AccuracyLowest Accuracy = iota + 1
	AccuracyLow
	AccuracyBalanced
	AccuracyHigh
	AccuracyHighest
)

type WatchConfig struct {
	// MinDistanceM is the distance the device must move before a new fix
	// is accepted.
	MinDistanceM float64
	Accuracy     Accuracy
}

// Subscription is a live platform watch.
type Subscription interface {
	Remove()
}

// Provider is the platform location API.
type Provider interface {
	RequestForegroundAccess(ctx context.Context) (bool, error)
	Watch(ctx context.Context, cfg WatchConfig, onFix func(geo.Coordinate)) (Subscription, error)
}

// Handle closes an open sampler. Close is idempotent and no sample is
// delivered once it returns.
type Handle interface {
	Close()
}

type Sampler struct {
	provider Provider
	cfg      WatchConfig
}

func NewSampler(provider Provider, cfg WatchConfig) *Sampler {
	if cfg.Accuracy == 0 {
		cfg.Accuracy = AccuracyHighest
	}
	if cfg.MinDistanceM < 0 {
		cfg.MinDistanceM = 0
	}
	return &Sampler{provider: provider, cfg: cfg}
}

func (s *Sampler) Config() WatchConfig {
	return s.cfg
}

// Authorize queries foreground access, requesting it if not yet granted.
func (s *Sampler) Authorize(ctx context.Context) error {
	granted, err := s.provider.RequestForegroundAccess(ctx)
	if err != nil {
		return errors.Wrap(ErrPermissionDenied, err.Error())
	}
	if !granted {
		return ErrPermissionDenied
	}
	return nil
}

// Open starts watching. onSample runs on the provider's goroutine.
func (s *Sampler) Open(ctx context.Context, onSample func(geo.Coordinate)) (Handle, error) {
	if err := s.Authorize(ctx); err != nil {
		return nil, err
	}

	h := &handle{minKm: s.cfg.MinDistanceM / 1000, onSample: onSample}
	sub, err := s.provider.Watch(ctx, s.cfg, h.receive)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to watch position")
	}
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
	return h, nil
}

type handle struct {
	mu       sync.Mutex
	sub      Subscription
	closed   bool
	once     sync.Once
	minKm    float64
	last     geo.Coordinate
	hasLast  bool
	onSample func(geo.Coordinate)
}

func (h *handle) receive(c geo.Coordinate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if !c.Valid() {
		log.Debug().Float64("latitude", c.Latitude).Float64("longitude", c.Longitude).Msg("dropping invalid fix")
		return
	}
	if h.hasLast && geo.DistanceKm(h.last, c) < h.minKm {
		return
	}
	h.last = c
	h.hasLast = true
	h.onSample(c)
}

func (h *handle) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		sub := h.sub
		h.mu.Unlock()
		if sub != nil {
			sub.Remove()
		}
	})
}
