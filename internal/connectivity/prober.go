package connectivity

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProbeFunc returns nil when the backend answered.
type ProbeFunc func(ctx context.Context) error

// Prober periodically probes the backend and feeds the result into a Monitor.
type Prober struct {
	monitor  *Monitor
	probe    ProbeFunc
	interval time.Duration
}

func NewProber(monitor *Monitor, probe ProbeFunc, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{monitor: monitor, probe: probe, interval: interval}
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ticker.C:
			p.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) check(ctx context.Context) {
	err := p.probe(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	connected := err == nil
	if connected != p.monitor.Current() {
		ev := log.Info().Bool("connected", connected)
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("connectivity changed")
	}
	p.monitor.Set(connected)
}

// HTTPProbe treats any HTTP answer below 500 as reachable.
func HTTPProbe(url string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		code, _, errs := fiber.Get(url).Timeout(timeout).Bytes()
		if len(errs) > 0 {
			return errors.Wrap(errs[0], "probe failed")
		}
		if code >= fiber.StatusInternalServerError {
			return errors.Errorf("probe returned %d", code)
		}
		return nil
	}
}
