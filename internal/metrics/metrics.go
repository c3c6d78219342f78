// Package metrics exposes the tracking agent's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wosport"

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "sessions_started_total",
		Help:      "Sessions that reached the tracking phase",
	})

	SessionStartFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "session_start_failures_total",
		Help:      "Start attempts that fell back to idle, by reason",
	}, []string{"reason"})

	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "sessions_stopped_total",
		Help:      "Sessions stopped by the user",
	})

	Samples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "samples_total",
		Help:      "Location samples by outcome: delivered, buffered or lost",
	}, []string{"outcome"})

	SamplesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "offline",
		Name:      "flushed_total",
		Help:      "Buffered samples replayed to the backend",
	})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "append_position_seconds",
		Help:      "Latency of append-position calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	Online = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "online",
		Help:      "1 when the backend is believed reachable",
	})
)

const (
	OutcomeDelivered = "delivered"
	OutcomeBuffered  = "buffered"
	OutcomeLost      = "lost"
)
