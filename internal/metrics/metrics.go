package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pausr",
			Subsystem: "app",
			Name:      "actions_total",
			Help:      "Pause/resume/terminate primitives invoked, by trigger and result.",
		}, []string{"action", "reason", "result"},
	)
	evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pausr",
			Subsystem: "focus",
			Name:      "evaluations_total",
			Help:      "Focus events by outcome (evaluated, throttled, starting, suspending, duplicate, disabled, unresolved).",
		}, []string{"outcome"},
	)
	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pausr",
			Subsystem: "engine",
			Name:      "sweep_duration_seconds",
			Help:      "Time spent applying a decision to all running apps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"},
	)
	trackedApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pausr",
			Subsystem: "app",
			Name:      "tracked",
			Help:      "Number of app metadata records currently held.",
		},
	)
	stickyApps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pausr",
			Subsystem: "app",
			Name:      "sticky",
			Help:      "Number of apps with the sticky override on.",
		},
	)
	suspendPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pausr",
			Subsystem: "system",
			Name:      "suspend_pending",
			Help:      "1 between a suspend request and the following resume.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{actions, evaluations, sweepDuration, trackedApps, stickyApps, suspendPending}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncAction(action, reason string, ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "failed"
		}
		actions.WithLabelValues(action, reason, result).Inc()
	}
}

func IncEvaluation(outcome string) {
	if regOK.Load() {
		evaluations.WithLabelValues(outcome).Inc()
	}
}

func ObserveSweep(kind string, seconds float64) {
	if regOK.Load() {
		sweepDuration.WithLabelValues(kind).Observe(seconds)
	}
}

func SetTracked(n int) {
	if regOK.Load() {
		trackedApps.Set(float64(n))
	}
}

func SetSticky(n int) {
	if regOK.Load() {
		stickyApps.Set(float64(n))
	}
}

func SetSuspendPending(pending bool) {
	if regOK.Load() {
		v := 0.0
		if pending {
			v = 1
		}
		suspendPending.Set(v)
	}
}
