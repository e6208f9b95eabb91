// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepsTotal counts completed evaluation sweeps.
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "area",
		Name:      "sweeps_total",
		Help:      "Completed rule evaluation sweeps.",
	})

	// SweepDuration observes wall time of each full sweep.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "area",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of one full evaluation sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	// AreasEvaluated counts rule evaluations by outcome:
	// fired, idle, error, panic.
	AreasEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "area",
		Name:      "areas_evaluated_total",
		Help:      "Rule evaluations by outcome.",
	}, []string{"outcome"})

	// ReactionsTotal counts reaction executions by status: ok, error.
	ReactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "area",
		Name:      "reactions_total",
		Help:      "Reaction executions by status.",
	}, []string{"status"})

	// TokenRefreshes counts credential refresh attempts by outcome:
	// refreshed, failed, revoked.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "area",
		Name:      "token_refreshes_total",
		Help:      "Credential refresh attempts by outcome.",
	}, []string{"outcome"})
)
