// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starford/minto/internal/apperr"
)

var (
	// LayoutDuration tracks full relayouts by direction.
	LayoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minto_layout_duration_seconds",
		Help:    "Layout duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	}, []string{"direction"})

	// LayoutNodes tracks diagram size at layout time.
	LayoutNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "minto_layout_nodes",
		Help:    "Number of nodes per layout",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	// MergeTotal counts expansion merges by result.
	MergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minto_merge_total",
		Help: "Total expansion merges by result",
	}, []string{"result"})

	// GenerationTotal counts generation calls by operation and result.
	GenerationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minto_generation_total",
		Help: "Total generation calls by operation and result",
	}, []string{"operation", "result"})

	// GenerationDuration tracks generation latency.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "minto_generation_duration_seconds",
		Help:    "Generation call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
	}, []string{"operation"})

	// ExpansionsInFlight is the number of node expansions awaiting generation.
	ExpansionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minto_expansions_in_flight",
		Help: "Node expansions currently awaiting generation",
	})
)

// ObserveLayout records one layout run.
func ObserveLayout(direction string, nodes int, started time.Time) {
	LayoutDuration.WithLabelValues(direction).Observe(time.Since(started).Seconds())
	LayoutNodes.Observe(float64(nodes))
}

// ObserveGeneration records one generation call.
func ObserveGeneration(operation string, started time.Time, err error) {
	GenerationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	GenerationTotal.WithLabelValues(operation, Result(err)).Inc()
}

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrGenerationTimeout):
		return "timeout"
	case errors.Is(err, apperr.ErrGenerationUnavailable):
		return "unavailable"
	case errors.Is(err, apperr.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, apperr.ErrCyclicGraph):
		return "cycle"
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrReferentialIntegrity):
		return "invalid"
	case errors.Is(err, apperr.ErrUnknownAnchor):
		return "unknown_anchor"
	default:
		return "error"
	}
}
