// Package metrics exposes the Prometheus collectors shared by the detection
// and orchestration pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngestedTotal counts canonical events accepted by the pool, by bookmaker.
	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_events_ingested_total",
			Help: "Canonical events accepted into the event pool",
		},
		[]string{"bookmaker"},
	)

	// EventsRejectedTotal counts events dropped at the boundary.
	EventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_events_rejected_total",
			Help: "Canonical events rejected before pooling",
		},
		[]string{"reason"},
	)

	// DetectionPassesTotal counts detection passes by result (ok, error).
	DetectionPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_detection_passes_total",
			Help: "Detection passes run per logical event",
		},
		[]string{"result"},
	)

	// DetectionDurationSeconds tracks one detection pass.
	DetectionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "surebot_detection_duration_seconds",
		Help:    "Duration of a single detection pass",
		Buckets: prometheus.DefBuckets,
	})

	// ArbsDetectedTotal counts emitted arbs.
	ArbsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surebot_arbs_detected_total",
		Help: "Arbitrage opportunities emitted by the detector",
	})

	// ArbProfitPercent is the profit distribution of emitted arbs.
	ArbProfitPercent = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "surebot_arb_profit_percent",
		Help:    "Guaranteed profit percent of detected arbs",
		Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 3, 5, 8, 13},
	})

	// ArbsDroppedTotal counts arbs not handed to the orchestrator, by reason.
	ArbsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_arbs_dropped_total",
			Help: "Detected arbs not offered to the orchestrator",
		},
		[]string{"reason"},
	)

	// ArbOutcomesTotal counts terminal arb outcomes by status and cause.
	ArbOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_arb_outcomes_total",
			Help: "Terminal arb outcomes",
		},
		[]string{"status", "cause"},
	)

	// JointCommitSeconds tracks the joint-commit wait.
	JointCommitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "surebot_joint_commit_seconds",
		Help:    "Time spent waiting for all legs of an arb",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	// InboxDepth is the orchestrator inbox length.
	InboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "surebot_orchestrator_inbox_depth",
		Help: "Arbs waiting in the orchestrator inbox",
	})

	// LateLegResultsTotal counts results that arrived after the wait ended.
	LateLegResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "surebot_late_leg_results_total",
		Help: "Leg results discarded because the joint-commit wait had ended",
	})

	// RetryRearmsTotal counts legs re-armed on fresh prices, by bookmaker.
	RetryRearmsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_retry_rearms_total",
			Help: "Failed legs re-armed for placement",
		},
		[]string{"bookmaker"},
	)

	// RetryEvictionsTotal counts retry specs evicted, by reason.
	RetryEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_retry_evictions_total",
			Help: "Retry specs evicted without re-arming",
		},
		[]string{"reason"},
	)

	// RetryQueueDepth is the retry-signal queue length per bookmaker.
	RetryQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "surebot_retry_queue_depth",
			Help: "Re-armed leg ids waiting for an execution agent",
		},
		[]string{"bookmaker"},
	)

	// LegPlacementsTotal counts agent placement attempts by bookmaker and result.
	LegPlacementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surebot_leg_placements_total",
			Help: "Leg placement attempts made by execution agents",
		},
		[]string{"bookmaker", "result"},
	)
)
