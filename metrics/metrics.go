package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TrackedEntities tracks the current number of tracked entries per state manager.
var TrackedEntities = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "relforge_tracked_entities",
		Help: "Current number of tracked entity entries",
	},
	[]string{"manager"},
)

// StateTransitionsTotal tracks entity state transitions by resulting state.
var StateTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relforge_state_transitions_total",
		Help: "Total entity state transitions by resulting state",
	},
	[]string{"manager", "state"},
)

// DetectChangesDuration tracks full change-detection scan latency.
var DetectChangesDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "relforge_detect_changes_duration_seconds",
		Help:    "Full change-detection scan latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"manager"},
)

// MigrationsAppliedTotal tracks the total number of migrations applied.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relforge_migrations_applied_total",
		Help: "Total migrations applied",
	},
	[]string{"database"},
)

// MigrationsRevertedTotal tracks the total number of migrations reverted.
var MigrationsRevertedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "relforge_migrations_reverted_total",
		Help: "Total migrations reverted",
	},
	[]string{"database"},
)

// MigrationLockWait tracks time spent acquiring the migration lock.
var MigrationLockWait = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "relforge_migration_lock_wait_seconds",
		Help:    "Time spent acquiring the cross-process migration lock",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"database"},
)

// MigrationDuration tracks end-to-end Migrate call latency.
var MigrationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "relforge_migration_duration_seconds",
		Help:    "End-to-end Migrate call latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"database"},
)
