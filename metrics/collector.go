package metrics

// Collector wraps metrics and provides helper methods with a pre-filled
// scope label: the state manager name for tracking metrics, the target
// database name for migration metrics.
type Collector struct {
	scope string
}

// NewCollector creates a new Collector for the given scope.
func NewCollector(scope string) *Collector {
	return &Collector{scope: scope}
}

// SetTrackedEntities sets the tracked entities gauge.
func (c *Collector) SetTrackedEntities(count int) {
	TrackedEntities.WithLabelValues(c.scope).Set(float64(count))
}

// IncStateTransition increments the state transition counter for the
// resulting state.
func (c *Collector) IncStateTransition(state string) {
	StateTransitionsTotal.WithLabelValues(c.scope, state).Inc()
}

// ObserveDetectChangesDuration records a change-detection scan duration.
func (c *Collector) ObserveDetectChangesDuration(seconds float64) {
	DetectChangesDuration.WithLabelValues(c.scope).Observe(seconds)
}

// IncMigrationsApplied increments the applied migrations counter.
func (c *Collector) IncMigrationsApplied() {
	MigrationsAppliedTotal.WithLabelValues(c.scope).Inc()
}

// IncMigrationsReverted increments the reverted migrations counter.
func (c *Collector) IncMigrationsReverted() {
	MigrationsRevertedTotal.WithLabelValues(c.scope).Inc()
}

// ObserveLockWait records a migration lock acquisition duration.
func (c *Collector) ObserveLockWait(seconds float64) {
	MigrationLockWait.WithLabelValues(c.scope).Observe(seconds)
}

// ObserveMigrationDuration records an end-to-end Migrate duration.
func (c *Collector) ObserveMigrationDuration(seconds float64) {
	MigrationDuration.WithLabelValues(c.scope).Observe(seconds)
}
