package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_SetTrackedEntities(t *testing.T) {
	c := NewCollector("session-a")

	c.SetTrackedEntities(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(TrackedEntities.WithLabelValues("session-a")))

	c.SetTrackedEntities(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(TrackedEntities.WithLabelValues("session-a")))
}

func TestCollector_ScopesAreIndependent(t *testing.T) {
	a := NewCollector("session-b")
	b := NewCollector("session-c")

	a.SetTrackedEntities(3)
	b.SetTrackedEntities(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(TrackedEntities.WithLabelValues("session-b")))
	assert.Equal(t, 7.0, testutil.ToFloat64(TrackedEntities.WithLabelValues("session-c")))
}

func TestCollector_IncStateTransition(t *testing.T) {
	c := NewCollector("session-d")

	c.IncStateTransition("added")
	c.IncStateTransition("added")
	c.IncStateTransition("deleted")

	assert.Equal(t, 2.0, testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("session-d", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(StateTransitionsTotal.WithLabelValues("session-d", "deleted")))
}

func TestCollector_MigrationCounters(t *testing.T) {
	c := NewCollector("db-a")

	c.IncMigrationsApplied()
	c.IncMigrationsApplied()
	c.IncMigrationsReverted()

	assert.Equal(t, 2.0, testutil.ToFloat64(MigrationsAppliedTotal.WithLabelValues("db-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(MigrationsRevertedTotal.WithLabelValues("db-a")))
}

func TestCollector_HistogramsObserve(t *testing.T) {
	c := NewCollector("db-b")

	c.ObserveDetectChangesDuration(0.01)
	c.ObserveLockWait(0.5)
	c.ObserveMigrationDuration(1.5)

	assert.Equal(t, 1, testutil.CollectAndCount(DetectChangesDuration))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(MigrationLockWait), 1)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(MigrationDuration), 1)
}
