package relforge

// Version is the product version recorded in the migration history table
// alongside each applied migration id.
const Version = "0.4.0"

// EntityState represents the tracking state of an entity instance.
type EntityState string

const (
	// StateDetached indicates the entity is not tracked by a state manager.
	StateDetached EntityState = "detached"

	// StateUnchanged indicates the entity is tracked and matches its snapshot.
	StateUnchanged EntityState = "unchanged"

	// StateAdded indicates the entity is new and will be inserted on save.
	StateAdded EntityState = "added"

	// StateModified indicates at least one property differs from its snapshot.
	StateModified EntityState = "modified"

	// StateDeleted indicates the entity is tracked and will be deleted on save.
	StateDeleted EntityState = "deleted"
)

// IsTracked reports whether the state corresponds to a tracked entity.
// Detached entities are not tracked.
func (s EntityState) IsTracked() bool {
	return s != StateDetached && s != ""
}

// CascadeTiming controls when a severance or deletion propagates to
// dependent entities.
type CascadeTiming string

const (
	// CascadeImmediate propagates as soon as the triggering change is detected.
	CascadeImmediate CascadeTiming = "immediate"

	// CascadeOnSaveChanges defers propagation until CascadeChanges is invoked,
	// typically right before a save.
	CascadeOnSaveChanges CascadeTiming = "on-save-changes"

	// CascadeNever disables automatic propagation entirely.
	CascadeNever CascadeTiming = "never"
)

// CascadeConfig holds the two independent cascade policies of a state
// manager: what happens to children that lose their parent, and what
// happens to children of a deleted parent.
type CascadeConfig struct {
	// DeleteOrphansTiming applies when a dependent's reference to its
	// required principal is severed (default: CascadeImmediate).
	DeleteOrphansTiming CascadeTiming

	// CascadeDeleteTiming applies when a principal is deleted
	// (default: CascadeImmediate).
	CascadeDeleteTiming CascadeTiming
}

// ApplyDefaults fills unset cascade timings with the immediate policy.
func (c CascadeConfig) ApplyDefaults() CascadeConfig {
	if c.DeleteOrphansTiming == "" {
		c.DeleteOrphansTiming = CascadeImmediate
	}
	if c.CascadeDeleteTiming == "" {
		c.CascadeDeleteTiming = CascadeImmediate
	}
	return c
}
