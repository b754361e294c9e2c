package relforge

import "errors"

var (
	// ErrEntityTypeNotFound indicates the entity's type is not part of the model.
	ErrEntityTypeNotFound = errors.New("entity type not found in model")

	// ErrKeylessEntityType indicates the entity type declares no key and
	// therefore cannot be tracked.
	ErrKeylessEntityType = errors.New("entity type has no key")

	// ErrNotTracked indicates the entity has no entry in the state manager.
	ErrNotTracked = errors.New("entity is not tracked")

	// ErrInvalidTransition indicates a state change that is not an adjacent
	// transition of the entry state machine.
	ErrInvalidTransition = errors.New("invalid entity state transition")

	// ErrMigrationNotFound indicates the requested migration id is not in
	// the registry. Planning fails before any SQL is generated.
	ErrMigrationNotFound = errors.New("migration not found")

	// ErrLedgerGap indicates the applied-migration ids are not a contiguous
	// prefix of the registry. The ledger is corrupt and is not auto-repaired.
	ErrLedgerGap = errors.New("migration ledger is not a contiguous prefix")

	// ErrLockTimeout indicates the cross-process migration lock could not be
	// acquired within the configured timeout. The whole Migrate call may be
	// retried.
	ErrLockTimeout = errors.New("migration lock acquisition timed out")
)
