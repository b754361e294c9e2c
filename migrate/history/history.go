// Package history defines the durable ledger of applied migrations: a
// two-column table of migration id and product version, plus the
// cross-process lock that serializes concurrent migration runs.
// Dialect-specific implementations live in the subpackages.
package history

import (
	"context"
	"strings"
	"time"
)

// Row is one persisted record of an applied migration.
type Row struct {
	// MigrationID is the applied migration's sortable id (primary key).
	MigrationID string

	// ProductVersion is the runtime version that applied the migration.
	ProductVersion string
}

// ReleaseFunc releases a held migration lock. It must be called on
// every exit path; implementations are idempotent.
type ReleaseFunc func(ctx context.Context) error

// Repository provides access to the migration history table and its
// locking primitive. Implementations must be safe for use from multiple
// processes against the same database.
type Repository interface {
	// Exists reports whether the history table exists.
	Exists(ctx context.Context) (bool, error)

	// Create creates the history table. Safe to call when it exists.
	Create(ctx context.Context) error

	// AcquireLock acquires the cross-process migration lock, waiting up
	// to timeout. Returns relforge.ErrLockTimeout (possibly wrapped)
	// when the bound elapses while the lock is contended.
	AcquireLock(ctx context.Context, timeout time.Duration) (ReleaseFunc, error)

	// AppliedMigrations returns all ledger rows ordered by migration id.
	AppliedMigrations(ctx context.Context) ([]Row, error)

	// InsertRow records a migration as applied.
	InsertRow(ctx context.Context, row Row) error

	// DeleteRow removes a migration's ledger record.
	DeleteRow(ctx context.Context, migrationID string) error

	// CreateIfNotExistsScript returns SQL creating the history table
	// only when it is absent.
	CreateIfNotExistsScript() string

	// InsertScript returns SQL recording a migration as applied.
	InsertScript(row Row) string

	// DeleteScript returns SQL removing a migration's ledger record.
	DeleteScript(migrationID string) string

	// BeginIfNotExistsScript opens a conditional block that runs only
	// when the migration is not yet recorded. Used for idempotent
	// apply scripts.
	BeginIfNotExistsScript(migrationID string) string

	// BeginIfExistsScript opens a conditional block that runs only when
	// the migration is recorded. Used for idempotent revert scripts.
	BeginIfExistsScript(migrationID string) string

	// EndIfScript closes a conditional block opened by either begin
	// fragment.
	EndIfScript() string

	// BeginTransactionScript returns the statement opening a script
	// transaction. Dialects whose DDL commits implicitly return the
	// empty string and scripts run without transaction brackets.
	BeginTransactionScript() string

	// CommitScript returns the statement committing a script
	// transaction opened by BeginTransactionScript.
	CommitScript() string
}

// DefaultTableName is the history table name used when none is configured.
const DefaultTableName = "__migration_history"

// QuoteLiteral renders s as a SQL string literal, doubling embedded
// single quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
